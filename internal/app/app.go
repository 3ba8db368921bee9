// Package app assembles the daemon: config, logging, document storage, the
// schedule store, the delivery channel, the run scheduler, and the optional
// admin API, plus systemd readiness/watchdog integration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dailybot/internal/api"
	"dailybot/internal/config"
	"dailybot/internal/delivery"
	"dailybot/internal/schedule"
	"dailybot/internal/scheduler"
	"dailybot/internal/storage"
	"dailybot/internal/workday"
	"dailybot/pkg/logx"
)

type App struct {
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service

	docs    storage.DocStore
	store   *schedule.Store
	channel delivery.Channel
	sched   *scheduler.Service
	httpSrv *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("component", "app"))

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	docs, err := storage.Open(stCfg, log.With(logx.String("component", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened",
		logx.String("driver", stCfg.Driver),
		logx.String("path", stCfg.Path))

	store := schedule.NewStore(docs, mapDefaults(cfg), log.With(logx.String("component", "schedule")))

	oracle, err := workday.NewCalendar(cfg.Workday.Holidays, cfg.Workday.ExtraWorkdays)
	if err != nil {
		return nil, fmt.Errorf("workday config: %w", err)
	}

	channel := delivery.NewFanout(
		delivery.FanoutConfig{
			RatePerSec: cfg.Delivery.RatePerSec,
			RetryMax:   cfg.Delivery.RetryMax,
		},
		delivery.NewDryRunTransport(log.With(logx.String("component", "delivery"))),
		mapRecipients(cfg),
		delivery.TemplateMessage(cfg.Delivery.Message),
		log.With(logx.String("component", "delivery")),
	)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, store, oracle, log)

	a := &App{
		cfg:     cfg,
		log:     log,
		logs:    logSvc,
		docs:    docs,
		store:   store,
		channel: channel,
		sched:   sched,
	}
	if cfg.HTTP.Enabled {
		srv, err := a.buildHTTPServer()
		if err != nil {
			return nil, err
		}
		a.httpSrv = srv
	}
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Fail fast on an unreadable or unrecoverable document.
	if _, err := a.store.Load(runCtx); err != nil {
		cancel()
		return fmt.Errorf("initial schedule load: %w", err)
	}

	a.sched.Start(runCtx, a.channel)

	// External edits to the stored document discard the pending timer.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.docs.Watch(runCtx, func() {
			a.log.Info("schedule document changed externally")
			a.sched.ForceReschedule(scheduler.ReasonExternalChange)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("document watch ended", logx.Err(err))
		}
	}()

	if a.httpSrv != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Info("admin api listening", logx.String("addr", a.httpSrv.Addr))
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("admin api server failed", logx.Err(err))
			}
		}()
	}

	a.notifySystemd(runCtx)
	a.log.Info("started")
	return nil
}

// Stop unwinds in reverse start order: admin API, scheduler, watcher, then
// storage and the log sinks.
func (a *App) Stop(ctx context.Context) {
	if a.cancel == nil {
		return
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.httpSrv != nil {
		shCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := a.httpSrv.Shutdown(shCtx); err != nil {
			a.log.Warn("admin api shutdown", logx.Err(err))
		}
		cancel()
	}

	a.sched.Stop()
	a.cancel()
	a.wg.Wait()

	if err := a.docs.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
}

func (a *App) buildHTTPServer() (*http.Server, error) {
	readTO, err := config.ParseDurationOrDefault("http.read_timeout", a.cfg.HTTP.ReadTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	writeTO, err := config.ParseDurationOrDefault("http.write_timeout", a.cfg.HTTP.WriteTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	idleTO, err := config.ParseDurationOrDefault("http.idle_timeout", a.cfg.HTTP.IdleTimeout, time.Minute)
	if err != nil {
		return nil, err
	}

	addr := a.cfg.HTTP.Addr
	if addr == "" {
		addr = "127.0.0.1:8780"
	}
	h := api.NewHandler(a.store, a.sched, a.log)
	return &http.Server{
		Addr:         addr,
		Handler:      h.Routes(),
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
	}, nil
}

// notifySystemd signals readiness and services the watchdog when one is
// armed. Both calls are no-ops outside a systemd unit.
func (a *App) notifySystemd(ctx context.Context) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd readiness notified")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
