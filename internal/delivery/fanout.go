package delivery

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "dailybot/pkg/logx"
)

// Recipient is one delivery target.
type Recipient struct {
	Name    string
	Address string
}

// Transport sends a single message. Implementations own the wire protocol;
// this package never sees it.
type Transport interface {
	Connected(ctx context.Context) (bool, error)
	Send(ctx context.Context, to Recipient, message string) error
}

// Directory lists the current delivery targets.
type Directory interface {
	Recipients(ctx context.Context) ([]Recipient, error)
}

// MessageSource renders the message for one recipient.
type MessageSource interface {
	MessageFor(ctx context.Context, to Recipient) (string, error)
}

// FanoutConfig tunes the bulk send.
type FanoutConfig struct {
	RatePerSec int // default: 1
	RetryMax   int // per-recipient send retries, default: 2
}

func (c FanoutConfig) withDefaults() FanoutConfig {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	} else if c.RetryMax == 0 {
		c.RetryMax = 2
	}
	return c
}

// Fanout implements Channel by sending to every recipient in sequence,
// paced by a rate limiter, with a small bounded retry per recipient.
// A recipient that still fails after the retries only bumps the failure
// count; the run as a whole completes.
type Fanout struct {
	cfg      FanoutConfig
	tr       Transport
	dir      Directory
	messages MessageSource
	log      logx.Logger

	limiter *rate.Limiter
}

func NewFanout(cfg FanoutConfig, tr Transport, dir Directory, messages MessageSource, log logx.Logger) *Fanout {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fanout{
		cfg:      cfg,
		tr:       tr,
		dir:      dir,
		messages: messages,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (f *Fanout) ConnectionState(ctx context.Context) (State, error) {
	ok, err := f.tr.Connected(ctx)
	if err != nil {
		return StateDisconnected, err
	}
	if !ok {
		return StateDisconnected, nil
	}
	return StateConnected, nil
}

func (f *Fanout) SendAll(ctx context.Context) (Report, error) {
	targets, err := f.dir.Recipients(ctx)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Total: len(targets)}
	if len(targets) == 0 {
		f.log.Warn("no recipients configured; nothing to send")
		return rep, nil
	}

	start := time.Now()
	for _, t := range targets {
		if err := f.limiter.Wait(ctx); err != nil {
			return rep, err
		}
		if err := f.sendOne(ctx, t); err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed++
			continue
		}
		rep.Success++
	}

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if rep.Failed > 0 {
		f.log.Warn("delivery run finished with failures", fields...)
	} else {
		f.log.Info("delivery run finished", fields...)
	}
	return rep, nil
}

func (f *Fanout) sendOne(ctx context.Context, to Recipient) error {
	msg, err := f.messages.MessageFor(ctx, to)
	if err != nil {
		f.log.Warn("message render failed", logx.String("recipient", to.Name), logx.Err(err))
		return err
	}

	var last error
	for i := 0; i <= f.cfg.RetryMax; i++ {
		err := f.tr.Send(ctx, to, msg)
		if err == nil {
			return nil
		}
		last = err
		if i == f.cfg.RetryMax {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		f.log.Debug("send retry scheduled",
			logx.String("recipient", to.Name),
			logx.Int("attempt", i+2),
			logx.Duration("delay", delay),
			logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ctx.Err()
		case <-tmr.C:
		}
	}
	f.log.Warn("send failed",
		logx.String("recipient", to.Name),
		logx.String("address", to.Address),
		logx.Err(last))
	return last
}

// ---- simple config-backed collaborators ----

// StaticDirectory serves a fixed recipient list.
type StaticDirectory []Recipient

func (d StaticDirectory) Recipients(ctx context.Context) ([]Recipient, error) {
	_ = ctx
	return []Recipient(d), nil
}

// TemplateMessage renders a fixed template, substituting {name}.
type TemplateMessage string

func (m TemplateMessage) MessageFor(ctx context.Context, to Recipient) (string, error) {
	_ = ctx
	name := strings.TrimSpace(to.Name)
	if name == "" {
		name = to.Address
	}
	return strings.ReplaceAll(string(m), "{name}", name), nil
}
