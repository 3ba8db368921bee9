package app

import (
	"dailybot/internal/config"
	"dailybot/internal/delivery"
	"dailybot/internal/schedule"
	"dailybot/internal/scheduler"
	"dailybot/internal/storage"
)

const defaultStoragePath = "./storage/schedule-config.json"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	poll, err := config.ParseDurationOrDefault("storage.poll_every", cfg.Storage.PollEvery, 0)
	if err != nil {
		return storage.Config{}, err
	}

	out := storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		PollEvery:   poll,
	}
	if out.Driver == "" {
		out.Driver = "file"
	}
	if out.Path == "" {
		out.Path = defaultStoragePath
	}
	return out, nil
}

// mapDefaults merges config-provided schedule defaults over the built-in
// ones. A partial override replaces whole fields, not individual weekdays.
func mapDefaults(cfg *config.Config) schedule.Defaults {
	def := schedule.BuiltIn()
	dc := cfg.Scheduler.Defaults
	if dc.Timezone != "" {
		def.Timezone = dc.Timezone
	}
	if len(dc.DailyTimes) > 0 {
		def.DailyTimes = dc.DailyTimes
	}
	if dc.Version != "" {
		def.Version = dc.Version
	}
	return def
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	retry, err := config.ParseDurationOrDefault("scheduler.retry_interval", cfg.Scheduler.RetryInterval, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("scheduler.idle_recheck", cfg.Scheduler.IdleRecheck, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("scheduler.error_backoff", cfg.Scheduler.ErrorBackoff, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	postRun, err := config.ParseDurationOrDefault("scheduler.post_run_delay", cfg.Scheduler.PostRunDelay, 0)
	if err != nil {
		return scheduler.Config{}, err
	}

	return scheduler.Config{
		RetryInterval: retry,
		MaxRetries:    cfg.Scheduler.MaxRetries,
		IdleRecheck:   idle,
		ErrorBackoff:  backoff,
		PostRunDelay:  postRun,
		SweepSpec:     cfg.Scheduler.SweepSpec,
	}, nil
}

func mapRecipients(cfg *config.Config) delivery.StaticDirectory {
	out := make(delivery.StaticDirectory, 0, len(cfg.Delivery.Recipients))
	for _, rc := range cfg.Delivery.Recipients {
		out = append(out, delivery.Recipient{Name: rc.Name, Address: rc.Address})
	}
	return out
}
