package config

// Config is the application configuration loaded from a JSON or YAML file.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Workday   WorkdayConfig   `json:"workday,omitempty"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // nil means true
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls where the schedule document lives.
//
// Driver values:
//   - "file": JSON document file (default), watched with fsnotify
//   - "sqlite": SQLite database file (optional build tag), watch by polling
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // default: "file"
	Path        string `json:"path,omitempty"`   // default: "./storage/schedule-config.json"
	BusyTimeout string `json:"busy_timeout,omitempty"`
	PollEvery   string `json:"poll_every,omitempty"` // sqlite watch interval, default "2s"
}

// SchedulerConfig controls the run-planning and retry policy.
//
// Defaults (when fields are omitted/zero):
//   - retry_interval: "30s"   (wait between delivery connectivity checks,
//     also the re-plan delay after a store read failure)
//   - max_retries: 10         (connectivity attempts before giving up a run)
//   - idle_recheck: "1h"      (re-plan delay when no next run exists)
//   - error_backoff: "15m"    (re-plan delay after an unexpected failure)
//   - post_run_delay: "1m"    (re-plan reference offset after a run)
//   - sweep_spec: "@hourly"   (cron spec for the maintenance sweep; "" keeps
//     the default, "off" disables it)
type SchedulerConfig struct {
	RetryInterval string `json:"retry_interval,omitempty"`
	MaxRetries    int    `json:"max_retries,omitempty"`
	IdleRecheck   string `json:"idle_recheck,omitempty"`
	ErrorBackoff  string `json:"error_backoff,omitempty"`
	PostRunDelay  string `json:"post_run_delay,omitempty"`
	SweepSpec     string `json:"sweep_spec,omitempty"`

	// Defaults seeds the built-in schedule document written on first run and
	// used by the version auto-upgrade.
	Defaults DefaultScheduleConfig `json:"default_schedule,omitempty"`
}

// DefaultScheduleConfig describes the system-managed schedule defaults.
// DailyTimes keys are ISO weekday numbers "1" (Monday) .. "7" (Sunday);
// a null value means no run that weekday.
type DefaultScheduleConfig struct {
	Timezone   string             `json:"timezone,omitempty"`
	DailyTimes map[string]*string `json:"daily_times,omitempty"`
	Version    string             `json:"version,omitempty"`
}

// WorkdayConfig tunes the local workday calendar.
// Dates are YYYY-MM-DD strings interpreted in the schedule's timezone.
type WorkdayConfig struct {
	Holidays      []string `json:"holidays,omitempty"`
	ExtraWorkdays []string `json:"extra_workdays,omitempty"`
}

// DeliveryConfig tunes the bundled fan-out delivery channel.
//
// Recipients and the message template are deployment-level settings; richer
// contact management belongs to the admin layer in front of this core.
// The template supports a {name} placeholder.
type DeliveryConfig struct {
	RatePerSec int               `json:"rate_per_sec,omitempty"` // default: 1
	RetryMax   int               `json:"retry_max,omitempty"`    // default: 2
	Recipients []RecipientConfig `json:"recipients,omitempty"`
	Message    string            `json:"message,omitempty"`
}

type RecipientConfig struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// HTTPConfig controls the optional admin API server.
//
// Security note: prefer binding to localhost; the admin layer in front of
// this API owns authentication.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default: "127.0.0.1:8780"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
