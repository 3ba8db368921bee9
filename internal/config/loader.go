package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
)

// Load reads the config file at path, strictly decodes it (unknown fields are
// rejected so typos surface early), then applies environment overrides.
//
// A missing file is not an error: the zero Config plus env overrides is a
// workable configuration with built-in defaults everywhere.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		parsed, perr := parse(path, b)
		if perr != nil {
			return nil, perr
		}
		cfg = parsed
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(path string, b []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// envOverrides are deployment-level knobs that win over the config file.
type envOverrides struct {
	HTTPAddr    string `env:"HTTP_ADDR"`
	LogLevel    string `env:"LOG_LEVEL"`
	StoragePath string `env:"STORAGE_PATH"`
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.ParseWithOptions(&ov, env.Options{Prefix: "DAILYBOT_"}); err != nil {
		return err
	}
	if ov.HTTPAddr != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Addr = ov.HTTPAddr
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if ov.StoragePath != "" {
		cfg.Storage.Path = ov.StoragePath
	}
	return nil
}

// ConsoleEnabled resolves the tri-state console flag (default on).
func (c LoggingConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}
