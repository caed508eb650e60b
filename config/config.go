package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml"
)

type Config struct {
	Permits  int64         `mapstructure:"permits"`
	Workers  int           `mapstructure:"workers"`
	Rounds   int           `mapstructure:"rounds"`
	Hold     time.Duration `mapstructure:"hold"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Seed     uint64        `mapstructure:"seed"`
	Database string        `mapstructure:"db_path"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"permits": 20,
		"workers": 20,
		"rounds":  100,
		"hold":    "0s",
		"timeout": "60s",
		"seed":    0,
		"db_path": "permits.db",
	}
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg, err := decode(defaults())
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigOrDefault reads path, falling back to path.bak and then to the
// defaults when neither file exists. Keys missing from the file keep their
// default values.
func LoadConfigOrDefault(path string) (*Config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}

		cfg, err = loadConfig(path + ".bak")
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}

			slog.Info("config file not found, using defaults", "path", path)
			return Default(), nil
		}
		slog.Warn("recovering backup config file", "path", path+".bak")
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 20
	}
	if cfg.Rounds < 0 {
		cfg.Rounds = 0
	}

	return cfg, nil
}

func loadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, err
	}

	values := defaults()
	for k, v := range tree.ToMap() {
		values[k] = v
	}

	cfg, err := decode(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(values map[string]interface{}) (*Config, error) {
	cfg := &Config{}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      cfg,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(values); err != nil {
		return nil, err
	}

	return cfg, nil
}
