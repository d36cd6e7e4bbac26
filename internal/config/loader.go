package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load loads the configuration from the config file and environment variables.
func Load(configPath string) (*Config, error) {
	var cfg Config

	path := configPath
	if path == "" {
		defaultPaths := []string{
			"./configs/config.yaml",
			"./config.yaml",
		}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.Station.ID == "" {
		return fmt.Errorf("station.id is required")
	}
	if cfg.Station.ProtocolVersion != "1.6" && cfg.Station.ProtocolVersion != "2.0.1" {
		return fmt.Errorf("station.protocol_version must be \"1.6\" or \"2.0.1\", got %q", cfg.Station.ProtocolVersion)
	}
	if cfg.Station.ConnectorCount <= 0 {
		return fmt.Errorf("station.connector_count must be positive")
	}

	if cfg.CSMS.URL == "" {
		return fmt.Errorf("csms.url is required")
	}

	if cfg.Storage.Directory == "" {
		return fmt.Errorf("storage.directory is required")
	}

	if cfg.Analytics.Enabled && cfg.Analytics.MongoDB.URI == "" {
		return fmt.Errorf("analytics.mongodb.uri is required when analytics.enabled is true")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
