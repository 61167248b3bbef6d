package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	BadgerDBPath    string        `mapstructure:"BADGERDB_PATH"`
	ListenAddr      string        `mapstructure:"LISTEN_ADDR"`
	IngestURL       string        `mapstructure:"INGEST_URL"`
	IngestAuthToken string        `mapstructure:"INGEST_AUTH_TOKEN"`
	FlushInterval   time.Duration `mapstructure:"FLUSH_INTERVAL"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Allow reading from environment variables as well.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err = viper.ReadInConfig()
	if err != nil {
		// A missing config file is fine when env vars carry the settings;
		// anything else is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// --- Validation and Defaults ---
	if config.IngestURL == "" {
		return Config{}, fmt.Errorf("INGEST_URL is not set")
	}
	if config.BadgerDBPath == "" {
		config.BadgerDBPath = "./badger_data"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:8085"
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Minute
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}
