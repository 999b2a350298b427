package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultPort        = 8889
	DefaultHost        = "0.0.0.0"
	DefaultServiceName = "Noema Gateway"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                DefaultHost,
			Port:                DefaultPort,
			ServeOnLocalNetwork: true,
			AdvertiseBonjour:    false,
			ServiceName:         DefaultServiceName,
			AllowedOrigins:      []string{"*"},
			ReadTimeout:         30 * time.Second,
			ShutdownTimeout:     10 * time.Second,
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   20 * 1024 * 1024,
				MaxHeaderSize: 64 * 1024,
			},
		},
		Engine: EngineConfig{
			// Assume a llama.cpp style server running locally
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 10 * time.Minute,
		},
		Transport: TransportConfig{
			CheckInterval:           5 * time.Second,
			ProbeTimeout:            3 * time.Second,
			RequestTimeout:          30 * time.Second,
			MetadataRefreshInterval: 60 * time.Second,
			NetworkNameCacheTTL:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load loads configuration from file and environment variables. The reload
// callback fires on config file changes once WatchConfig is armed.
func Load(onChange func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("NOEMA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, check if we have NOEMA_CONFIG_FILE env var
		if configFile := os.Getenv("NOEMA_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if onChange != nil {
		viper.OnConfigChange(func(in fsnotify.Event) {
			onChange()
		})
	}
	viper.WatchConfig()

	return config, nil
}

// Snapshot re-reads the current viper state into a fresh Config. Used after
// a file-change notification to pick up the new values.
func Snapshot() (*Config, error) {
	config := DefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return config, nil
}
