package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config file and environment
// variables. Environment variables take precedence over file values.
// Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults for everything that has a sensible one. Credentials and
	// the model catalog must come from the environment or config file.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("provider.version", "2023-07-01")
	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("provider.max_create_retries", 2)
	v.SetDefault("provider.retry_base_delay_seconds", 2)
	v.SetDefault("generation.grace_window_seconds", 60)
	v.SetDefault("generation.max_concurrent", 0)
	v.SetDefault("storage.timeout_seconds", 60)

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with VIDSMITH_ prefix override file values,
	// e.g. server.port -> VIDSMITH_SERVER_PORT.
	v.SetEnvPrefix("VIDSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound
	// explicitly, so bind the ones expected to arrive via env only.
	for _, key := range []string{
		"database.url",
		"provider.secret_id",
		"provider.secret_key",
		"provider.host",
		"provider.region",
		"provider.sub_app_id",
		"storage.upload_base_url",
		"storage.public_base_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
