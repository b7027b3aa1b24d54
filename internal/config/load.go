package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults that are safe for local development. Secrets and
	// connection strings have no defaults on purpose.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("companion.max_auth_attempts", 25)
	v.SetDefault("companion.link_expiry_hours", 24)
	v.SetDefault("jobs.worker_count", 2)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("flags.running_late_sms_enabled", false)
	v.SetDefault("flags.consents_module_enabled", false)
	v.SetDefault("flags.displayed_note_tasks", []string{})

	// Keys with no usable default still need to be registered so
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"station.base_url",
		"station.token",
		"twilio.account_sid",
		"twilio.auth_token",
		"twilio.flow_sid",
		"twilio.from_number",
		"companion.base_url",
	} {
		v.SetDefault(key, "")
	}

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; everything can come from the environment.
	}

	// Environment variables: COMPANION_SERVER_PORT, COMPANION_DATABASE_URL, ...
	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
