package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Station   StationConfig   `mapstructure:"station"   validate:"required"`
	Twilio    TwilioConfig    `mapstructure:"twilio"    validate:"required"`
	Companion CompanionConfig `mapstructure:"companion" validate:"required"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Flags     FlagsConfig     `mapstructure:"flags"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains settings for companion session tokens.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gte=0"`
}

// StationConfig contains settings for the dispatch-system API client.
type StationConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Token   string `mapstructure:"token"    validate:"required"`
}

// TwilioConfig contains settings for the Twilio Studio Flow client.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid" validate:"required"`
	AuthToken  string `mapstructure:"auth_token"  validate:"required"`
	FlowSID    string `mapstructure:"flow_sid"    validate:"required"`
	FromNumber string `mapstructure:"from_number" validate:"required"`
}

// CompanionConfig contains settings for the companion experience itself.
type CompanionConfig struct {
	// BaseURL is the public URL of the companion web experience.
	// Link URLs sent to patients are BaseURL + "/" + linkID.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// MaxAuthAttempts is the number of failed authentication attempts
	// after which a link is blocked.
	MaxAuthAttempts int `mapstructure:"max_auth_attempts" validate:"gt=0"`

	// LinkExpiryHours is how long after care request completion a link
	// keeps answering before it is reported as gone.
	LinkExpiryHours int `mapstructure:"link_expiry_hours" validate:"gt=0"`
}

// JobsConfig contains settings for the delayed job runner.
type JobsConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"gte=0"`
	QueueSize   int `mapstructure:"queue_size"   validate:"gte=0"`
}

// FlagsConfig contains the statically configured feature gates and
// dynamic configs. The services consume these through the flags.Provider
// capability, so swapping in a remote flag service later only touches
// the wiring in cmd/server.
type FlagsConfig struct {
	RunningLateSMSEnabled bool     `mapstructure:"running_late_sms_enabled"`
	ConsentsModuleEnabled bool     `mapstructure:"consents_module_enabled"`
	DisplayedNoteTasks    []string `mapstructure:"displayed_note_tasks"`
}
