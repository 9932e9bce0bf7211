package models

// Config holds the application configuration
type Config struct {
	Telegram   TelegramConfig   `json:"telegram" yaml:"telegram"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Moderation ModerationConfig `json:"moderation" yaml:"moderation"`
	Mail       MailConfig       `json:"mail" yaml:"mail"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
	LogLevel   string           `json:"log_level" yaml:"log_level" env:"SPAMFIGHTBOT_LOG_LEVEL"`
}

// TelegramConfig holds Bot API related configurations.
// The token is never read from the config file.
type TelegramConfig struct {
	Token           string  `json:"-" yaml:"-" env:"TOKEN"`
	APIURL          string  `json:"api_url" yaml:"api_url" env:"TELEGRAM_API_URL"`
	PollTimeoutSec  int     `json:"poll_timeout_sec" yaml:"poll_timeout_sec"`
	RateLimitPerSec float64 `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `json:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// StoreConfig selects the pairing store backend.
// A plain path or sqlite:// DSN means sqlite; postgres://, redis:// and memory: pick the other backends.
type StoreConfig struct {
	DSN string `json:"dsn" yaml:"dsn" env:"SPAMFIGHTBOT_STORE"`
}

// ModerationConfig holds the registry and ban timings
type ModerationConfig struct {
	PendingTTLSec      int `json:"pending_ttl_sec" yaml:"pending_ttl_sec"`
	JustBannedTTLSec   int `json:"just_banned_ttl_sec" yaml:"just_banned_ttl_sec"`
	RegistryMaxSize    int `json:"registry_max_size" yaml:"registry_max_size"`
	BanDurationSec     int `json:"ban_duration_sec" yaml:"ban_duration_sec"`
	MembershipAttempts int `json:"membership_attempts" yaml:"membership_attempts"`
}

// MailConfig controls mailing of warning and error logs
type MailConfig struct {
	From      string   `json:"from" yaml:"from"`
	To        []string `json:"to" yaml:"to"`
	SMTPAddr  string   `json:"smtp_addr" yaml:"smtp_addr"`
	Tag       string   `json:"tag" yaml:"tag"`
	MinGapSec int      `json:"min_gap_sec" yaml:"min_gap_sec"`
	MaxBatch  int      `json:"max_batch" yaml:"max_batch"`
}

// Enabled reports whether any recipient is configured
func (m MailConfig) Enabled() bool {
	return len(m.To) > 0
}

// ServerConfig holds the admin HTTP server settings
// An empty Addr disables the server; an empty AdminToken makes /pairs read-only.
type ServerConfig struct {
	Addr       string `json:"addr" yaml:"addr" env:"SPAMFIGHTBOT_ADMIN_ADDR"`
	AdminToken string `json:"-" yaml:"-" env:"SPAMFIGHTBOT_ADMIN_TOKEN"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
