package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spamfightbot/internal/constants"
	"spamfightbot/internal/models"
	"spamfightbot/internal/security"
	"spamfightbot/internal/storage"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingToken    = models.ConfigError{Message: "missing bot token (set the TOKEN environment variable)"}
	ErrInvalidLogLevel = models.ConfigError{Message: "invalid log level, expected debug, info, warn or error"}
)

// LoadConfig reads the configuration file at path, fills in defaults and
// applies environment overrides. An empty path means defaults only. The
// bot token is taken from the environment.
func LoadConfig(path string) (*models.Config, error) {
	config, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Load is LoadConfig without the security checks. It backs offline
// maintenance commands that run without a bot token.
func Load(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		// Validate config file path to prevent directory traversal
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(file, &config)
		default:
			err = json.Unmarshal(file, &config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(c *models.Config) error {
	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidLogLevel
	}

	if c.Store.DSN == "" {
		c.Store.DSN = constants.DefaultStoreFile
	}

	if c.Telegram.PollTimeoutSec <= 0 {
		c.Telegram.PollTimeoutSec = constants.DefaultPollTimeoutSec
	}
	if c.Telegram.RateLimitPerSec <= 0 {
		c.Telegram.RateLimitPerSec = constants.DefaultRateLimitPerSec
	}
	if c.Telegram.RateLimitBurst <= 0 {
		c.Telegram.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	m := &c.Moderation
	if m.PendingTTLSec <= 0 {
		m.PendingTTLSec = constants.DefaultPendingTTLSec
	}
	if m.JustBannedTTLSec <= 0 {
		m.JustBannedTTLSec = constants.DefaultJustBannedTTLSec
	}
	if m.RegistryMaxSize <= 0 {
		m.RegistryMaxSize = constants.DefaultRegistryMaxSize
	}
	if m.BanDurationSec <= 0 {
		m.BanDurationSec = constants.DefaultBanDurationSec
	}
	if m.MembershipAttempts <= 0 {
		m.MembershipAttempts = constants.DefaultMembershipAttempts
	}

	if c.Mail.From == "" {
		c.Mail.From = constants.DefaultMailFrom
	}
	if c.Mail.Tag == "" {
		c.Mail.Tag = constants.DefaultMailTag
	}
	if c.Mail.SMTPAddr == "" {
		c.Mail.SMTPAddr = constants.DefaultSMTPAddr
	}
	if c.Mail.MinGapSec <= 0 {
		c.Mail.MinGapSec = constants.DefaultMailMinGapSec
	}
	if c.Mail.MaxBatch <= 0 {
		c.Mail.MaxBatch = constants.DefaultMailMaxBatch
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "spamfightbot"
	}
	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
		c.Tracing.SampleRate = 1.0
	}
	return nil
}

// applyEnvironmentOverrides reads every `env` tagged field
func applyEnvironmentOverrides(c *models.Config) error {
	if err := cleanenv.ReadEnv(c); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid environment override: %v", err)}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}

	if storage.Kind(c.Store.DSN) == storage.KindSQLite {
		path := strings.TrimPrefix(c.Store.DSN, "sqlite://")
		if err := security.ValidateFilePath(path); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid store path: %v", err)}
		}
	}

	if c.Server.Addr != "" && c.Server.AdminToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: admin token not set, pair removal over HTTP is disabled. Set SPAMFIGHTBOT_ADMIN_TOKEN to enable it.\n")
	}
	return nil
}
