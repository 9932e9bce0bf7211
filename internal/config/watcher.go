package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"spamfightbot/internal/constants"
	"spamfightbot/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches the configuration file and reloads it on change
type ConfigWatcher struct {
	configPath string
	logger     *logrus.Logger
	debounce   time.Duration
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
	timer      *time.Timer
}

// NewConfigWatcher creates a new configuration watcher. current is the
// configuration already in use, or nil to have Start load it.
func NewConfigWatcher(configPath string, current *models.Config, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		logger:     logger,
		config:     current,
		debounce:   constants.DefaultConfigReloadDebounceMs * time.Millisecond,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the configuration and blocks watching it until ctx is done.
// The directory is watched rather than the file so that editors which
// replace the file on save are picked up as well.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config := cw.GetConfig()
	if config == nil {
		loaded, err := LoadConfig(cw.configPath)
		if err != nil {
			return err
		}
		config = loaded
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(cw.configPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cw.configPath, err)
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")
	target := filepath.Clean(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			cw.mu.Lock()
			if cw.timer != nil {
				cw.timer.Stop()
			}
			cw.mu.Unlock()
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cw.logger.WithField("op", event.Op.String()).Debug("Configuration file changed")
			cw.scheduleReload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			cw.logger.WithError(err).Warn("Configuration watcher error")
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// scheduleReload coalesces bursts of write events into one reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reloadConfig)
}

// reloadConfig reloads the configuration from file. Secrets only come from
// the environment at startup, so they are carried over from the running
// configuration.
func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := Load(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	if oldConfig != nil {
		if newConfig.Telegram.Token == "" {
			newConfig.Telegram.Token = oldConfig.Telegram.Token
		}
		if newConfig.Server.AdminToken == "" {
			newConfig.Server.AdminToken = oldConfig.Server.AdminToken
		}
	}
	if err := validateSecurity(newConfig); err != nil {
		cw.mu.Unlock()
		cw.logger.WithError(err).Error("Reloaded configuration is invalid")
		return
	}
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	// Notify all registered callbacks
	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

// logConfigChanges logs notable configuration changes
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.Store.DSN != new.Store.DSN {
		cw.logger.Warn("Store DSN changed, restart to apply")
	}

	if old.Moderation != new.Moderation {
		cw.logger.Warn("Moderation settings changed, restart to apply")
	}
}
