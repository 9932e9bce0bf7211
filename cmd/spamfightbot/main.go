package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spamfightbot/internal/config"
	"spamfightbot/internal/constants"
	"spamfightbot/internal/errors"
	"spamfightbot/internal/maillog"
	"spamfightbot/internal/models"
	"spamfightbot/internal/pairing"
	"spamfightbot/internal/retry"
	"spamfightbot/internal/service"
	"spamfightbot/internal/storage"
	"spamfightbot/internal/telegram"
	"spamfightbot/internal/tracing"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type cliOptions struct {
	configPath   string
	logLevel     string
	mailFrom     string
	mailErrorsTo string
	adminAddr    string
}

func main() {
	// A missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	return newRootCmd(&cliOptions{})
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spamfightbot [storefile]",
		Short: "Telegram bot that removes users who join a group without being members of its front chat",
		Long: "spamfightbot moderates Telegram groups paired with a front chat or channel.\n" +
			"The bot token is read from the TOKEN environment variable.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			// The token stays in cfg only
			_ = os.Unsetenv("TOKEN")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts.configPath)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a JSON or YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "loglevel", constants.DefaultLogLevel, "log level: debug, info, warn or error")
	cmd.Flags().StringVar(&opts.mailFrom, "mail-from", constants.DefaultMailFrom, "sender address of error mails")
	cmd.Flags().StringVar(&opts.mailErrorsTo, "mail-errors-to", "", "';' separated addresses that receive warnings and errors")
	cmd.Flags().StringVar(&opts.adminAddr, "admin-addr", "", "listen address of the admin HTTP server, empty to disable")

	cmd.AddCommand(pairsCmd(opts))
	cmd.AddCommand(versionCmd())
	return cmd
}

// resolveConfig loads the configuration and lets explicitly set flags and
// the positional storefile win over it.
func resolveConfig(cmd *cobra.Command, opts *cliOptions, args []string) (*models.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("loglevel") {
		if _, err := logrus.ParseLevel(opts.logLevel); err != nil {
			return nil, config.ErrInvalidLogLevel
		}
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("mail-from") {
		cfg.Mail.From = opts.mailFrom
	}
	if flags.Changed("mail-errors-to") {
		cfg.Mail.To = maillog.ParseRecipients(opts.mailErrorsTo)
	}
	if flags.Changed("admin-addr") {
		cfg.Server.Addr = opts.adminAddr
	}
	if len(args) == 1 {
		cfg.Store.DSN = args[0]
	}
	return cfg, nil
}

func newLogger(cfg *models.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Mail.Enabled() {
		logger.AddHook(maillog.NewHook(maillog.Config{
			From:     cfg.Mail.From,
			To:       cfg.Mail.To,
			Tag:      cfg.Mail.Tag,
			MinGap:   time.Duration(cfg.Mail.MinGapSec) * time.Second,
			MaxBatch: cfg.Mail.MaxBatch,
		}, maillog.SMTPSender{Addr: cfg.Mail.SMTPAddr}))
	}
	return logger
}

// flushMail waits for an error mail that is still being sent
func flushMail(logger *logrus.Logger) {
	for _, hook := range logger.Hooks[logrus.ErrorLevel] {
		if h, ok := hook.(*maillog.Hook); ok {
			h.Flush()
		}
	}
}

// openStore opens the pairing store, retrying with backoff so a database
// that starts alongside the bot has time to come up.
func openStore(ctx context.Context, dsn string, logger *logrus.Logger) (storage.Store, error) {
	var store storage.Store
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: constants.DefaultBackoffInitialMs * time.Millisecond,
		MaxDelay:     constants.DefaultBackoffMaxSec * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultStoreRetryAttempts,
		Jitter:       true,
	}).OnRetry(func(attempt int, err error) {
		logger.WithError(err).WithField(service.LogFieldAttempt, attempt).Warn("Failed to open store, retrying")
	})

	err := backoff.Retry(ctx, func() error {
		var openErr error
		store, openErr = storage.Open(ctx, dsn)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store after retries: %w", err)
	}
	return store, nil
}

func run(ctx context.Context, cfg *models.Config, configPath string) error {
	logger := newLogger(cfg)
	defer flushMail(logger)
	errLogger := errors.FromLogrus(logger)

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
		"store":   storage.Kind(cfg.Store.DSN),
	}).Info("Starting SpamFightBot")

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	store, err := openStore(ctx, cfg.Store.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	registry := pairing.NewRegistry(store)

	client, err := telegram.NewClient(cfg.Telegram, errLogger)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}
	me, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot account: %w", err)
	}
	logger.WithFields(logrus.Fields{
		service.LogFieldUserID:   me.ID,
		service.LogFieldUserName: me.Username,
	}).Info("Logged in")

	m := cfg.Moderation
	membership := service.NewMembershipChecker(client, m.MembershipAttempts, service.WithLogger(errLogger))
	moderator, err := service.NewModerator(me, client, registry, membership, service.ModeratorConfig{
		PendingTTL:      time.Duration(m.PendingTTLSec) * time.Second,
		JustBannedTTL:   time.Duration(m.JustBannedTTLSec) * time.Second,
		RegistryMaxSize: m.RegistryMaxSize,
		BanDuration:     time.Duration(m.BanDurationSec) * time.Second,
	}, service.WithLogger(errLogger))
	if err != nil {
		return fmt.Errorf("failed to create moderator: %w", err)
	}
	newPair := service.NewNewPairHandler(me, client, registry, service.WithLogger(errLogger))
	dispatcher := service.NewDispatcher(me.Username, newPair, moderator, service.WithLogger(errLogger))

	if configPath != "" {
		watcher := config.NewConfigWatcher(configPath, cfg, logger)
		watcher.OnConfigChange(func(updated *models.Config) {
			if level, err := logrus.ParseLevel(updated.LogLevel); err == nil {
				logger.SetLevel(level)
			}
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	var server *Server
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	if cfg.Server.Addr != "" {
		server = NewServer(cfg.Server, registry, logger)
		go func() {
			if err := server.Start(); err != nil {
				serverErrCh <- fmt.Errorf("server error: %w", err)
			}
		}()
	}

	updates, err := client.Updates(ctx)
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- dispatcher.Run(ctx, updates)
	}()
	logger.Info("Polling for updates")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-runErrCh:
		if runErr != nil {
			logger.WithError(runErr).Error("Dispatcher stopped")
		}
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown admin server gracefully")
		}
	}

	logger.Info("Shutdown completed")
	return runErr
}
