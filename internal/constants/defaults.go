package constants

// Moderation timings
const (
	DefaultPendingTTLSec      = 300
	DefaultJustBannedTTLSec   = 50
	DefaultRegistryMaxSize    = 100
	DefaultBanDurationSec     = 60
	DefaultMembershipAttempts = 3
)

// Storage defaults
const (
	DefaultStoreFile          = "spamfightbot.store"
	DefaultStoreRetryAttempts = 3
	FrontGroupsKey            = "front_groups"
)

// Telegram transport defaults
const (
	DefaultPollTimeoutSec  = 30
	DefaultRateLimitPerSec = 25
	DefaultRateLimitBurst  = 5
	DefaultUpdateBuffer    = 100
)

// Error mail defaults
const (
	DefaultMailFrom       = "spamfightbot"
	DefaultMailTag        = "spamfightbot"
	DefaultMailMinGapSec  = 3600
	DefaultMailMaxBatch   = 10
	DefaultMailTimeoutSec = 10
	DefaultSMTPAddr       = "localhost:25"
)

// Default timeout values
const (
	DefaultGracefulShutdownSec    = 10
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	DefaultBackoffInitialMs       = 500
	DefaultBackoffMaxSec          = 5
	DefaultConfigReloadDebounceMs = 100
	ServerErrorChannelSize        = 1
)

const DefaultLogLevel = "info"
