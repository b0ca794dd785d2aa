package constants

// Window and pagination defaults
const (
	DefaultWindowCap       = 200
	DefaultInitialTailSize = 20
	DefaultPageSize        = 20
)

// Timer defaults for the live-update pipeline
const (
	DefaultFlushIntervalMs  = 300
	DefaultScrollThrottleMs = 300
)

// Mutation policy defaults
const (
	DefaultDeleteWindowHours = 48
	SystemSenderID           = "system"
)

// Feed reconnect backoff defaults
const (
	DefaultBackoffInitialMs  = 500
	DefaultBackoffMaxSec     = 30
	DefaultBackoffMultiplier = 2.0
)

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec   = 30
	DefaultUploadTimeoutSec = 60
)

// Validation limits
const (
	MaxMessageKeyLength     = 256
	MaxConversationIDLength = 128
	MaxHandleLength         = 64
	MaxMessageTextLength    = 65536
	MaxAttachmentsPerSend   = 10
)

// Privacy settings for log output
const (
	DefaultUserIDMaskLength = 4
	DefaultKeyLogLength     = 8
)

// Outbox encryption parameters
const (
	EncryptionSalt = "chatsync-outbox-salt-v1"
)

// Outbox database retry settings
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBackoffMs     = 100
	DefaultDatabaseMaxBackoffMs  = 1000
)
