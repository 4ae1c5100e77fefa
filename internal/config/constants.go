package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ChatRequestTimeout    = 5 * time.Minute
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	CleanupJobInterval          = 5 * time.Minute
	DefaultTokenMetricsInterval = 120 * time.Second
	TempMediaSchedule           = "0 0 * * *"
)

// Chat sessions
const (
	RunPollInterval    = time.Second
	SessionInactiveTTL = 15 * time.Minute
	WebSessionTTL      = 7 * 24 * time.Hour
	ChatTitleMaxRunes  = 50
)

// Outbound call budgets
const (
	AssetDownloadTimeout  = 30 * time.Second
	PixabayTimeout        = 20 * time.Second
	DexscreenerTimeout    = 15 * time.Second
	SolanaRPCTimeout      = 12 * time.Second
	PaymentForwardTimeout = 25 * time.Second
	PriceCacheTTL         = 60 * time.Second
)

// Per-site rate limiting
const (
	DefaultSiteHourlyLimit = 1000
	SiteWindow             = time.Hour
)

// Login limiting
const (
	LoginAttemptsPerMinute = 5
	PublishPerIPPerHour    = 60
	UploadMaxBytes         = 10 << 20
)

// Static layout under STATIC_DIR
const (
	WebsitesDir  = "websites"
	TempMediaDir = "temp_media"
	AudioGenDir  = "audio_gen"
)
