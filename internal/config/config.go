package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port          int    `envconfig:"PORT" default:"8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	Version       string `envconfig:"VERSION" default:"dev"`
	MigrateOnBoot bool   `envconfig:"MIGRATE_ON_BOOT" default:"false"`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER" default:"whispers"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	RefreshWindow time.Duration `envconfig:"SESSION_REFRESH_WINDOW" default:"5m"`
	BcryptCost    int           `envconfig:"BCRYPT_COST" default:"12"`

	RedisURL         string        `envconfig:"REDIS_URL" default:""`
	SignInRateLimit  int64         `envconfig:"SIGNIN_RATE_LIMIT" default:"10"`
	SignInRateWindow time.Duration `envconfig:"SIGNIN_RATE_WINDOW" default:"15m"`

	// ProfileProvisionDelay is a best-effort pause before the first profile
	// lookup. It does not synchronize with the provisioning trigger.
	ProfileProvisionDelay  time.Duration `envconfig:"PROFILE_PROVISION_DELAY" default:"100ms"`
	ProfileNotFoundRetries uint          `envconfig:"PROFILE_NOT_FOUND_RETRIES" default:"2"`
	ProfileRetryInterval   time.Duration `envconfig:"PROFILE_RETRY_INTERVAL" default:"100ms"`
	ProfileTimeout         time.Duration `envconfig:"PROFILE_TIMEOUT" default:"5s"`

	SessionIdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	SettleTimeout        time.Duration `envconfig:"SESSION_SETTLE_TIMEOUT" default:"3s"`
	CookieSecure         bool          `envconfig:"COOKIE_SECURE" default:"false"`

	StorageEndpoint           string `envconfig:"STORAGE_ENDPOINT" default:""`
	StorageRegion             string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	StorageAccessKeyID        string `envconfig:"STORAGE_ACCESS_KEY_ID" default:""`
	StorageSecretAccessKey    string `envconfig:"STORAGE_SECRET_ACCESS_KEY" default:""`
	StoragePublicURL          string `envconfig:"STORAGE_PUBLIC_URL" default:""`
	StorageAudioBucket        string `envconfig:"STORAGE_AUDIO_BUCKET" default:"audio"`
	StorageIllustrationBucket string `envconfig:"STORAGE_ILLUSTRATION_BUCKET" default:"illustrations"`

	ElevenLabsAPIKey  string `envconfig:"ELEVENLABS_API_KEY" default:""`
	ElevenLabsVoiceID string `envconfig:"ELEVENLABS_VOICE_ID" default:"EXAVITQu4vr4xnSDxMaL"`
	ElevenLabsModel   string `envconfig:"ELEVENLABS_MODEL" default:"eleven_multilingual_v2"`
	ElevenLabsBaseURL string `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io/v1"`
}

// DBConfig is the subset of configuration needed by the operator CLI.
type DBConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDB reads only the database settings.
func LoadDB() (*DBConfig, error) {
	var cfg DBConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
