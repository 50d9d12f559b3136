package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	Store          string        `mapstructure:"STORE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string        `mapstructure:"DB_SCHEMA"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	InternalToken   string        `mapstructure:"INTERNAL_TOKEN"`
	InternalHeader  string        `mapstructure:"INTERNAL_HEADER"`
	DrAIToken       string        `mapstructure:"DRAI_API_TOKEN"`
	MeetTokenSecret string        `mapstructure:"MEET_TOKEN_SECRET"`
	MeetEarly       time.Duration `mapstructure:"MEET_EARLY"`
	MeetLate        time.Duration `mapstructure:"MEET_LATE"`

	MDAEnabled        bool   `mapstructure:"MDA_ENABLED"`
	MDAServiceURL     string `mapstructure:"MDA_SERVICE_URL"`
	InternalHealthURL string `mapstructure:"INTERNAL_HEALTH"`

	TelemedInternalURL string `mapstructure:"TELEMED_INTERNAL_URL"`
	EventSecret        string `mapstructure:"EVENT_SIGNING_SECRET"`
	EventBuffer        int    `mapstructure:"EVENT_BUFFER"`

	EventDedupWindow time.Duration `mapstructure:"EVENT_DEDUP_WINDOW"`

	BidTTL          time.Duration `mapstructure:"BID_TTL"`
	TriageRetention time.Duration `mapstructure:"TRIAGE_RETENTION"`
	EventRetention  time.Duration `mapstructure:"EVENT_RETENTION"`
	SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

// devJWTSecret is only ever used when ENV is development.
const devJWTSecret = "telemed-dev-secret-2025"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", "memory")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("INTERNAL_HEADER", "X-Internal-Token")
	v.SetDefault("DRAI_API_TOKEN", "dev-token-123")
	v.SetDefault("MEET_EARLY", "10m")
	v.SetDefault("MEET_LATE", "60m")
	v.SetDefault("MDA_SERVICE_URL", "http://localhost:8080")
	v.SetDefault("INTERNAL_HEALTH", "https://telemed-internal.onrender.com/api/dr-ai/health")
	v.SetDefault("EVENT_BUFFER", 1000)
	v.SetDefault("EVENT_DEDUP_WINDOW", "1500ms")
	v.SetDefault("BID_TTL", "2h")
	v.SetDefault("TRIAGE_RETENTION", "720h")
	v.SetDefault("EVENT_RETENTION", "2160h")
	v.SetDefault("SWEEP_INTERVAL", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT",
		"JWT_SECRET", "SESSION_TTL", "INTERNAL_TOKEN", "INTERNAL_HEADER", "DRAI_API_TOKEN",
		"MEET_TOKEN_SECRET", "MEET_EARLY", "MEET_LATE",
		"MDA_ENABLED", "MDA_SERVICE_URL", "INTERNAL_HEALTH",
		"TELEMED_INTERNAL_URL", "EVENT_SIGNING_SECRET", "EVENT_BUFFER", "EVENT_DEDUP_WINDOW",
		"BID_TTL", "TRIAGE_RETENTION", "EVENT_RETENTION", "SWEEP_INTERVAL",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.MeetTokenSecret == "" {
		cfg.MeetTokenSecret = cfg.JWTSecret
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without Authorization act as test-patient.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsePostgres reports whether domain stores are backed by PostgreSQL.
func (c *Config) UsePostgres() bool {
	return c.Store == "postgres"
}

// Validate checks that the configuration is safe to run. Every environment
// except development needs a real JWT secret; production also needs the
// internal and Dr. AI tokens. The postgres store requires DATABASE_URL.
func (c *Config) Validate() error {
	if c.Store != "memory" && c.Store != "postgres" {
		return fmt.Errorf("STORE must be \"memory\" or \"postgres\", got %q", c.Store)
	}
	if c.UsePostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
	}

	if !c.IsDev() && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return fmt.Errorf("JWT_SECRET is required when ENV=%s", c.Env)
	}

	if c.IsProduction() {
		if c.InternalToken == "" {
			return fmt.Errorf("INTERNAL_TOKEN is required in production")
		}
		if c.DrAIToken == "" || c.DrAIToken == "dev-token-123" {
			return fmt.Errorf("DRAI_API_TOKEN must be set to a non-default value in production")
		}
	}

	if c.MDAEnabled && c.MDAServiceURL == "" {
		return fmt.Errorf("MDA_SERVICE_URL is required when MDA_ENABLED is true")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}

	return nil
}
