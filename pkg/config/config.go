package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	CORS      CORSConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Export    ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

type JWTConfig struct {
	Secret             string
	Issuer             string
	Audience           []string
	AccessExpiration   time.Duration
	RefreshExpiration  time.Duration
	RememberMeDuration time.Duration
}

// RateLimitPolicy is one row of the route policy table: requests per window
// for any route matching the method and path prefix.
type RateLimitPolicy struct {
	Method     string
	PathPrefix string
	Limit      int
	Window     time.Duration
}

// RateLimitConfig drives the sliding-window limiter and its route policy table.
type RateLimitConfig struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	// AllowOnError lets requests through when Redis is unreachable. Token
	// verification never honors this flag.
	AllowOnError bool
	Policies     []RateLimitPolicy
}

// LockoutConfig drives the failed-login guard.
type LockoutConfig struct {
	MaxAttemptsPerEmail int
	MaxAttemptsPerIP    int
	Duration            time.Duration
	FailureDelay        time.Duration
	AllowOnError        bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

// ExportConfig drives audit-trail exports and their signed download links.
type ExportConfig struct {
	Dir           string
	SigningSecret string
	DownloadTTL   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 2*time.Second),
		OpTimeout:   parseDuration(v.GetString("REDIS_OP_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:             v.GetString("JWT_SECRET"),
		Issuer:             v.GetString("JWT_ISSUER"),
		Audience:           splitAndTrim(v.GetString("JWT_AUDIENCE")),
		AccessExpiration:   parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		RefreshExpiration:  parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 30*24*time.Hour),
		RememberMeDuration: parseDuration(v.GetString("REMEMBER_ME_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
		DefaultLimit:  v.GetInt("RATE_LIMIT_PER_WINDOW"),
		DefaultWindow: parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
		AllowOnError:  v.GetBool("RATE_LIMIT_ALLOW_ON_ERROR"),
		Policies:      ratePolicies(v),
	}

	cfg.Lockout = LockoutConfig{
		MaxAttemptsPerEmail: v.GetInt("LOCKOUT_MAX_ATTEMPTS_PER_EMAIL"),
		MaxAttemptsPerIP:    v.GetInt("LOCKOUT_MAX_ATTEMPTS_PER_IP"),
		Duration:            parseDuration(v.GetString("LOCKOUT_DURATION"), 15*time.Minute),
		FailureDelay:        parseDuration(v.GetString("LOCKOUT_FAILURE_DELAY"), time.Second),
		AllowOnError:        v.GetBool("LOCKOUT_ALLOW_ON_ERROR"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Export = ExportConfig{
		Dir:           v.GetString("EXPORT_DIR"),
		SigningSecret: v.GetString("EXPORT_SIGNING_SECRET"),
		DownloadTTL:   parseDuration(v.GetString("EXPORT_DOWNLOAD_TTL"), time.Hour),
	}
	if cfg.Export.SigningSecret == "" {
		cfg.Export.SigningSecret = cfg.JWT.Secret
	}

	return cfg, nil
}

// ratePolicies builds the route policy table once at load time. Sensitive
// paths get tighter budgets; anything unmatched falls back to the default
// limit/window pair.
func ratePolicies(v *viper.Viper) []RateLimitPolicy {
	loginLimit := v.GetInt("RATE_LIMIT_LOGIN")
	loginWindow := parseDuration(v.GetString("RATE_LIMIT_LOGIN_WINDOW"), 5*time.Minute)
	return []RateLimitPolicy{
		{Method: "POST", PathPrefix: "/api/v1/auth/login", Limit: loginLimit, Window: loginWindow},
		{Method: "POST", PathPrefix: "/api/v1/auth/register", Limit: loginLimit, Window: loginWindow},
		{Method: "POST", PathPrefix: "/api/v1/auth/reset-password", Limit: 3, Window: time.Hour},
		{Method: "POST", PathPrefix: "/api/v1/uploads", Limit: 5, Window: time.Minute},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "scout")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_ISSUER", "scout-api")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "720h")
	v.SetDefault("REMEMBER_ME_EXPIRATION", "168h")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_PER_WINDOW", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_LOGIN", 5)
	v.SetDefault("RATE_LIMIT_LOGIN_WINDOW", "5m")
	v.SetDefault("RATE_LIMIT_ALLOW_ON_ERROR", false)

	v.SetDefault("LOCKOUT_MAX_ATTEMPTS_PER_EMAIL", 5)
	v.SetDefault("LOCKOUT_MAX_ATTEMPTS_PER_IP", 10)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("LOCKOUT_FAILURE_DELAY", "1s")
	v.SetDefault("LOCKOUT_ALLOW_ON_ERROR", true)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_DOWNLOAD_TTL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
