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

// Publish sinks.
const (
	PublishSinkLTI11 = "LTI11"
	PublishSinkAGS   = "AGS"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Roles     RolesConfig
	Sweeper   SweeperConfig
	Scoring   ScoringConfig
	Publish   PublishConfig
	PoolCache PoolCacheConfig
	Exports   ExportsConfig
	Events    EventsConfig
}

// DatabaseConfig locates the PostgreSQL store. URL, when set, wins over the discrete fields.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// RedisConfig locates the quiz pool cache. URL, when set, wins over the discrete fields.
type RedisConfig struct {
	URL         string
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// JWTConfig signs the session tokens handed out after a launch.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	// LaunchKey authenticates the launch gateway on POST /sessions, in plain or bcrypt form. Empty disables issuance.
	LaunchKey string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RolesConfig maps launch roles onto the two session roles.
type RolesConfig struct {
	Instructor        string
	Learner           string
	TeachingAssistant string
}

// SweeperConfig drives the expiry sweeper.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
	Lookback time.Duration
}

// ScoringConfig holds grading constants.
type ScoringConfig struct {
	MaxTaskScore float64
}

// PublishConfig selects and tunes the score-publish sink.
type PublishConfig struct {
	Sink         string
	Timeout      time.Duration
	Workers      int
	Retries      int
	RetryDelay   time.Duration
	AGSTokenURL  string
	AGSClientID  string
	AGSSecret    string
	AGSScopes    []string
	AGSLineItems string
}

// PoolCacheConfig controls caching of quiz pools in Redis.
type PoolCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ExportsConfig configures grade sheet exports.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

// EventsConfig configures the lifecycle event publisher.
type EventsConfig struct {
	Enabled       bool
	NATSURL       string
	SubjectPrefix string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:             v.GetString("DATABASE_URL"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnectAttempts: v.GetInt("DB_CONNECT_ATTEMPTS"),
		ConnectBackoff:  parseDuration(v.GetString("DB_CONNECT_BACKOFF"), 2*time.Second),
	}

	cfg.Redis = RedisConfig{
		URL:         v.GetString("REDIS_URL"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		LaunchKey:  v.GetString("JWT_LAUNCH_KEY"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Roles = RolesConfig{
		Instructor:        v.GetString("ROLE_INSTRUCTOR"),
		Learner:           v.GetString("ROLE_LEARNER"),
		TeachingAssistant: v.GetString("ROLE_TEACHING_ASSISTANT"),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:  v.GetBool("SWEEPER_ENABLED"),
		Interval: parseDuration(v.GetString("SWEEPER_INTERVAL"), time.Minute),
		Lookback: parseDuration(v.GetString("SWEEPER_LOOKBACK"), 24*time.Hour),
	}

	maxScore := v.GetFloat64("MAX_TASK_SCORE")
	if maxScore <= 0 {
		maxScore = 10
	}
	cfg.Scoring = ScoringConfig{MaxTaskScore: maxScore}

	cfg.Publish = PublishConfig{
		Sink:         strings.ToUpper(v.GetString("PUBLISH_SINK")),
		Timeout:      parseDuration(v.GetString("PUBLISH_TIMEOUT"), 10*time.Second),
		Workers:      v.GetInt("PUBLISH_WORKERS"),
		Retries:      v.GetInt("PUBLISH_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("PUBLISH_RETRY_DELAY"), 30*time.Second),
		AGSTokenURL:  v.GetString("AGS_TOKEN_URL"),
		AGSClientID:  v.GetString("AGS_CLIENT_ID"),
		AGSSecret:    v.GetString("AGS_CLIENT_SECRET"),
		AGSScopes:    splitAndTrim(v.GetString("AGS_SCOPES")),
		AGSLineItems: v.GetString("AGS_LINE_ITEM_SUFFIX"),
	}

	cfg.PoolCache = PoolCacheConfig{
		Enabled: v.GetBool("POOL_CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("POOL_CACHE_TTL"), time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		MaxAge:          parseDuration(v.GetString("EXPORTS_MAX_AGE"), 24*time.Hour),
	}

	cfg.Events = EventsConfig{
		Enabled:       v.GetBool("EVENTS_ENABLED"),
		NATSURL:       v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("EVENTS_SUBJECT_PREFIX"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lti_assignments")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("DB_CONNECT_BACKOFF", "2s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_LAUNCH_KEY", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROLE_INSTRUCTOR", "Instructor")
	v.SetDefault("ROLE_LEARNER", "Learner")
	v.SetDefault("ROLE_TEACHING_ASSISTANT", "TeachingAssistant")

	v.SetDefault("SWEEPER_ENABLED", true)
	v.SetDefault("SWEEPER_INTERVAL", "1m")
	v.SetDefault("SWEEPER_LOOKBACK", "24h")

	v.SetDefault("MAX_TASK_SCORE", 10)

	v.SetDefault("PUBLISH_SINK", PublishSinkLTI11)
	v.SetDefault("PUBLISH_TIMEOUT", "10s")
	v.SetDefault("PUBLISH_WORKERS", 2)
	v.SetDefault("PUBLISH_RETRIES", 3)
	v.SetDefault("PUBLISH_RETRY_DELAY", "30s")
	v.SetDefault("AGS_SCOPES", "https://purl.imsglobal.org/spec/lti-ags/scope/score")
	v.SetDefault("AGS_LINE_ITEM_SUFFIX", "/scores")

	v.SetDefault("POOL_CACHE_ENABLED", true)
	v.SetDefault("POOL_CACHE_TTL", "1h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_MAX_AGE", "24h")

	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("NATS_URL", "nats://127.0.0.1:4222")
	v.SetDefault("EVENTS_SUBJECT_PREFIX", "assignments")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
