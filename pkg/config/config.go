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

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	ScopeToken  ScopeTokenConfig
	CORS        CORSConfig
	Log         LogConfig
	Attendance  AttendanceConfig
	Scheduler   SchedulerConfig
	Propagation PropagationConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrateOnStart bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig configures validation of administrative access tokens.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// ScopeTokenConfig configures the kiosk scope tokens handed to seat-layout terminals.
type ScopeTokenConfig struct {
	Secret string
	TTL    time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig holds the attendance policy constants.
type AttendanceConfig struct {
	Timezone             string
	ResponseWindow       time.Duration
	GracePeriod          time.Duration
	BatchLimit           int
	PinMaxFailedAttempts int
	PinHashCost          int
	PinLength            int
}

// SchedulerConfig controls the wall-clock jobs.
type SchedulerConfig struct {
	Enabled          bool
	GenerationTime   string
	OperatingStart   string
	OperatingEnd     string
	StartInterval    time.Duration
	FinalizeInterval time.Duration
	JobTimeout       time.Duration
	LockTTL          time.Duration
}

// PropagationConfig tunes the schedule-change propagation queue.
type PropagationConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
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

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrateOnStart: v.GetBool("DB_MIGRATE_ON_START"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.ScopeToken = ScopeTokenConfig{
		Secret: v.GetString("SCOPE_TOKEN_SECRET"),
		TTL:    parseDuration(v.GetString("SCOPE_TOKEN_TTL"), 90*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		Timezone:             v.GetString("ATTENDANCE_TIMEZONE"),
		ResponseWindow:       parseDuration(v.GetString("ATTENDANCE_RESPONSE_WINDOW"), 30*time.Minute),
		GracePeriod:          parseDuration(v.GetString("ATTENDANCE_GRACE_PERIOD"), 5*time.Minute),
		BatchLimit:           positiveOr(v.GetInt("ATTENDANCE_BATCH_LIMIT"), 500),
		PinMaxFailedAttempts: positiveOr(v.GetInt("PIN_MAX_FAILED_ATTEMPTS"), 5),
		PinHashCost:          v.GetInt("PIN_HASH_COST"),
		PinLength:            positiveOr(v.GetInt("PIN_LENGTH"), 4),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:          v.GetBool("ENABLE_SCHEDULER"),
		GenerationTime:   v.GetString("SCHEDULER_GENERATION_TIME"),
		OperatingStart:   v.GetString("SCHEDULER_OPERATING_START"),
		OperatingEnd:     v.GetString("SCHEDULER_OPERATING_END"),
		StartInterval:    parseDuration(v.GetString("SCHEDULER_START_INTERVAL"), 30*time.Minute),
		FinalizeInterval: parseDuration(v.GetString("SCHEDULER_FINALIZE_INTERVAL"), 10*time.Minute),
		JobTimeout:       parseDuration(v.GetString("SCHEDULER_JOB_TIMEOUT"), 5*time.Minute),
		LockTTL:          parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 4*time.Minute),
	}

	cfg.Propagation = PropagationConfig{
		Workers:    positiveOr(v.GetInt("PROPAGATION_WORKERS"), 2),
		Retries:    positiveOr(v.GetInt("PROPAGATION_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("PROPAGATION_RETRY_DELAY"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "studyhall_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATE_ON_START", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "studyhall-admin")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("SCOPE_TOKEN_SECRET", "dev_scope_secret")
	v.SetDefault("SCOPE_TOKEN_TTL", "2160h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_TIMEZONE", "Asia/Seoul")
	v.SetDefault("ATTENDANCE_RESPONSE_WINDOW", "30m")
	v.SetDefault("ATTENDANCE_GRACE_PERIOD", "5m")
	v.SetDefault("ATTENDANCE_BATCH_LIMIT", 500)
	v.SetDefault("PIN_MAX_FAILED_ATTEMPTS", 5)
	v.SetDefault("PIN_HASH_COST", 10)
	v.SetDefault("PIN_LENGTH", 4)

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_GENERATION_TIME", "05:00")
	v.SetDefault("SCHEDULER_OPERATING_START", "06:00")
	v.SetDefault("SCHEDULER_OPERATING_END", "23:30")
	v.SetDefault("SCHEDULER_START_INTERVAL", "30m")
	v.SetDefault("SCHEDULER_FINALIZE_INTERVAL", "10m")
	v.SetDefault("SCHEDULER_JOB_TIMEOUT", "5m")
	v.SetDefault("SCHEDULER_LOCK_TTL", "4m")

	v.SetDefault("PROPAGATION_WORKERS", 2)
	v.SetDefault("PROPAGATION_RETRIES", 3)
	v.SetDefault("PROPAGATION_RETRY_DELAY", "5s")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
