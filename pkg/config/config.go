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
	CORS      CORSConfig
	Log       LogConfig
	Rink      RinkConfig
	Booking   BookingConfig
	Calendar  CalendarConfig
	Scheduler SchedulerConfig
	Invoices  InvoiceConfig
	Notify    NotifyConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how bearer tokens minted by the identity provider are verified.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RinkConfig identifies the rink and the civil timezone all bookings are interpreted in.
type RinkConfig struct {
	Name     string
	TimeZone string
}

// BookingConfig tunes booking validation rules.
type BookingConfig struct {
	MaxOccurrences         int
	AmountEditWindowMonths int
}

// CalendarConfig governs calendar projection caching.
type CalendarConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// SchedulerConfig holds cron specs for background jobs.
type SchedulerConfig struct {
	Enabled          bool
	OccupancyRebuild string
	MonthlyInvoices  string
	InvoiceCleanup   string
}

// InvoiceConfig controls invoice document storage.
type InvoiceConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// NotifyConfig sizes the notification worker pool.
type NotifyConfig struct {
	Workers int
	Retries int
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rink = RinkConfig{
		Name:     v.GetString("RINK_NAME"),
		TimeZone: v.GetString("RINK_TIMEZONE"),
	}

	cfg.Booking = BookingConfig{
		MaxOccurrences:         v.GetInt("BOOKING_MAX_OCCURRENCES"),
		AmountEditWindowMonths: v.GetInt("BOOKING_AMOUNT_EDIT_WINDOW_MONTHS"),
	}

	cfg.Calendar = CalendarConfig{
		CacheEnabled: v.GetBool("CALENDAR_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("CALENDAR_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:          v.GetBool("ENABLE_SCHEDULER"),
		OccupancyRebuild: v.GetString("OCCUPANCY_REBUILD_SCHEDULE"),
		MonthlyInvoices:  v.GetString("INVOICE_SCHEDULE"),
		InvoiceCleanup:   v.GetString("INVOICE_CLEANUP_SCHEDULE"),
	}

	cfg.Invoices = InvoiceConfig{
		StorageDir:      v.GetString("INVOICE_STORAGE_DIR"),
		SignedURLSecret: v.GetString("INVOICE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("INVOICE_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Notify = NotifyConfig{
		Workers: v.GetInt("NOTIFY_WORKERS"),
		Retries: v.GetInt("NOTIFY_RETRIES"),
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
	v.SetDefault("DB_NAME", "ice_booking")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RINK_NAME", "Ice Rink")
	v.SetDefault("RINK_TIMEZONE", "America/New_York")

	v.SetDefault("BOOKING_MAX_OCCURRENCES", 500)
	v.SetDefault("BOOKING_AMOUNT_EDIT_WINDOW_MONTHS", 1)

	v.SetDefault("CALENDAR_CACHE_ENABLED", true)
	v.SetDefault("CALENDAR_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("OCCUPANCY_REBUILD_SCHEDULE", "@every 15m")
	v.SetDefault("INVOICE_SCHEDULE", "0 6 1 * *")
	v.SetDefault("INVOICE_CLEANUP_SCHEDULE", "@daily")

	v.SetDefault("INVOICE_STORAGE_DIR", "./invoices")
	v.SetDefault("INVOICE_SIGNED_URL_SECRET", "dev_invoice_secret")
	v.SetDefault("INVOICE_SIGNED_URL_TTL", "24h")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
}

// isMissingFile covers viper returning a raw fs error for an explicit SetConfigFile path.
func isMissingFile(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such file")
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
