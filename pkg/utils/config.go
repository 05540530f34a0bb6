package utils

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	Auth     AuthConfig
	Jobs     JobsConfig
	Booking  BookingConfig
}

type AppConfig struct {
	Name           string
	Port           string
	Debug          bool
	LogPath        string
	LogMaxSizeMB   int
	LogMaxBackups  int
	LogMaxAgeDays  int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type AuthConfig struct {
	JWTSecret   string
	ExpiryHours int
}

type JobsConfig struct {
	Enabled    bool
	MaxWorkers int
}

// BookingConfig holds the commercial and policy knobs of the booking lifecycle.
type BookingConfig struct {
	Currency               string
	CommissionRate         float64 // percent
	CodeLength             int
	CodeTTL                time.Duration
	CodeMaxAttempts        int
	LateCancelHours        int
	SevereCancelHours      int
	CancellationFeePercent float64
	CancelWindowDays       int
	MaxCancellations       int
	DisputeWindow          time.Duration
	LockTTL                time.Duration
	AutoCapture            bool
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "parcel-share")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("LOG_MAX_SIZE_MB", 10)
	viper.SetDefault("LOG_MAX_BACKUPS", 7)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 28)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("KAFKA_TOPIC", "booking-events")
	viper.SetDefault("STRIPE_TIMEOUT", "15s")
	viper.SetDefault("JWT_EXPIRY_HOURS", 24)
	viper.SetDefault("JOBS_ENABLED", true)
	viper.SetDefault("JOBS_MAX_WORKERS", 10)
	viper.SetDefault("BOOKING_CURRENCY", "eur")
	viper.SetDefault("BOOKING_COMMISSION_RATE", 15.0)
	viper.SetDefault("CODE_LENGTH", 6)
	viper.SetDefault("CODE_TTL_DAYS", 30)
	viper.SetDefault("CODE_MAX_ATTEMPTS", 3)
	viper.SetDefault("LATE_CANCEL_HOURS", 24)
	viper.SetDefault("SEVERE_CANCEL_HOURS", 48)
	viper.SetDefault("CANCELLATION_FEE_PERCENT", 5.0)
	viper.SetDefault("CANCEL_WINDOW_DAYS", 30)
	viper.SetDefault("MAX_CANCELLATIONS", 3)
	viper.SetDefault("DISPUTE_WINDOW", "0s")
	viper.SetDefault("BOOKING_LOCK_TTL", "30s")
	viper.SetDefault("BOOKING_AUTO_CAPTURE", true)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:           viper.GetString("APP_NAME"),
			Port:           viper.GetString("PORT"),
			Debug:          viper.GetBool("DEBUG"),
			LogPath:        viper.GetString("LOG_PATH"),
			LogMaxSizeMB:   viper.GetInt("LOG_MAX_SIZE_MB"),
			LogMaxBackups:  viper.GetInt("LOG_MAX_BACKUPS"),
			LogMaxAgeDays:  viper.GetInt("LOG_MAX_AGE_DAYS"),
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		Stripe: StripeConfig{
			SecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			Timeout:       viper.GetDuration("STRIPE_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSecret:   viper.GetString("JWT_SECRET"),
			ExpiryHours: viper.GetInt("JWT_EXPIRY_HOURS"),
		},
		Jobs: JobsConfig{
			Enabled:    viper.GetBool("JOBS_ENABLED"),
			MaxWorkers: viper.GetInt("JOBS_MAX_WORKERS"),
		},
		Booking: BookingConfig{
			Currency:               strings.ToLower(viper.GetString("BOOKING_CURRENCY")),
			CommissionRate:         viper.GetFloat64("BOOKING_COMMISSION_RATE"),
			CodeLength:             viper.GetInt("CODE_LENGTH"),
			CodeTTL:                time.Duration(viper.GetInt("CODE_TTL_DAYS")) * 24 * time.Hour,
			CodeMaxAttempts:        viper.GetInt("CODE_MAX_ATTEMPTS"),
			LateCancelHours:        viper.GetInt("LATE_CANCEL_HOURS"),
			SevereCancelHours:      viper.GetInt("SEVERE_CANCEL_HOURS"),
			CancellationFeePercent: viper.GetFloat64("CANCELLATION_FEE_PERCENT"),
			CancelWindowDays:       viper.GetInt("CANCEL_WINDOW_DAYS"),
			MaxCancellations:       viper.GetInt("MAX_CANCELLATIONS"),
			DisputeWindow:          viper.GetDuration("DISPUTE_WINDOW"),
			LockTTL:                viper.GetDuration("BOOKING_LOCK_TTL"),
			AutoCapture:            viper.GetBool("BOOKING_AUTO_CAPTURE"),
		},
	}

	return config, nil
}

// DefaultBookingConfig mirrors the defaults registered in LoadConfig.
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		Currency:               "eur",
		CommissionRate:         15,
		CodeLength:             6,
		CodeTTL:                30 * 24 * time.Hour,
		CodeMaxAttempts:        3,
		LateCancelHours:        24,
		SevereCancelHours:      48,
		CancellationFeePercent: 5,
		CancelWindowDays:       30,
		MaxCancellations:       3,
		LockTTL:                30 * time.Second,
		AutoCapture:            true,
	}
}

func splitList(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
