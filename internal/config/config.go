package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName     string
	HTTPPort        string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	BackendBaseURL string
	BackendTimeout time.Duration

	JWTSecret string
	LoginPath string

	PaymentKeyID    string
	PaymentCurrency string
	PaymentWindow   time.Duration

	CouponAttemptsPerMinute int

	CheckoutIdleTimeout time.Duration
	SweepInterval       time.Duration

	RedisAddr     string
	RedisPassword string

	DBHost            string
	DBPort            int
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	MigrationsDirPath string
	JournalTimeout    time.Duration
	JournalRetention  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string
}

func Load() *Config {
	return &Config{
		ServiceName:     getEnv("SERVICE_NAME", "storefront"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:5000/api"),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 10*time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),
		LoginPath: getEnv("LOGIN_PATH", "/login"),

		PaymentKeyID:    getEnv("PAYMENT_KEY_ID", ""),
		PaymentCurrency: getEnv("PAYMENT_CURRENCY", "INR"),
		PaymentWindow:   getDuration("PAYMENT_WINDOW", 15*time.Minute),

		CouponAttemptsPerMinute: getInt("COUPON_ATTEMPTS_PER_MINUTE", 10),

		CheckoutIdleTimeout: getDuration("CHECKOUT_IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval:       getDuration("CHECKOUT_SWEEP_INTERVAL", time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getInt("DB_PORT", 5432),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "storefront"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/journal/migrations"),
		JournalTimeout:    getDuration("JOURNAL_TIMEOUT", 2*time.Second),
		JournalRetention:  getDuration("JOURNAL_RETENTION", 7*24*time.Hour),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout-events"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
