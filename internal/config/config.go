package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Contact store backends.
const (
	ContactStoreMemory   = "memory"
	ContactStorePostgres = "postgres"
	ContactStoreRedis    = "redis"
)

type Config struct {
	Environment string
	Port        string
	LogLevel    string
	LogFile     string

	IMAPHost     string
	IMAPPort     string
	IMAPUsername string
	IMAPPassword string
	IMAPUseTLS   bool
	FetchWindow  int

	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	FromAddress   string
	FromName      string
	MessageDomain string
	ChunkBytes    int

	SentFolder string
	PendingTTL time.Duration

	ContactStore string
	ContactKey   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILVIEW_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment: env,
		Port:        getEnvOrDefault("PORT", "8080"),
		LogLevel:    getEnvOrDefault("MAILVIEW_LOG_LEVEL", "info"),
		LogFile:     os.Getenv("MAILVIEW_LOG_FILE"),

		IMAPHost:     os.Getenv("MAILVIEW_IMAP_HOST"),
		IMAPPort:     getEnvOrDefault("MAILVIEW_IMAP_PORT", "993"),
		IMAPUsername: os.Getenv("MAILVIEW_IMAP_USER"),
		IMAPPassword: os.Getenv("MAILVIEW_IMAP_PASSWORD"),
		IMAPUseTLS:   getEnvOrDefault("MAILVIEW_IMAP_TLS", "true") == "true",
		FetchWindow:  getEnvIntOrDefault("MAILVIEW_FETCH_WINDOW", 50),

		SMTPHost:      os.Getenv("MAILVIEW_SMTP_HOST"),
		SMTPPort:      getEnvOrDefault("MAILVIEW_SMTP_PORT", "587"),
		SMTPUsername:  os.Getenv("MAILVIEW_SMTP_USER"),
		SMTPPassword:  os.Getenv("MAILVIEW_SMTP_PASSWORD"),
		FromAddress:   os.Getenv("MAILVIEW_FROM_ADDRESS"),
		FromName:      os.Getenv("MAILVIEW_FROM_NAME"),
		MessageDomain: os.Getenv("MAILVIEW_MESSAGE_DOMAIN"),
		ChunkBytes:    getEnvIntOrDefault("MAILVIEW_CHUNK_BYTES", 0),

		SentFolder: getEnvOrDefault("MAILVIEW_SENT_FOLDER", "Sent"),
		PendingTTL: getEnvDurationOrDefault("MAILVIEW_PENDING_TTL", 48*time.Hour),

		ContactStore: getEnvOrDefault("MAILVIEW_CONTACT_STORE", ContactStoreMemory),
		ContactKey:   getEnvOrDefault("MAILVIEW_CONTACT_KEY", "mailview:contacts"),

		RedisAddr:     getEnvOrDefault("MAILVIEW_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("MAILVIEW_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("MAILVIEW_REDIS_DB", 0),

		DBHost:     getEnvOrDefault("MAILVIEW_DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("MAILVIEW_DB_PORT", "5432"),
		DBUsername: getEnvOrDefault("MAILVIEW_DB_USER", "mailview"),
		DBPassword: os.Getenv("MAILVIEW_DB_PASSWORD"),
		DBName:     getEnvOrDefault("MAILVIEW_DB_NAME", "mailview"),
		DBSSLMode:  getEnvOrDefault("MAILVIEW_DB_SSLMODE", "disable"),
	}

	if config.MessageDomain == "" {
		config.MessageDomain = config.SMTPHost
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("MAILVIEW_IMAP_HOST is required")
	}

	if c.SMTPHost == "" {
		return fmt.Errorf("MAILVIEW_SMTP_HOST is required")
	}

	if c.FromAddress == "" {
		return fmt.Errorf("MAILVIEW_FROM_ADDRESS is required")
	}

	switch c.ContactStore {
	case ContactStoreMemory, ContactStoreRedis:
	case ContactStorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("MAILVIEW_DB_PASSWORD is required for the postgres contact store")
		}
	default:
		return fmt.Errorf("MAILVIEW_CONTACT_STORE must be memory, redis or postgres, got %q", c.ContactStore)
	}

	return nil
}

func (c *Config) IMAPAddr() string {
	return c.IMAPHost + ":" + c.IMAPPort
}

func (c *Config) SMTPAddr() string {
	return c.SMTPHost + ":" + c.SMTPPort
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
