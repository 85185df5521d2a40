package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Import   ImportConfig
	Queue    QueueConfig
	Topic    TopicConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	PublicBaseURL   string
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	DataDir      string
	Bucket       string
	UploadFolder string
	ParsedFolder string
}

type ImportConfig struct {
	SigningSecret string
	URLExpiry     time.Duration
}

type QueueConfig struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	MaxReceiveCount   int
	Consumers         int
	Buffer            int
}

type TopicConfig struct {
	Name          string
	PriceAlertMin float64
}

type DatabaseConfig struct {
	PostgresDSN string
	RedisAddr   string
}

type LoggingConfig struct {
	Level string
}

// requiredVars enumerates the environment variables that have no sane
// default. Startup fails naming every one that is absent.
var requiredVars = []string{
	"BUCKET_NAME",
	"SIGNING_SECRET",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment values")
	}

	var missing []string
	for _, name := range requiredVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			DataDir:      getEnv("DATA_DIR", "./data"),
			Bucket:       os.Getenv("BUCKET_NAME"),
			UploadFolder: getEnv("UPLOAD_FOLDER", "uploaded"),
			ParsedFolder: getEnv("PARSED_FOLDER", "parsed"),
		},
		Import: ImportConfig{
			SigningSecret: os.Getenv("SIGNING_SECRET"),
			URLExpiry:     getDurationEnv("SIGNED_URL_EXPIRY", time.Hour),
		},
		Queue: QueueConfig{
			BatchSize:         getIntEnv("QUEUE_BATCH_SIZE", 5),
			VisibilityTimeout: getDurationEnv("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
			MaxReceiveCount:   getIntEnv("QUEUE_MAX_RECEIVE_COUNT", 5),
			Consumers:         getIntEnv("QUEUE_CONSUMERS", 2),
			Buffer:            getIntEnv("QUEUE_BUFFER_SIZE", 1000),
		},
		Topic: TopicConfig{
			Name:          getEnv("TOPIC_NAME", "createProductTopic"),
			PriceAlertMin: getFloatEnv("TOPIC_PRICE_ALERT_MIN", 100),
		},
		Database: DatabaseConfig{
			PostgresDSN: os.Getenv("PG_DSN"),
			RedisAddr:   os.Getenv("REDIS_ADDR"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

func getFloatEnv(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %g", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration for %s: %s, using default: %s", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}
