package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	// Optimization engine
	OptimizerInterval  time.Duration
	RebalancerInterval time.Duration
	ArrivalLookbackHrs int
	QTableKey          string
	EngineParamsFile   string
	ModelArtifactDir   string
	ShiftMinutes       int
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "hospiq"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "hospiq123"),
		PostgresDB:       getEnv("POSTGRES_DB", "hospiq"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "hospiq-platform"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "queue-events"),

		OptimizerInterval:  getDuration("OPTIMIZER_INTERVAL", 20*time.Second),
		RebalancerInterval: getDuration("REBALANCER_INTERVAL", 20*time.Second),
		ArrivalLookbackHrs: getIntEnv("ARRIVAL_LOOKBACK_HOURS", 48),
		QTableKey:          getEnv("QTABLE_KEY", "hospiq:qtable"),
		EngineParamsFile:   getEnv("ENGINE_PARAMS_FILE", ""),
		ModelArtifactDir:   getEnv("MODEL_ARTIFACT_DIR", "./artifacts"),
		ShiftMinutes:       getIntEnv("SHIFT_MINUTES", 480),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
