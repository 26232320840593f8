package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

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
	KafkaBrokers      []string
	KafkaGroupID      string
	OutcomeEventTopic string
	ModelEventTopic   string

	// Feature Store
	FeatureOnlinePrefix  string
	FeatureStoreCacheTTL time.Duration

	// Risk model
	ArtifactDir             string
	KeywordTablesPath       string
	TrainingMinRows         int
	TrainingMinPositives    int
	TrainingAllowLowPos     bool
	TrainingDataSource      string
	ExternalDatasetPath     string
	ExternalDatasetURL      string
	TrainingMaxRows         int
	TrainingRandomSeed      int64
	TrainingReliabilityPlot bool
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8089"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "synaptica"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "synaptica123"),
		PostgresDB:       getEnv("POSTGRES_DB", "synaptica"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:      getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "synaptica-riskscore"),
		OutcomeEventTopic: getEnv("RISK_OUTCOME_TOPIC", "patient-outcome-events"),
		ModelEventTopic:   getEnv("RISK_MODEL_TOPIC", "risk-model-events"),

		FeatureOnlinePrefix:  getEnv("FEATURE_ONLINE_PREFIX", "risk:features"),
		FeatureStoreCacheTTL: getDuration("FEATURE_STORE_CACHE_TTL", 5*time.Minute),

		ArtifactDir:             getEnv("RISK_ARTIFACT_DIR", "./artifacts"),
		KeywordTablesPath:       getEnv("RISK_KEYWORD_TABLES", ""),
		TrainingMinRows:         getIntEnv("RISK_MIN_ROWS", 25),
		TrainingMinPositives:    getIntEnv("RISK_MIN_POSITIVES", 5),
		TrainingAllowLowPos:     getBoolEnv("RISK_ALLOW_LOW_POSITIVES", false),
		TrainingDataSource:      getEnv("RISK_DATA_SOURCE", "internal-outcomes"),
		ExternalDatasetPath:     getEnv("RISK_EXTERNAL_DATASET_PATH", "./data/diabetic_data.csv"),
		ExternalDatasetURL:      getEnv("RISK_EXTERNAL_DATASET_URL", ""),
		TrainingMaxRows:         getIntEnv("RISK_MAX_ROWS", 50000),
		TrainingRandomSeed:      int64(getIntEnv("RISK_RANDOM_SEED", 42)),
		TrainingReliabilityPlot: getBoolEnv("RISK_RELIABILITY_PLOT", false),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
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
