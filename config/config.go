package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Predictor PredictorConfig
	Storage   StorageConfig
	Trainer   TrainerConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins string
}

// PredictorConfig points at the ML sidecar. TimeoutSeconds is the shared
// budget for the paired current/race_day calls.
type PredictorConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type StorageConfig struct {
	Dir string
}

type TrainerConfig struct {
	Enabled  bool
	Schedule string
	MaxRuns  int
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func LoadConfig() (*Config, error) {
	// Optional .env for local development; real deployments use the environment.
	_ = godotenv.Load()

	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 72)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	predictorTimeout, err := getIntEnv("PREDICTOR_TIMEOUT_SEC", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid PREDICTOR_TIMEOUT_SEC: %w", err)
	}

	trainerMaxRuns, err := getIntEnv("TRAINER_MAX_RUNS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid TRAINER_MAX_RUNS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "vantage"),
			Password: getEnv("DB_PASSWORD", "vantage_dev_password"),
			Name:     getEnv("DB_NAME", "vantage"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
			ExpiryHours: jwtExpiry,
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Predictor: PredictorConfig{
			BaseURL:        getEnv("PREDICTOR_URL", "http://localhost:8090"),
			TimeoutSeconds: predictorTimeout,
		},
		Storage: StorageConfig{
			Dir: getEnv("STORAGE_DIR", "./data/blobs"),
		},
		Trainer: TrainerConfig{
			Enabled:  getEnv("TRAINER_ENABLED", "false") == "true",
			Schedule: getEnv("TRAINER_SCHEDULE", "0 3 * * *"),
			MaxRuns:  trainerMaxRuns,
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
