package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	GinMode        string
	MongoURI       string
	MongoDatabase  string
	RabbitMQURI    string
	RabbitExchange string
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	JWTSecret      string
	ServiceName    string

	SessionDuration  time.Duration
	MaxQuestions     int
	SweepInterval    time.Duration
	DailySessionCap  int
	WarnBeforeExpiry time.Duration
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		GinMode:        getEnvOrDefault("GIN_MODE", "debug"),
		MongoURI:       getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnvOrDefault("MONGO_DATABASE", "interview_service"),
		RabbitMQURI:    getEnvOrDefault("RABBITMQ_URI", ""),
		RabbitExchange: getEnvOrDefault("RABBITMQ_EXCHANGE", "interview.events"),
		LLMAPIKey:      getEnvOrDefault("API_KEY", ""),
		LLMBaseURL:     getEnvOrDefault("BASE_URL", "http://localhost:11434/v1"),
		LLMModel:       getEnvOrDefault("MODEL", "qwen3:1.7b"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", "your-jwt-secret-key"),
		ServiceName:    getEnvOrDefault("SERVICE_NAME", "interview-service"),

		SessionDuration:  getDurationOrDefault("SESSION_DURATION", 45*time.Minute),
		MaxQuestions:     getIntOrDefault("MAX_QUESTIONS", 15),
		SweepInterval:    getDurationOrDefault("SWEEP_INTERVAL", 5*time.Minute),
		DailySessionCap:  getIntOrDefault("DAILY_SESSION_CAP", 10),
		WarnBeforeExpiry: getDurationOrDefault("WARN_BEFORE_EXPIRY", 5*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid value for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}
