package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Redis  RedisConfig
	DB     DBConfig
	Auth   AuthConfig
	Remote RemoteConfig

	// RateLimit is a limiter rate string such as "10-M" (10 per minute).
	RateLimit string
}

type DBConfig struct {
	DSN string
}

type AuthConfig struct {
	JWTSecret  string
	AccessCode string
	TokenTTL   time.Duration
}

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, _ := strconv.Atoi(getEnv("AUTH_TOKEN_TTL_MINUTES", "480"))
	remoteTimeout, _ := strconv.Atoi(getEnv("REMOTE_TIMEOUT_SECONDS", "5"))

	return Config{
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			DSN: getEnv("LOYALTY_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", "152fe54a-ac31-4d3c-b94b-6135cc25c55a"),
			AccessCode: getEnv("POS_ACCESS_CODE", ""),
			TokenTTL:   time.Duration(tokenTTL) * time.Minute,
		},
		Remote: RemoteConfig{
			BaseURL: getEnv("REMOTE_BASE_URL", "http://localhost:8080"),
			Timeout: time.Duration(remoteTimeout) * time.Second,
		},
		RateLimit: getEnv("POS_RATE_LIMIT", "10-M"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
