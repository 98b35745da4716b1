package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	// FeeRecipient receives the admin fee share of every payment.
	FeeRecipient string

	// IndexerURL, when set, receives fire-and-forget receipt batches.
	IndexerURL   string
	IndexerToken string

	// AdminAllowedCIDRs gates the manual distribution and blacklist
	// endpoints.
	AdminAllowedCIDRs []string

	Verbose bool
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "ledgerd"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		FeeRecipient: getEnv("FEE_RECIPIENT", "treasury"),

		IndexerURL:   getEnv("INDEXER_URL", ""),
		IndexerToken: getEnv("INDEXER_TOKEN", ""),

		AdminAllowedCIDRs: splitCSV(getEnv("ADMIN_ALLOWED_CIDRS", "127.0.0.1/32,::1/128")),

		Verbose: getEnv("VERBOSE", "") == "1",
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
