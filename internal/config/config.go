package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=cuadre port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string

	// Suggested fee per delivered order (price-per-order)
	SuggestedRiderFee   decimal.Decimal
	SuggestedCourierFee decimal.Decimal

	// Timezone delivery dates are interpreted in
	Location *time.Location

	Storage StorageConfig
}

type StorageConfig struct {
	Driver         string // local | s3
	LocalDir       string
	LocalURLPrefix string
	S3Region       string
	S3Bucket       string
	S3Prefix       string
	S3PublicURL    string
}

func Load() *Config {
	// .env is optional; real deployments inject the environment directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] .env could not be read: %v", err)
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		Storage: StorageConfig{
			Driver:         getEnv("STORAGE_DRIVER", "local"),
			LocalDir:       getEnv("LOCAL_UPLOAD_DIR", "./storage/evidence"),
			LocalURLPrefix: getEnv("LOCAL_UPLOAD_URL_PREFIX", "/evidence"),
			S3Region:       getEnv("S3_REGION", ""),
			S3Bucket:       getEnv("S3_BUCKET", ""),
			S3Prefix:       getEnv("S3_PREFIX", "evidence"),
			S3PublicURL:    getEnv("S3_PUBLIC_BASE_URL", ""),
		},
	}

	cfg.SuggestedRiderFee = mustDecimal("SUGGESTED_RIDER_FEE", getEnv("SUGGESTED_RIDER_FEE", "8.00"))
	cfg.SuggestedCourierFee = mustDecimal("SUGGESTED_COURIER_FEE", getEnv("SUGGESTED_COURIER_FEE", "2.00"))

	tz := getEnv("APP_TIMEZONE", "America/Lima")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatalf("[FATAL] invalid APP_TIMEZONE (%s): %v", tz, err)
	}
	cfg.Location = loc

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set, it is required.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters.")
	}
	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is using the default value, set your own Postgres DSN for production.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the default value, set your own domain for production.")
	}

	return cfg
}

func mustDecimal(key, raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		log.Fatalf("[FATAL] %s is not a valid amount: %q", key, raw)
	}
	return d
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
