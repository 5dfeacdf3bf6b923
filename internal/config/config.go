package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	DBDSN      string
	UploadsDir string
	LogFile    string
	BaseURL    string

	// MercadoLibre application credentials
	MLAppID       string
	MLSecretKey   string
	MLRedirectURI string
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:          getenv("PORT", "3000"),
		DBDSN:         getenv("DB_DSN", "biciadmin.db"),
		UploadsDir:    getenv("UPLOADS_DIR", "./uploads"),
		LogFile:       getenv("LOG_FILE", "./biciadmin.log"),
		BaseURL:       getenv("BASE_URL", "http://localhost:3000"),
		MLAppID:       os.Getenv("ML_APP_ID"),
		MLSecretKey:   os.Getenv("ML_SECRET_KEY"),
		MLRedirectURI: os.Getenv("ML_REDIRECT_URI"),
	}

	log.Printf("[config] PORT=%s DB_DSN=%s UPLOADS_DIR=%s LOG_FILE=%s BASE_URL=%s",
		cfg.Port, cfg.DBDSN, cfg.UploadsDir, cfg.LogFile, cfg.BaseURL)
	if cfg.MLAppID == "" {
		log.Printf("[config] ML_APP_ID not set; MercadoLibre integration disabled until configured")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
