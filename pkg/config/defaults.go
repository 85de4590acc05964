// Package config provides centralized default values for Fablepress
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%g (default: %g)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Generation Pipeline
	PreviewPageLimit      int
	GenerationConcurrency int
	GenerationTimeout     time.Duration
	GenerationAspectRatio string
	GenerationImageFormat string

	// Storage
	StorageBasePath  string
	StorageTimeout   time.Duration
	SignedURLTTL     time.Duration
	SignedURLSecret  string
	PreviewBucket    string
	FinalBucket      string
	ReferenceBucket  string
	WebPreviewBucket string
	WorkingDir       string

	// Image Generation Service
	ImageGenEndpoint string
	ImageGenAPIKey   string

	// Database
	DBPath                   string
	TursoDatabaseURL         string
	TursoAuthToken           string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int

	// Web Preview Rendering
	PreviewImageWidth    int
	PreviewImageHeight   int
	PreviewWebPQuality   int
	BlurredWebPQuality   int
	BlurredPreviewWidth  int
	PreviewBlurRadius    float64
	PreviewBackgroundHex string

	// Email
	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Generation Pipeline
	PreviewPageLimit = getEnvInt("PREVIEW_PAGE_LIMIT", 3)
	GenerationConcurrency = getEnvInt("GENERATION_CONCURRENCY", 5)
	GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", 90*time.Second)
	GenerationAspectRatio = getEnvString("GENERATION_ASPECT_RATIO", "3:4")
	GenerationImageFormat = getEnvString("GENERATION_IMAGE_FORMAT", "png")

	// Storage
	StorageBasePath = getEnvString("STORAGE_BASE_PATH", "storage")
	StorageTimeout = getEnvDuration("STORAGE_TIMEOUT", 30*time.Second)
	SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", time.Hour)
	SignedURLSecret = getEnvString("SIGNED_URL_SECRET", "dev-only-secret")
	PreviewBucket = getEnvString("PREVIEW_BUCKET", "storybook-previews")
	FinalBucket = getEnvString("FINAL_BUCKET", "storybook-finals")
	ReferenceBucket = getEnvString("REFERENCE_BUCKET", "reference-images")
	WebPreviewBucket = getEnvString("WEB_PREVIEW_BUCKET", "page-previews")
	WorkingDir = getEnvString("WORKING_DIR", os.TempDir())

	// Image Generation Service
	ImageGenEndpoint = getEnvString("IMAGEGEN_ENDPOINT", "")
	ImageGenAPIKey = getEnvString("IMAGEGEN_API_KEY", "")

	// Database
	DBPath = getEnvString("DB_PATH", "fablepress.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvString("TURSO_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)

	// Web Preview Rendering
	PreviewImageWidth = getEnvInt("PREVIEW_IMAGE_WIDTH", 400)
	PreviewImageHeight = getEnvInt("PREVIEW_IMAGE_HEIGHT", 533)
	PreviewWebPQuality = getEnvInt("PREVIEW_WEBP_QUALITY", 80)
	BlurredWebPQuality = getEnvInt("BLURRED_WEBP_QUALITY", 30)
	BlurredPreviewWidth = getEnvInt("BLURRED_PREVIEW_WIDTH", 200)
	PreviewBlurRadius = getEnvFloat("PREVIEW_BLUR_RADIUS", 10)
	PreviewBackgroundHex = getEnvString("PREVIEW_BACKGROUND_HEX", "#FFFFFF")

	// Email
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	EmailFrom = getEnvString("EMAIL_FROM", "noreply@fablepress.app")
	EmailFromName = getEnvString("EMAIL_FROM_NAME", "Fablepress")
}
