package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string
	BaseURL   string
	LogLevel  string
	LogFormat string

	// Datastore
	DBDriver  string
	MongoURI  string
	DBName    string
	DBTimeout time.Duration

	// Firebase service account JSON
	KeyData string

	UploadDir      string
	AudiobookDir   string
	MaxUploadBytes int64
	VoicesFile     string

	// Synthesis
	TTSEngine        string
	CoquiBinary      string
	OpenAIAPIKey     string
	OpenAITTSSpeed   float64
	SummaryModel     string
	AudiobookWorkers int64

	// Output path locking
	RedisURL string
	LockTTL  time.Duration

	// Publishing of finished audiobooks
	PublishTarget   string
	DriveCredential string
	DriveFolderID   string
	MegaEmail       string
	MegaPassword    string

	RateLimitEvery time.Duration
	RateLimitBurst int
	CORSOrigins    []string

	PDFInfoBinary   string
	PDFToTextBinary string
	TesseractBinary string
	ExtractTimeout  time.Duration
}

// Load reads the environment. Call godotenv.Load before it to pick up .env.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.BaseURL = strings.TrimRight(envOrDefault("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port)), "/")
	cfg.LogLevel = envOrDefault("LOG_LEVEL", "info")
	cfg.LogFormat = envOrDefault("LOG_FORMAT", "json")

	cfg.DBDriver = envOrDefault("DB_DRIVER", "mongo")
	cfg.MongoURI = os.Getenv("MONGO_URI")
	cfg.DBName = envOrDefault("DB_NAME", "astra")
	cfg.KeyData = os.Getenv("KEY_DATA")
	dbTimeout, err := parseDurationEnv("DB_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_TIMEOUT: %w", err)
	}
	cfg.DBTimeout = dbTimeout

	cfg.UploadDir = envOrDefault("UPLOAD_DIR", "uploads")
	cfg.AudiobookDir = envOrDefault("AUDIOBOOK_DIR", "audiobooks")
	cfg.VoicesFile = os.Getenv("VOICES_FILE")

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	cfg.TTSEngine = envOrDefault("TTS_ENGINE", "coqui")
	cfg.CoquiBinary = envOrDefault("COQUI_BINARY", "tts")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.SummaryModel = envOrDefault("OPENAI_SUMMARY_MODEL", "gpt-4o-mini")
	cfg.OpenAITTSSpeed, err = parseFloatEnv("OPENAI_TTS_SPEED", 1.0)
	if err != nil {
		return Config{}, fmt.Errorf("parse OPENAI_TTS_SPEED: %w", err)
	}
	cfg.AudiobookWorkers, err = parseIntEnv("AUDIOBOOK_WORKERS", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse AUDIOBOOK_WORKERS: %w", err)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.LockTTL, err = parseDurationEnv("LOCK_TTL", 2*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("parse LOCK_TTL: %w", err)
	}

	cfg.PublishTarget = envOrDefault("PUBLISH_TARGET", "none")
	cfg.DriveCredential = os.Getenv("COGNI_BACKEND")
	cfg.DriveFolderID = os.Getenv("GOOGLE_DRIVE_FOLDER_ID")
	cfg.MegaEmail = os.Getenv("MEGA_EMAIL")
	cfg.MegaPassword = os.Getenv("MEGA_PASSWORD")

	cfg.RateLimitEvery, err = parseDurationEnv("RATE_LIMIT_EVERY", 2*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse RATE_LIMIT_EVERY: %w", err)
	}
	burst, err := parseIntEnv("RATE_LIMIT_BURST", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse RATE_LIMIT_BURST: %w", err)
	}
	cfg.RateLimitBurst = int(burst)
	cfg.CORSOrigins = splitList(envOrDefault("CORS_ORIGINS", "http://localhost:5173"))

	cfg.PDFInfoBinary = envOrDefault("PDFINFO_BINARY", "pdfinfo")
	cfg.PDFToTextBinary = envOrDefault("PDFTOTEXT_BINARY", "pdftotext")
	cfg.TesseractBinary = envOrDefault("TESSERACT_BINARY", "tesseract")
	cfg.ExtractTimeout, err = parseDurationEnv("EXTRACT_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse EXTRACT_TIMEOUT: %w", err)
	}

	for _, dir := range []*string{&cfg.UploadDir, &cfg.AudiobookDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve dir %s: %w", *dir, err)
		}
		*dir = abs
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.KeyData == "" {
		return fmt.Errorf("KEY_DATA environment variable not set")
	}
	switch c.TTSEngine {
	case "coqui":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for TTS_ENGINE=openai")
		}
	default:
		return fmt.Errorf("unknown TTS_ENGINE %q", c.TTSEngine)
	}
	switch c.PublishTarget {
	case "none":
	case "drive":
		if c.DriveCredential == "" {
			return fmt.Errorf("COGNI_BACKEND environment variable not set")
		}
	case "mega":
		if c.MegaEmail == "" || c.MegaPassword == "" {
			return fmt.Errorf("MEGA_EMAIL and MEGA_PASSWORD must be set")
		}
	default:
		return fmt.Errorf("unknown PUBLISH_TARGET %q", c.PublishTarget)
	}
	if c.AudiobookWorkers < 1 {
		return fmt.Errorf("AUDIOBOOK_WORKERS must be >= 1")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
