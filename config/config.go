package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the process-wide connection opened by Connect. Services receive it
// through their constructors.
var DB *gorm.DB

// Settings is everything read from the environment.
type Settings struct {
	Port  string
	DBDSN string

	UseGCS          bool
	GCSBucket       string
	GCSCredentials  string
	UploadDir       string
	PublicBaseURL   string
	MaxUploadBytes  int64
	ThumbnailWidth  int

	OpenAIKey       string
	AIModel         string
	AIRatePerMinute int

	RedisAddress  string
	RedisPassword string

	VisitIntervalDays int
	ReminderInterval  time.Duration
	ReminderThreshold int

	LogLevel string

	FieldDBPath      string
	FieldServerURL   string
	FieldHTTPTimeout time.Duration
	FieldDebounce    time.Duration
	FieldPeriodic    time.Duration
	FieldProbe       time.Duration
}

// Load reads .env if present and then the process environment.
func Load() Settings {
	if err := godotenv.Load(); err != nil {
		GetLogger().Debug("No .env file found, using system environment variables")
	}

	return Settings{
		Port:  getEnv("PORT", "8080"),
		DBDSN: os.Getenv("DB_DSN"),

		// Cloud Run and explicit credentials imply GCS, as the upload handler always has.
		UseGCS: os.Getenv("USE_GCS") == "true" ||
			os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" ||
			os.Getenv("K_SERVICE") != "",
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		GCSCredentials: os.Getenv("GCS_CREDENTIALS_JSON"),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		ThumbnailWidth: getEnvInt("THUMBNAIL_WIDTH", 400),

		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		AIModel:         getEnv("AI_MODEL", "gpt-4o-mini"),
		AIRatePerMinute: getEnvInt("AI_RATE_PER_MINUTE", 10),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		VisitIntervalDays: getEnvInt("VISIT_INTERVAL_DAYS", 90),
		ReminderInterval:  getEnvDuration("REMINDER_INTERVAL", 24*time.Hour),
		ReminderThreshold: getEnvInt("REMINDER_THRESHOLD_DAYS", 14),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		FieldDBPath:      getEnv("FIELD_DB_PATH", "qareports-field.db"),
		FieldServerURL:   getEnv("FIELD_SERVER_URL", "http://localhost:8080"),
		FieldHTTPTimeout: getEnvDuration("FIELD_HTTP_TIMEOUT", 30*time.Second),
		FieldDebounce:    getEnvDuration("FIELD_DEBOUNCE", 3*time.Second),
		FieldPeriodic:    getEnvDuration("FIELD_PERIODIC_SAVE", 30*time.Second),
		FieldProbe:       getEnvDuration("FIELD_PROBE_INTERVAL", 10*time.Second),
	}
}

// Connect opens the postgres database and stores it in DB.
func Connect(s Settings) (*gorm.DB, error) {
	if s.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}
	db, err := gorm.Open(postgres.Open(s.DBDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db
	return db, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		GetLogger().Warnf("⚠️  %s=%q is not a number, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		GetLogger().Warnf("⚠️  %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}
