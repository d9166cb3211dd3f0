package common

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OCR      OCRConfig
	Images   ImagesConfig
	Registry RegistryConfig
	LogLevel slog.Level
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // health only; empty disables it
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// DatabaseConfig holds persistence configuration. Backend is one of postgres | sqlite | mongo.
type DatabaseConfig struct {
	Backend          string
	DSN              string
	SQLitePath       string
	MongoURI         string
	MongoDatabase    string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// OCRConfig holds rasterizer and recognizer configuration
type OCRConfig struct {
	Rasterizer    string // poppler | fitz
	Engine        string // cli | gosseract
	Pdftoppm      string
	Tesseract     string
	Language      string
	DPI           int
	TessdataDir   string
	HeicConverter string
	ScratchDir    string
}

// ImagesConfig holds where enhanced/raw page bitmaps are kept. Backend is local | s3.
type ImagesConfig struct {
	Backend     string
	LocalDir    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
}

// RegistryConfig holds the image registry backend. Backend is memory | redis.
type RegistryConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	TTL           time.Duration
}

// LoadConfig loads configuration from environment variables, after merging any .env files found.
func LoadConfig(envFiles ...string) *Config {
	loadDotenv(envFiles...)

	return &Config{
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ""),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 25<<20),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 3*time.Minute),
		},
		Database: DatabaseConfig{
			Backend:          strings.ToLower(getEnv("DB_BACKEND", "postgres")),
			DSN:              getEnv("DATABASE_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "./rxscan.db"),
			MongoURI:         getEnv("MONGO_URI", ""),
			MongoDatabase:    getEnv("MONGO_DATABASE", "rxscan"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 5*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		OCR: OCRConfig{
			Rasterizer:    strings.ToLower(getEnv("RASTERIZER", "poppler")),
			Engine:        strings.ToLower(getEnv("OCR_ENGINE", "cli")),
			Pdftoppm:      binaryIn(getEnv("POPPLER_PATH", ""), "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_ENGINE_PATH", "tesseract"),
			Language:      getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("RASTER_DPI", 300),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			HeicConverter: getEnv("HEIC_CONVERTER", "magick"),
			ScratchDir:    getEnv("SCRATCH_DIR", os.TempDir()),
		},
		Images: ImagesConfig{
			Backend:     strings.ToLower(getEnv("IMAGE_STORE", "local")),
			LocalDir:    getEnv("IMAGE_DIR", "./data/images"),
			S3Endpoint:  getEnv("S3_ENDPOINT", ""),
			S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("S3_SECRET_KEY", ""),
			S3Bucket:    getEnv("S3_BUCKET", "rxscan-images"),
			S3Region:    getEnv("S3_REGION", "us-east-1"),
			S3UseSSL:    getEnvAsBool("S3_USE_SSL", true),
		},
		Registry: RegistryConfig{
			Backend:       strings.ToLower(getEnv("REGISTRY_BACKEND", "memory")),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			RedisPrefix:   getEnv("REDIS_PREFIX", "rxscan:images:"),
			TTL:           getEnvAsDuration("REGISTRY_TTL", 0),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// loadDotenv merges .env files into the process environment; missing files are not an error.
// Variables already set in the environment win.
func loadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("failed to load env file", "file", f, "error", err)
		}
	}
}

// binaryIn joins a directory (POPPLER_PATH points at poppler's bin dir) with a binary name.
func binaryIn(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(value)); err == nil {
			return lvl
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError(CodeConfig, "DATABASE_URL is required for the postgres backend", ErrInvalidInput)
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return NewAppError(CodeConfig, "SQLITE_PATH is required for the sqlite backend", ErrInvalidInput)
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			return NewAppError(CodeConfig, "MONGO_URI is required for the mongo backend", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown DB_BACKEND %q", c.Database.Backend), ErrInvalidInput)
	}

	switch c.Images.Backend {
	case "local":
		if c.Images.LocalDir == "" {
			return NewAppError(CodeConfig, "IMAGE_DIR is required for the local image store", ErrInvalidInput)
		}
	case "s3":
		if c.Images.S3Endpoint == "" || c.Images.S3Bucket == "" {
			return NewAppError(CodeConfig, "S3_ENDPOINT and S3_BUCKET are required for the s3 image store", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown IMAGE_STORE %q", c.Images.Backend), ErrInvalidInput)
	}

	switch c.Registry.Backend {
	case "memory", "redis":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown REGISTRY_BACKEND %q", c.Registry.Backend), ErrInvalidInput)
	}

	switch c.OCR.Rasterizer {
	case "poppler", "fitz":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown RASTERIZER %q", c.OCR.Rasterizer), ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "cli", "gosseract":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown OCR_ENGINE %q", c.OCR.Engine), ErrInvalidInput)
	}

	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
