package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Google        GoogleConfig
	Storage       StorageConfig
	AWS           AWSConfig
	Transcription TranscriptionConfig
	Recording     RecordingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. Redis only carries lifecycle events.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds session token signing settings.
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
}

// GoogleConfig holds the identity provider settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // frontend callback that receives the consent result
	TokenInfoURL string
}

// StorageConfig selects where chunk blobs and artifacts live.
type StorageConfig struct {
	Backend       string // "local" or "s3"
	LocalPath     string
	StagingDir    string // local scratch space for assembly; empty = os.TempDir()
	MaxChunkBytes int64
}

// AWSConfig holds AWS credentials and the audio bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	AudioBucket     string
	Endpoint        string // optional, for S3-compatible stores
}

// TranscriptionConfig selects and configures the transcription provider.
type TranscriptionConfig struct {
	Provider   string // "mock" or "openai"
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int // 0 = no timeout
}

// RecordingConfig holds recording lifecycle settings.
type RecordingConfig struct {
	// StrictTransitions rejects uploads and status changes on ended recordings.
	StrictTransitions bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "transcription"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "your-secret-key"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 30),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:3000/auth/callback"),
			TokenInfoURL: getEnv("GOOGLE_TOKENINFO_URL", "https://oauth2.googleapis.com/tokeninfo"),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
			LocalPath:     getEnv("AUDIO_STORAGE_PATH", "audio_files"),
			StagingDir:    getEnv("STAGING_DIR", ""),
			MaxChunkBytes: int64(getEnvInt("MAX_CHUNK_BYTES", 25*1024*1024)),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AudioBucket:     getEnv("AWS_S3_AUDIO_BUCKET", ""),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Transcription: TranscriptionConfig{
			Provider:   strings.ToLower(getEnv("TRANSCRIPTION_PROVIDER", "mock")),
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", ""),
			Model:      getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
			TimeoutSec: getEnvInt("TRANSCRIPTION_TIMEOUT_SEC", 0),
		},
		Recording: RecordingConfig{
			StrictTransitions: getEnvBool("RECORDING_STRICT_TRANSITIONS", true),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalPath == "" {
			errs = append(errs, errors.New("AUDIO_STORAGE_PATH is required for local storage"))
		}
	case "s3":
		if c.AWS.AudioBucket == "" {
			errs = append(errs, errors.New("AWS_S3_AUDIO_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	switch c.Transcription.Provider {
	case "mock":
	case "openai":
		if c.Transcription.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", c.Transcription.Provider))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWT.ExpireMinutes <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRE_MINUTES must be positive"))
	}
	if c.Storage.MaxChunkBytes <= 0 {
		errs = append(errs, errors.New("MAX_CHUNK_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
