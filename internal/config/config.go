// Package config loads the YAML configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	SessionSecret string `yaml:"sessionSecret"`
	SessionTTL    string `yaml:"sessionTTL"`

	// Persistence: "file" writes blobs under dataDir, "postgres" stores them
	// in the database at databaseURL.
	PersistStrategy string `yaml:"persistStrategy"`
	DataDir         string `yaml:"dataDir"`
	DatabaseURL     string `yaml:"databaseURL"`

	// OTP challenges: "memory" or "redis".
	OTPStrategy   string `yaml:"otpStrategy"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	CountriesBaseURL string `yaml:"countriesBaseURL"`

	OTPSendDelay   string `yaml:"otpSendDelay"`
	OTPResendDelay string `yaml:"otpResendDelay"`

	// Attachments: "inline" keeps data URIs on messages, "minio" uploads them.
	AttachmentStrategy string `yaml:"attachmentStrategy"`
	MinioEndpoint      string `yaml:"minioEndpoint"`
	MinioAccessKey     string `yaml:"minioAccessKey"`
	MinioSecretKey     string `yaml:"minioSecretKey"`
	MinioBucket        string `yaml:"minioBucket"`
	MinioUseSSL        bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COUNTRIES_BASE_URL"); v != "" {
		cfg.CountriesBaseURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.SessionSecret == "" {
		return errors.New("config: sessionSecret is required (set SESSION_SECRET)")
	}
	switch cfg.PersistStrategy {
	case "", "file":
		if cfg.DataDir == "" {
			return errors.New("config: dataDir is required for the file persist strategy")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres persist strategy")
		}
	default:
		return fmt.Errorf("config: unknown persistStrategy %q", cfg.PersistStrategy)
	}
	switch cfg.OTPStrategy {
	case "", "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis otp strategy")
		}
	default:
		return fmt.Errorf("config: unknown otpStrategy %q", cfg.OTPStrategy)
	}
	switch cfg.AttachmentStrategy {
	case "", "inline":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio attachment strategy")
		}
	default:
		return fmt.Errorf("config: unknown attachmentStrategy %q", cfg.AttachmentStrategy)
	}
	return nil
}

// ParseSessionTTL parses the optional session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	return dur, nil
}

// ParseDelay parses an optional delay duration string for name.
func ParseDelay(name, delayStr string) (time.Duration, error) {
	if delayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(delayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	return dur, nil
}
