// Package config loads service configuration from a YAML file with
// environment variable overrides.
//
// .env files are loaded first: ENV_FILE when set, otherwise .env.local and
// .env from the working directory. Any field with an `env` tag is then
// overridden by that variable when it is non-empty.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bdougie/toxiclens/internal/models"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
	Model      ModelConfig      `yaml:"model"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	Mode            string        `yaml:"mode" env:"GIN_MODE"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type YouTubeConfig struct {
	APIKey            string        `yaml:"api_key" env:"YOUTUBE_API_KEY"`
	Endpoint          string        `yaml:"endpoint" env:"YOUTUBE_ENDPOINT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"YOUTUBE_RPS"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ModelConfig struct {
	URL            string        `yaml:"url" env:"MODEL_URL"`
	Name           string        `yaml:"name" env:"MODEL_NAME"`
	Timeout        time.Duration `yaml:"timeout" env:"MODEL_TIMEOUT"`
	Vocabulary     string        `yaml:"vocabulary" env:"MODEL_VOCABULARY"`
	SequenceLength int           `yaml:"sequence_length"`
	MaxTokens      int           `yaml:"max_tokens"`
}

type ClassifierConfig struct {
	BatchSize  int       `yaml:"batch_size" env:"CLASSIFIER_BATCH_SIZE"`
	Workers    int       `yaml:"workers" env:"CLASSIFIER_WORKERS"`
	Thresholds []float32 `yaml:"thresholds"`
}

type CacheConfig struct {
	RedisURL   string        `yaml:"redis_url" env:"REDIS_URL"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER"`
	Dir         string `yaml:"dir" env:"STORAGE_DIR"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	QueueSize   int    `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Storage drivers.
const (
	DriverNone     = "none"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			Mode:            "release",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		YouTube: YouTubeConfig{
			RequestsPerSecond: 10,
			Timeout:           15 * time.Second,
		},
		Model: ModelConfig{
			URL:            "http://localhost:8501",
			Name:           "toxicity",
			Timeout:        60 * time.Second,
			Vocabulary:     "vocabulary.txt",
			SequenceLength: 1800,
			MaxTokens:      200000,
		},
		Classifier: ClassifierConfig{
			BatchSize:  32,
			Workers:    4,
			Thresholds: append([]float32(nil), models.DefaultThresholds[:]...),
		},
		Cache: CacheConfig{
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
		},
		Storage: StorageConfig{
			Driver:    DriverNone,
			Dir:       "history",
			QueueSize: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvToStruct(reflect.ValueOf(cfg).Elem())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Thresholds returns the configured cutoffs as a ThresholdVector.
func (c *Config) Thresholds() models.ThresholdVector {
	var t models.ThresholdVector
	copy(t[:], c.Classifier.Thresholds)
	return t
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if c.Model.URL == "" {
		errs = append(errs, &ValidationError{Field: "model.url", Message: "is required"})
	}
	if c.Model.SequenceLength <= 0 {
		errs = append(errs, &ValidationError{Field: "model.sequence_length", Message: "must be positive"})
	}
	if c.Classifier.BatchSize <= 0 {
		errs = append(errs, &ValidationError{Field: "classifier.batch_size", Message: "must be positive"})
	}
	if c.Classifier.Workers <= 0 {
		errs = append(errs, &ValidationError{Field: "classifier.workers", Message: "must be positive"})
	}
	if len(c.Classifier.Thresholds) != models.NumClasses {
		errs = append(errs, &ValidationError{
			Field:   "classifier.thresholds",
			Message: fmt.Sprintf("must have %d values", models.NumClasses),
		})
	} else if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, &ValidationError{Field: "classifier.thresholds", Message: err.Error()})
	}

	switch c.Storage.Driver {
	case DriverNone, DriverFile:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, &ValidationError{Field: "storage.database_url", Message: "is required for postgres"})
		}
	default:
		errs = append(errs, &ValidationError{Field: "storage.driver", Message: "must be one of: none, file, postgres"})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{Field: "log.level", Message: "must be one of: debug, info, warn, error"})
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, &ValidationError{Field: "log.format", Message: "must be one of: text, json"})
	}

	return errors.Join(errs...)
}

// loadEnvFiles loads ENV_FILE, or .env.local then .env. Missing files are
// ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyEnvToStruct(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			applyEnvToStruct(field)
			continue
		}

		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" {
			continue
		}
		if envVal := os.Getenv(envTag); envVal != "" {
			setFieldFromString(field, envVal)
		}
	}
}

func setFieldFromString(field reflect.Value, val string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(val); err == nil {
				field.SetInt(int64(d))
			}
		} else if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			field.SetFloat(f)
		}

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}
