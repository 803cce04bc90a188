package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with environment
// overrides.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`

	// Embedding backend: voyage (default), gemini, or ollama.
	EmbeddingBackend string `yaml:"embeddingBackend"`
	EmbeddingModel   string `yaml:"embeddingModel"`
	EmbeddingDim     int    `yaml:"embeddingDim"`

	// Generation backend: gemini (default) or ollama.
	GenerationBackend string `yaml:"generationBackend"`
	GenerationModel   string `yaml:"generationModel"`

	VoyageAPIKey string `yaml:"voyageAPIKey"`
	GeminiAPIKey string `yaml:"geminiAPIKey"`
	OllamaURL    string `yaml:"ollamaURL"`

	TokenSecret   string `yaml:"tokenSecret"`
	TokenIssuer   string `yaml:"tokenIssuer"`
	TokenAudience string `yaml:"tokenAudience"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	ReindexStream string `yaml:"reindexStream"`

	ChatRateLimit int `yaml:"chatRateLimit"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	LocalStorage   string `yaml:"localStorage"`
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is applied to the environment first, then environment
// variables override file values.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

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
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("EMBEDDING_BACKEND"); v != "" {
		cfg.EmbeddingBackend = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbeddingDim = n
		}
	}
	if v := os.Getenv("GENERATION_BACKEND"); v != "" {
		cfg.GenerationBackend = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("VOYAGE_API_KEY"); v != "" {
		cfg.VoyageAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
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
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.TokenSecret == "" {
		return errors.New("config: tokenSecret is required (set in config.yaml or TOKEN_SECRET)")
	}
	switch cfg.EmbeddingBackend {
	case "", "voyage", "gemini", "ollama":
	default:
		return fmt.Errorf("config: unknown embeddingBackend %q", cfg.EmbeddingBackend)
	}
	switch cfg.GenerationBackend {
	case "", "gemini", "ollama":
	default:
		return fmt.Errorf("config: unknown generationBackend %q", cfg.GenerationBackend)
	}
	if cfg.MinioEndpoint == "" && cfg.LocalStorage == "" {
		return errors.New("config: either minioEndpoint or localStorage is required")
	}
	return nil
}
