package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with selected
// environment-variable overrides for secrets.
type FileConfig struct {
	Port          string `yaml:"port"`
	PublicBaseURL string `yaml:"publicBaseURL"`
	DatabaseURL   string `yaml:"databaseURL"`
	LogLevel      string `yaml:"logLevel"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	StripeSecretKey     string `yaml:"stripeSecretKey"`
	StripeWebhookSecret string `yaml:"stripeWebhookSecret"`

	LuluBaseURL      string `yaml:"luluBaseURL"`
	LuluClientKey    string `yaml:"luluClientKey"`
	LuluClientSecret string `yaml:"luluClientSecret"`

	AIProvider   string `yaml:"aiProvider"`
	AIBaseURL    string `yaml:"aiBaseURL"`
	AIAPIKey     string `yaml:"aiAPIKey"`
	AITextModel  string `yaml:"aiTextModel"`
	AIImageModel string `yaml:"aiImageModel"`

	TokenSecret   string `yaml:"tokenSecret"`
	IDPJWKSURL    string `yaml:"idpJWKSURL"`
	IDPIssuer     string `yaml:"idpIssuer"`
	IDPAudience   string `yaml:"idpAudience"`
	InternalToken string `yaml:"internalToken"`

	MaxUploadBytes              int64    `yaml:"maxUploadBytes"`
	StoryRateLimitPerMinute     int      `yaml:"storyRateLimitPerMinute"`
	TransformRateLimitPerMinute int      `yaml:"transformRateLimitPerMinute"`
	TrustedProxies              []string `yaml:"trustedProxies"`
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

	// Secrets prefer environment variables over the file.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
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
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.StripeSecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.StripeWebhookSecret = v
	}
	if v := os.Getenv("LULU_CLIENT_KEY"); v != "" {
		cfg.LuluClientKey = v
	}
	if v := os.Getenv("LULU_CLIENT_SECRET"); v != "" {
		cfg.LuluClientSecret = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AIAPIKey = v
	}
	if v := os.Getenv("SNAPTALE_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("SNAPTALE_INTERNAL_TOKEN"); v != "" {
		cfg.InternalToken = v
	}
	if v := os.Getenv("SNAPTALE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("SNAPTALE_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AIProvider == "" {
		cfg.AIProvider = "openai"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 15 << 20
	}
	if cfg.StoryRateLimitPerMinute <= 0 {
		cfg.StoryRateLimitPerMinute = 10
	}
	if cfg.TransformRateLimitPerMinute <= 0 {
		cfg.TransformRateLimitPerMinute = 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.StripeSecretKey == "" {
		return errors.New("config: stripeSecretKey is required (set in config.yaml or STRIPE_SECRET_KEY)")
	}
	if cfg.StripeWebhookSecret == "" {
		return errors.New("config: stripeWebhookSecret is required (set in config.yaml or STRIPE_WEBHOOK_SECRET)")
	}
	if cfg.LuluBaseURL == "" {
		return errors.New("config: luluBaseURL is required (set in config.yaml)")
	}
	if cfg.LuluClientKey == "" || cfg.LuluClientSecret == "" {
		return errors.New("config: lulu client credentials are required")
	}
	if cfg.AIProvider != "openai" && cfg.AIProvider != "gemini" {
		return fmt.Errorf("config: unknown aiProvider %q (want openai or gemini)", cfg.AIProvider)
	}
	if cfg.AIAPIKey == "" {
		return errors.New("config: aiAPIKey is required (set in config.yaml or AI_API_KEY)")
	}
	if cfg.TokenSecret == "" {
		return errors.New("config: tokenSecret is required (set in config.yaml or SNAPTALE_TOKEN_SECRET)")
	}
	if cfg.InternalToken == "" {
		return errors.New("config: internalToken is required (set in config.yaml or SNAPTALE_INTERNAL_TOKEN)")
	}
	if cfg.PublicBaseURL == "" {
		return errors.New("config: publicBaseURL is required (set in config.yaml)")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
