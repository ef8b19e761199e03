package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	EnvAPIKey      = "OPENAI_API_KEY"
	EnvAssistantID = "OPENAI_ASSISTANT_ID"
)

var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".txt":  MimeText,
	".docx": MimeDocx,
}

// TypeByExtension maps the extension of name to one of the known document
// types, or "" when it is not one of them.
func TypeByExtension(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

type Config struct {
	Port             int              `json:"port"`
	LogConfig        logger.LogConfig `json:"log_config"`
	Assistant        AssistantConfig  `json:"assistant"`
	Upload           UploadConfig     `json:"upload"`
	Archive          ArchiveConfig    `json:"archive"`
	CORSOrigins      []string         `json:"cors_origins"`
	RateLimitSeconds int              `json:"rate_limit_seconds"`
}

type AssistantConfig struct {
	Backend           string      `json:"backend"`
	APIKey            string      `json:"api_key"`
	AssistantID       string      `json:"assistant_id"`
	BaseURL           string      `json:"base_url"`
	PollIntervalMs    int         `json:"poll_interval_ms"`
	RunTimeoutSeconds int         `json:"run_timeout_seconds"`
	MaxContentChars   int         `json:"max_content_chars"`
	DeleteThread      bool        `json:"delete_thread"`
	Data              interface{} `json:"data"`
}

type UploadConfig struct {
	MaxFileSize  int64    `json:"max_file_size"`
	MaxFiles     int      `json:"max_files"`
	AllowedTypes []string `json:"allowed_types"`
}

type ArchiveConfig struct {
	Type        string      `json:"type"`
	Data        interface{} `json:"data"`
	KeepHours   int         `json:"keep_hours"`
	CleanupSpec string      `json:"cleanup_spec"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Type) != ""
}

func (a ArchiveConfig) Store() FileStoreConfig {
	return FileStoreConfig{Type: a.Type, Data: a.Data}
}

// BackendArgs returns the raw config handed to the assistant backend
// factory: the data object with api_key and base_url filled in when it does
// not set them itself.
func (a AssistantConfig) BackendArgs() map[string]interface{} {
	args := make(map[string]interface{})
	if m, ok := a.Data.(map[string]interface{}); ok {
		for k, v := range m {
			args[k] = v
		}
	}
	if _, ok := args["api_key"]; !ok && a.APIKey != "" {
		args["api_key"] = a.APIKey
	}
	if _, ok := args["base_url"]; !ok && a.BaseURL != "" {
		args["base_url"] = a.BaseURL
	}
	return args
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile exports the variables of a dotenv file without overriding the
// ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Default returns a config usable without a file; credentials come from the
// environment.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.normalize()
	return cfg
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port out of range: %d", cfg.Port)
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if err := cfg.Assistant.normalize(); err != nil {
		return err
	}
	if cfg.Upload.MaxFileSize <= 0 {
		cfg.Upload.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.Upload.MaxFiles <= 0 {
		cfg.Upload.MaxFiles = 20
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		cfg.Upload.AllowedTypes = []string{MimePDF, MimeText, MimeDocx}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Archive.Type)) {
	case "":
	case "local", "s3":
		if cfg.Archive.KeepHours <= 0 {
			cfg.Archive.KeepHours = 72
		}
		if cfg.Archive.CleanupSpec == "" {
			cfg.Archive.CleanupSpec = "0 * * * *"
		}
	default:
		return fmt.Errorf("archive.type must be local or s3")
	}
	if cfg.RateLimitSeconds < 0 {
		cfg.RateLimitSeconds = 0
	}
	return nil
}

func (a *AssistantConfig) normalize() error {
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = "openai"
	}
	if a.Backend != "openai" && a.Backend != "chat" {
		return fmt.Errorf("assistant.backend must be openai or chat")
	}
	if strings.TrimSpace(a.APIKey) == "" {
		a.APIKey = os.Getenv(EnvAPIKey)
	}
	if strings.TrimSpace(a.AssistantID) == "" {
		a.AssistantID = os.Getenv(EnvAssistantID)
	}
	a.AssistantID = strings.TrimSpace(a.AssistantID)
	if a.PollIntervalMs <= 0 {
		a.PollIntervalMs = 1000
	}
	if a.RunTimeoutSeconds <= 0 {
		a.RunTimeoutSeconds = 60
	}
	if a.MaxContentChars <= 0 {
		a.MaxContentChars = 15000
	}
	return nil
}
