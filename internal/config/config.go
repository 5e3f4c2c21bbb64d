package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App         AppConfig         `toml:"app"`
	Log         LogConfig         `toml:"log"`
	Auth        AuthConfig        `toml:"auth"`
	LLM         LLMConfig         `toml:"llm"`
	Transcriber TranscriberConfig `toml:"transcriber"`
	Audio       AudioConfig       `toml:"audio"`
	Storage     StorageConfig     `toml:"storage"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	RabbitMQ    RabbitMQConfig    `toml:"rabbitmq"`
	Mail        MailConfig        `toml:"mail"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type AuthConfig struct {
	JWTSecret       string     `toml:"jwt_secret"`
	JWTExpireMinute int        `toml:"jwt_expire_minute"`
	Users           []SeedUser `toml:"users"`
}

// SeedUser is a caregiver account provisioned at startup. PasswordHash is a bcrypt hash.
type SeedUser struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

type TranscriberConfig struct {
	Provider   string `toml:"provider"`
	BinaryPath string `toml:"binary_path"`
	ModelPath  string `toml:"model_path"`
	Language   string `toml:"language"`
	Threads    int    `toml:"threads"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
}

type AudioConfig struct {
	FFmpegPath        string   `toml:"ffmpeg_path"`
	TempDir           string   `toml:"temp_dir"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	MaxUploadMB       int      `toml:"max_upload_mb"`
}

type StorageConfig struct {
	UploadsDir   string `toml:"uploads_dir"`
	SummariesDir string `toml:"summaries_dir"`
}

type DatabaseConfig struct {
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DB       string `toml:"db"`
	Params   string `toml:"params"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type RabbitMQConfig struct {
	URL               string `toml:"url"`
	CareLogEventQueue string `toml:"care_log_event_queue"`
}

type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	SSL      bool   `toml:"ssl"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d is out of range", c.App.Port)
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.DB == "" {
			return fmt.Errorf("database.host and database.db are required for mysql")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver)
	}
	if c.Storage.UploadsDir == "" || c.Storage.SummariesDir == "" {
		return fmt.Errorf("storage.uploads_dir and storage.summaries_dir are required")
	}
	if len(c.Audio.AllowedExtensions) == 0 {
		return fmt.Errorf("audio.allowed_extensions must not be empty")
	}
	for i, ext := range c.Audio.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Audio.AllowedExtensions[i] = ext
	}
	if c.Audio.MaxUploadMB <= 0 {
		c.Audio.MaxUploadMB = 50
	}
	if c.Transcriber.Threads <= 0 {
		c.Transcriber.Threads = 4
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

// DSN returns the data source name for the configured database driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DB,
		c.Database.Params,
	)
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "homecare-ai",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			JWTSecret:       "change-me-in-production",
			JWTExpireMinute: 480,
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
		},
		Transcriber: TranscriberConfig{
			Provider:   "whisper_cpp",
			BinaryPath: "whisper-cli",
			ModelPath:  "models/ggml-base.bin",
			Language:   "en",
			Threads:    4,
			Model:      "whisper-1",
		},
		Audio: AudioConfig{
			FFmpegPath:        "ffmpeg",
			AllowedExtensions: []string{".wav", ".mp3", ".m4a"},
			MaxUploadMB:       50,
		},
		Storage: StorageConfig{
			UploadsDir:   "audio_uploads",
			SummariesDir: "summaries",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "homecare.db",
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			DB:     "homecare",
			Params: "parseTime=true&loc=Local&charset=utf8mb4",
		},
		RabbitMQ: RabbitMQConfig{
			CareLogEventQueue: "carelog.created",
		},
		Mail: MailConfig{
			Host: "smtp.gmail.com",
			Port: 465,
			SSL:  true,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", getEnv("GEMINI_API_KEY", cfg.LLM.APIKey))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)

	cfg.Transcriber.Provider = getEnv("TRANSCRIBER_PROVIDER", cfg.Transcriber.Provider)
	cfg.Transcriber.BinaryPath = getEnv("WHISPER_BINARY", cfg.Transcriber.BinaryPath)
	cfg.Transcriber.ModelPath = getEnv("WHISPER_MODEL", cfg.Transcriber.ModelPath)
	cfg.Transcriber.Language = getEnv("WHISPER_LANGUAGE", cfg.Transcriber.Language)
	cfg.Transcriber.Threads = getEnvAsInt("WHISPER_THREADS", cfg.Transcriber.Threads)
	cfg.Transcriber.BaseURL = getEnv("TRANSCRIBER_BASE_URL", cfg.Transcriber.BaseURL)
	cfg.Transcriber.APIKey = getEnv("TRANSCRIBER_API_KEY", cfg.Transcriber.APIKey)

	cfg.Audio.FFmpegPath = getEnv("FFMPEG_PATH", cfg.Audio.FFmpegPath)
	cfg.Audio.TempDir = getEnv("AUDIO_TEMP_DIR", cfg.Audio.TempDir)
	cfg.Audio.MaxUploadMB = getEnvAsInt("AUDIO_MAX_UPLOAD_MB", cfg.Audio.MaxUploadMB)

	cfg.Storage.UploadsDir = getEnv("UPLOADS_DIR", cfg.Storage.UploadsDir)
	cfg.Storage.SummariesDir = getEnv("SUMMARIES_DIR", cfg.Storage.SummariesDir)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Path = getEnv("SQLITE_PATH", cfg.Database.Path)
	cfg.Database.Host = getEnv("MYSQL_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("MYSQL_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("MYSQL_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("MYSQL_PASSWORD", cfg.Database.Password)
	cfg.Database.DB = getEnv("MYSQL_DB", cfg.Database.DB)
	cfg.Database.Params = getEnv("MYSQL_PARAMS", cfg.Database.Params)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.CareLogEventQueue = getEnv("RABBITMQ_CARE_LOG_EVENT_QUEUE", cfg.RabbitMQ.CareLogEventQueue)

	cfg.Mail.Host = getEnv("SMTP_HOST", cfg.Mail.Host)
	cfg.Mail.Port = getEnvAsInt("SMTP_PORT", cfg.Mail.Port)
	cfg.Mail.Username = getEnv("EMAIL_USERNAME", cfg.Mail.Username)
	cfg.Mail.Password = getEnv("EMAIL_PASSWORD", cfg.Mail.Password)
	cfg.Mail.From = getEnv("EMAIL_FROM", cfg.Mail.From)
	cfg.Mail.SSL = getEnvAsBool("SMTP_SSL", cfg.Mail.SSL)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
