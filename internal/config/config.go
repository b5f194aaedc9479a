// Package config loads voxstitch settings from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

type (
	Config struct {
		Database
		Redis
		Events
		AI
		Media
		Import
		Log
		Telemetry
		Watch
		HTTP
		Sweep
	}

	Database struct {
		URL             string // Postgres; SQLite is used when empty
		SQLitePath      string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		ConnMaxIdleTime time.Duration
	}
	Redis struct {
		URL string // Redis lock and quota when set
	}
	Events struct {
		NATSURL       string
		NATSToken     string
		SubjectPrefix string
	}
	AI struct {
		Settings   domain.AISettings
		MaxRetries int
	}
	Media struct {
		FFmpegPath     string
		PauseThreshold float64
		SceneThreshold float64
		FrameRate      float64
		MaxFrames      int
	}
	Import struct {
		Deadline           time.Duration
		MediaWorkers       int
		JobTTL             time.Duration
		DetectionThreshold float64
		QuotaLimit         int // Per user per window; zero disables
		QuotaWindow        time.Duration
	}
	Log struct {
		Level  string
		Format string // "json" or "text"
	}
	Telemetry struct {
		Endpoint    string
		Insecure    bool
		ServiceName string
	}
	Watch struct {
		Dir    string
		UserID string
	}
	HTTP struct {
		Port int
	}
	Sweep struct {
		Schedule string // Cron format
	}
)

// Load reads configuration. Environment variables override values from the
// file at path, which may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Database: Database{
			URL:             v.GetString("DATABASE_URL"),
			SQLitePath:      v.GetString("SQLITE_PATH"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Redis: Redis{
			URL: v.GetString("REDIS_URL"),
		},
		Events: Events{
			NATSURL:       v.GetString("NATS_URL"),
			NATSToken:     v.GetString("NATS_TOKEN"),
			SubjectPrefix: v.GetString("EVENTS_SUBJECT_PREFIX"),
		},
		AI: AI{
			Settings:   aiSettings(v),
			MaxRetries: v.GetInt("AI_MAX_RETRIES"),
		},
		Media: Media{
			FFmpegPath:     v.GetString("FFMPEG_PATH"),
			PauseThreshold: v.GetFloat64("MEDIA_PAUSE_THRESHOLD"),
			SceneThreshold: v.GetFloat64("MEDIA_SCENE_THRESHOLD"),
			FrameRate:      v.GetFloat64("MEDIA_FRAME_RATE"),
			MaxFrames:      v.GetInt("MEDIA_MAX_FRAMES"),
		},
		Import: Import{
			Deadline:           v.GetDuration("IMPORT_DEADLINE"),
			MediaWorkers:       v.GetInt("IMPORT_MEDIA_WORKERS"),
			JobTTL:             v.GetDuration("IMPORT_JOB_TTL"),
			DetectionThreshold: v.GetFloat64("IMPORT_DETECTION_THRESHOLD"),
			QuotaLimit:         v.GetInt("IMPORT_QUOTA_LIMIT"),
			QuotaWindow:        v.GetDuration("IMPORT_QUOTA_WINDOW"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Telemetry: Telemetry{
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    v.GetBool("OTEL_INSECURE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
		},
		Watch: Watch{
			Dir:    v.GetString("WATCH_DIR"),
			UserID: v.GetString("WATCH_USER_ID"),
		},
		HTTP: HTTP{
			Port: v.GetInt("PORT"),
		},
		Sweep: Sweep{
			Schedule: v.GetString("SWEEP_SCHEDULE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "voxstitch.db")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", "5m")
	v.SetDefault("db_conn_max_idle_time", "1m")
	v.SetDefault("redis_url", "")

	v.SetDefault("nats_url", "")
	v.SetDefault("nats_token", "")
	v.SetDefault("events_subject_prefix", "voxstitch")

	v.SetDefault("ai_provider_transcription", "openai")
	v.SetDefault("ai_provider_vision", "openai")
	v.SetDefault("ai_provider_ocr", "openai")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openai_transcribe_model", "whisper-1")
	v.SetDefault("openai_vision_model", "gpt-4o-mini")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_base_url", "")
	v.SetDefault("anthropic_model", "")
	v.SetDefault("ai_max_retries", 2)

	v.SetDefault("ffmpeg_path", "")
	v.SetDefault("media_pause_threshold", 1.5)
	v.SetDefault("media_scene_threshold", 0.3)
	v.SetDefault("media_frame_rate", 1.0)
	v.SetDefault("media_max_frames", 24)

	v.SetDefault("import_deadline", "10m")
	v.SetDefault("import_media_workers", 4)
	v.SetDefault("import_job_ttl", "30m")
	v.SetDefault("import_detection_threshold", 0.6)
	v.SetDefault("import_quota_limit", 0)
	v.SetDefault("import_quota_window", "24h")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_insecure", false)
	v.SetDefault("otel_service_name", "voxstitch")

	v.SetDefault("watch_dir", "")
	v.SetDefault("watch_user_id", "local")
	v.SetDefault("port", 8090)
	v.SetDefault("sweep_schedule", "*/5 * * * *") // Every 5 minutes
}

// aiSettings resolves each collaborator's provider to that provider's credentials.
func aiSettings(v *viper.Viper) domain.AISettings {
	build := func(providerKey, openAIModelKey string) domain.AIServiceSettings {
		provider := domain.AIProvider(strings.ToLower(strings.TrimSpace(v.GetString(providerKey))))
		switch provider {
		case domain.AIProviderOpenAI:
			return domain.AIServiceSettings{
				Provider: provider,
				APIKey:   v.GetString("OPENAI_API_KEY"),
				BaseURL:  v.GetString("OPENAI_BASE_URL"),
				Model:    v.GetString(openAIModelKey),
			}
		case domain.AIProviderAnthropic:
			return domain.AIServiceSettings{
				Provider: provider,
				APIKey:   v.GetString("ANTHROPIC_API_KEY"),
				BaseURL:  v.GetString("ANTHROPIC_BASE_URL"),
				Model:    v.GetString("ANTHROPIC_MODEL"),
			}
		default:
			return domain.AIServiceSettings{Provider: provider}
		}
	}

	return domain.AISettings{
		Transcription: build("AI_PROVIDER_TRANSCRIPTION", "OPENAI_TRANSCRIBE_MODEL"),
		Vision:        build("AI_PROVIDER_VISION", "OPENAI_VISION_MODEL"),
		OCR:           build("AI_PROVIDER_OCR", "OPENAI_VISION_MODEL"),
	}
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	if err := c.AI.Settings.Validate(); err != nil {
		return fmt.Errorf("ai settings: %w", err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q", domain.ErrInvalidInput, c.Log.Format)
	}
	if c.Import.Deadline <= 0 {
		return fmt.Errorf("%w: import deadline must be positive", domain.ErrInvalidInput)
	}
	if c.Import.MediaWorkers < 1 {
		return fmt.Errorf("%w: import media workers must be at least 1", domain.ErrInvalidInput)
	}
	if c.Database.URL == "" && c.Database.SQLitePath == "" {
		return fmt.Errorf("%w: either DATABASE_URL or SQLITE_PATH is required", domain.ErrInvalidInput)
	}
	return nil
}

// StoreBackend names the chat record store the settings select.
func (c *Config) StoreBackend() string {
	if c.Database.URL != "" {
		return "postgres"
	}
	return "sqlite"
}

// LockBackend names the lock implementation the settings select.
func (c *Config) LockBackend() string {
	switch {
	case c.Redis.URL != "":
		return "redis"
	case c.Database.URL != "":
		return "postgres"
	default:
		return "memory"
	}
}
