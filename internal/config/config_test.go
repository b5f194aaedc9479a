package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "voxstitch.db", cfg.Database.SQLitePath)
	assert.Equal(t, 10*time.Minute, cfg.Import.Deadline)
	assert.Equal(t, 4, cfg.Import.MediaWorkers)
	assert.Equal(t, 30*time.Minute, cfg.Import.JobTTL)
	assert.Equal(t, 0.6, cfg.Import.DetectionThreshold)
	assert.Equal(t, 1.5, cfg.Media.PauseThreshold)
	assert.Equal(t, 24, cfg.Media.MaxFrames)
	assert.Equal(t, "voxstitch", cfg.Events.SubjectPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.Equal(t, domain.AIProviderOpenAI, cfg.AI.Settings.Transcription.Provider)
	assert.Equal(t, "whisper-1", cfg.AI.Settings.Transcription.Model)
	assert.Equal(t, "sqlite", cfg.StoreBackend())
	assert.Equal(t, "memory", cfg.LockBackend())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vox")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("IMPORT_DEADLINE", "90s")
	t.Setenv("IMPORT_MEDIA_WORKERS", "8")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("AI_PROVIDER_VISION", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("ANTHROPIC_MODEL", "claude-sonnet-4-5")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Import.Deadline)
	assert.Equal(t, 8, cfg.Import.MediaWorkers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "postgres", cfg.StoreBackend())
	assert.Equal(t, "redis", cfg.LockBackend())

	vision := cfg.AI.Settings.Vision
	assert.Equal(t, domain.AIProviderAnthropic, vision.Provider)
	assert.Equal(t, "sk-ant", vision.APIKey)
	assert.Equal(t, "claude-sonnet-4-5", vision.Model)

	transcription := cfg.AI.Settings.Transcription
	assert.Equal(t, "sk-openai", transcription.APIKey)
	assert.True(t, transcription.IsConfigured())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxstitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sqlite_path: /var/lib/voxstitch/chats.db
import_media_workers: 2
watch_dir: /srv/inbox
sweep_schedule: "0 * * * *"
`), 0o600))

	t.Setenv("WATCH_USER_ID", "alice")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/voxstitch/chats.db", cfg.Database.SQLitePath)
	assert.Equal(t, 2, cfg.Import.MediaWorkers)
	assert.Equal(t, "/srv/inbox", cfg.Watch.Dir)
	assert.Equal(t, "alice", cfg.Watch.UserID)
	assert.Equal(t, "0 * * * *", cfg.Sweep.Schedule)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"anthropic cannot transcribe", map[string]string{"AI_PROVIDER_TRANSCRIPTION": "anthropic"}},
		{"unknown provider", map[string]string{"AI_PROVIDER_OCR": "tesseract"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"zero workers", map[string]string{"IMPORT_MEDIA_WORKERS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
