package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jarvis.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, "http://127.0.0.1:8188", cfg.ComfyUI.URL)
	assert.Equal(t, "gguf", cfg.Media.WanEncoder)
	assert.Equal(t, 3.0, cfg.Media.WanShift)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	dir := t.TempDir()
	path := filepath.Join(dir, "jarvis.json")
	content := `{
		"comfyui": {"url": "http://127.0.0.1:8188"},
		"telegram": {"bot_token": "${TELEGRAM_BOT_TOKEN}", "chat_id": "${TELEGRAM_CHAT_ID}"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
}

func TestLoad_SecretsFile(t *testing.T) {
	dir := t.TempDir()

	secrets := filepath.Join(dir, "secrets.env")
	require.NoError(t, os.WriteFile(secrets, []byte(
		"# comment\n\nJARVIS_TEST_SECRET=\"hunter2\"\nbroken line\n"), 0600))

	path := filepath.Join(dir, "jarvis.json")
	content := `{
		"secrets_file": "` + secrets + `",
		"comfyui": {"url": "http://127.0.0.1:8188"},
		"telegram": {"bot_token": "${JARVIS_TEST_SECRET}", "chat_id": "1"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Cleanup(func() { os.Unsetenv("JARVIS_TEST_SECRET") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Telegram.BotToken)
}

func TestLoad_SecretsFileDoesNotOverrideEnv(t *testing.T) {
	t.Setenv("JARVIS_TEST_SECRET2", "from-shell")

	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.env")
	require.NoError(t, os.WriteFile(secrets, []byte("JARVIS_TEST_SECRET2=from-file\n"), 0600))

	path := filepath.Join(dir, "jarvis.json")
	content := `{
		"secrets_file": "` + secrets + `",
		"comfyui": {"url": "http://127.0.0.1:8188"},
		"telegram": {"bot_token": "${JARVIS_TEST_SECRET2}", "chat_id": "1"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-shell", cfg.Telegram.BotToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"empty url", func(c *Config) { c.ComfyUI.URL = "" }, "comfyui.url"},
		{"bad url scheme", func(c *Config) { c.ComfyUI.URL = "ftp://x" }, "http(s)"},
		{"negative timeout", func(c *Config) { c.ComfyUI.Timeout = -1 }, "timeout"},
		{"shift out of range", func(c *Config) { c.Media.WanShift = 101 }, "wan_shift"},
		{"bad encoder", func(c *Config) { c.Media.WanEncoder = "fp8" }, "wan_encoder"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDeriveCachePath(t *testing.T) {
	assert.Equal(t, "/data/ML.cache.db", DeriveCachePath("/data/ML.accdb"))
	assert.Equal(t, "db.cache.db", DeriveCachePath("db.mdb"))
}

func TestJobTimeout(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "40m0s", cfg.JobTimeout().String())
	cfg.ComfyUI.Timeout = 60
	assert.Equal(t, "1m0s", cfg.JobTimeout().String())
}
