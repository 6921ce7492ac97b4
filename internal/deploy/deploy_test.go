package deploy

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ComfyUI.Dir = filepath.Join(t.TempDir(), "ComfyUI")
	return cfg
}

func seedModels(t *testing.T, cfg *config.Config) {
	t.Helper()
	files := map[string]string{
		"diffusion_models": cfg.Media.WanModel,
		"vae":              cfg.Media.WanVAE,
	}
	for subdir, name := range files {
		dir := filepath.Join(cfg.ComfyUI.Dir, "models", subdir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), bytes.Repeat([]byte("x"), 2048), 0o644))
	}
}

func seedAllModels(t *testing.T, cfg *config.Config) {
	t.Helper()
	checks := map[string][]string{
		"diffusion_models": {cfg.Media.WanModel, cfg.Media.WanGGUFModel, cfg.Media.FluxUnet},
		"text_encoders":    {cfg.Media.WanClipGGUF, cfg.Media.WanClipFP16, cfg.Media.FluxClipL, cfg.Media.FluxT5},
		"vae":              {cfg.Media.WanVAE, cfg.Media.FluxVAE},
	}
	for subdir, names := range checks {
		dir := filepath.Join(cfg.ComfyUI.Dir, "models", subdir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, name := range names {
			if name == "" {
				continue
			}
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("model"), 0o644))
		}
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	seedAllModels(t, cfg)
	var out bytes.Buffer
	d := &Deployer{Config: cfg, Apply: false, Out: &out}

	require.NoError(t, d.Run())
	assert.Contains(t, out.String(), "[DRY-RUN] Would create")

	launcher := filepath.Join(filepath.Dir(cfg.ComfyUI.Dir), "start-comfyui.sh")
	_, err := os.Stat(launcher)
	assert.True(t, os.IsNotExist(err), "dry run must not write the launcher")
}

func TestRun_ApplyWritesLauncher(t *testing.T) {
	cfg := testConfig(t)
	seedAllModels(t, cfg)
	var out bytes.Buffer
	d := &Deployer{Config: cfg, Apply: true, Out: &out}

	require.NoError(t, d.Run())

	launcher := filepath.Join(filepath.Dir(cfg.ComfyUI.Dir), "start-comfyui.sh")
	fi, err := os.Stat(launcher)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())

	script, err := os.ReadFile(launcher)
	require.NoError(t, err)
	assert.Contains(t, string(script), "PYTORCH_ENABLE_MPS_FALLBACK=1")
	assert.Contains(t, string(script), "PYTORCH_MPS_HIGH_WATERMARK_RATIO=0.0")
	assert.Contains(t, string(script), cfg.ComfyUI.Dir)
}

func TestRun_ReportsMissingModels(t *testing.T) {
	cfg := testConfig(t)
	seedModels(t, cfg) // only two of nine files
	var out bytes.Buffer
	d := &Deployer{Config: cfg, Apply: false, Out: &out}

	err := d.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, out.String(), "✓ diffusion_models/"+cfg.Media.WanModel)
	assert.Contains(t, out.String(), "✗ vae/"+cfg.Media.FluxVAE)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 GB", humanSize(1610612736))
}
