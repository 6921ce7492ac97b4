// Package deploy performs idempotent environment setup for the media
// pipeline: the ComfyUI launcher script and model file verification.
// Everything is a dry run unless Apply is set.
package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"jarvis/internal/config"
)

const launcherScript = `#!/bin/bash
# Start ComfyUI with MPS-safe flags
export PYTORCH_ENABLE_MPS_FALLBACK=1
export PYTORCH_MPS_HIGH_WATERMARK_RATIO=0.0
cd "$COMFYUI_DIR"
echo "Starting ComfyUI on http://0.0.0.0:8188 ..."
python3 main.py --force-fp16 --use-split-cross-attention --listen "$@"
`

// Deployer writes the launcher and verifies the model layout.
type Deployer struct {
	Config *config.Config
	Apply  bool
	Out    io.Writer
}

func (d *Deployer) log(format string, args ...any) {
	prefix := "[DRY-RUN]"
	if d.Apply {
		prefix = "[APPLY]"
	}
	fmt.Fprintf(d.Out, "  %s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Run performs every step and returns an error when verification
// found missing pieces.
func (d *Deployer) Run() error {
	fmt.Fprintln(d.Out, "Media environment deployment")
	if !d.Apply {
		fmt.Fprintln(d.Out, "Dry run. Use --apply to execute.")
	}
	fmt.Fprintln(d.Out)

	if err := d.writeLauncher(); err != nil {
		return err
	}
	missing := d.verifyModels()
	if len(missing) > 0 {
		fmt.Fprintf(d.Out, "\nMissing model files (%d):\n", len(missing))
		for _, m := range missing {
			fmt.Fprintf(d.Out, "  %s\n", m)
		}
		return fmt.Errorf("%d model file(s) missing", len(missing))
	}
	fmt.Fprintln(d.Out, "\nAll model files present.")
	return nil
}

// writeLauncher creates the start-comfyui.sh script next to the
// ComfyUI checkout. Rewriting an existing script is fine, the content
// is deterministic.
func (d *Deployer) writeLauncher() error {
	path := filepath.Join(filepath.Dir(d.Config.ComfyUI.Dir), "start-comfyui.sh")
	script := "COMFYUI_DIR=" + shellQuote(d.Config.ComfyUI.Dir) + "\n" + launcherScript
	if !d.Apply {
		d.log("Would create %s", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("writing launcher script: %w", err)
	}
	d.log("Created %s", path)
	return nil
}

// verifyModels checks every configured model file and reports sizes
// for the ones found.
func (d *Deployer) verifyModels() []string {
	checks := []struct {
		subdir string
		name   string
	}{
		{"diffusion_models", d.Config.Media.WanModel},
		{"diffusion_models", d.Config.Media.WanGGUFModel},
		{"text_encoders", d.Config.Media.WanClipGGUF},
		{"text_encoders", d.Config.Media.WanClipFP16},
		{"vae", d.Config.Media.WanVAE},
		{"diffusion_models", d.Config.Media.FluxUnet},
		{"text_encoders", d.Config.Media.FluxClipL},
		{"text_encoders", d.Config.Media.FluxT5},
		{"vae", d.Config.Media.FluxVAE},
	}

	var missing []string
	fmt.Fprintln(d.Out, "Model files:")
	for _, c := range checks {
		if c.name == "" {
			continue
		}
		path := filepath.Join(d.Config.ComfyUI.Dir, "models", c.subdir, c.name)
		fi, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(d.Out, "  ✗ %s/%s\n", c.subdir, c.name)
			missing = append(missing, path)
			continue
		}
		fmt.Fprintf(d.Out, "  ✓ %s/%s (%s)\n", c.subdir, c.name, humanSize(fi.Size()))
	}
	return missing
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
