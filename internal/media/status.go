package media

import (
	"context"
	"os"
	"path/filepath"
)

// Status reports what the engine can currently reach.
type Status struct {
	MfluxInstalled bool              `json:"mflux_installed"`
	MfluxVenv      bool              `json:"mflux_venv"`
	ComfyUIRunning bool              `json:"comfyui_running"`
	ComfyUIDir     bool              `json:"comfyui_dir"`
	Encoder        string            `json:"encoder"` // "gguf" or "fp16"
	Unet           string            `json:"unet"`
	Shift          float64           `json:"shift"`
	ModelFiles     map[string]bool   `json:"models"`
}

// Status probes the local toolchain, the ComfyUI server and the model
// files on disk.
func (e *Engine) Status(ctx context.Context) Status {
	s := Status{
		Shift:      e.Models.Shift,
		Encoder:    "gguf",
		Unet:       "fp16",
		ModelFiles: map[string]bool{},
	}
	if e.Models.UseFP16Clip {
		s.Encoder = "fp16"
	}
	if e.Models.UseGGUFUnet {
		s.Unet = "gguf"
	}

	if e.MfluxVenv != "" {
		if _, err := os.Stat(e.MfluxVenv); err == nil {
			s.MfluxVenv = true
		}
	}
	if _, err := e.run(ctx, e.mfluxBin("mflux-generate-z-image-turbo"), "--help"); err == nil {
		s.MfluxInstalled = true
	}

	s.ComfyUIRunning = e.Comfy.Ping(ctx)

	if e.ComfyDir != "" {
		if info, err := os.Stat(e.ComfyDir); err == nil && info.IsDir() {
			s.ComfyUIDir = true
		}
		modelsDir := filepath.Join(e.ComfyDir, "models")
		checks := map[string]string{
			"unet":              filepath.Join(modelsDir, "diffusion_models", e.Models.WanUnet),
			"text_encoder_gguf": filepath.Join(modelsDir, "text_encoders", e.Models.WanClipGGUF),
			"text_encoder_fp16": filepath.Join(modelsDir, "text_encoders", e.Models.WanClipFP16),
			"vae":               filepath.Join(modelsDir, "vae", e.Models.WanVAE),
		}
		for name, path := range checks {
			_, err := os.Stat(path)
			s.ModelFiles[name] = err == nil
		}
	}

	return s
}
