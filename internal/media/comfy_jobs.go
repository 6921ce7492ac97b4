package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jarvis/internal/comfy"
	"jarvis/internal/workflow"
)

// EditOptions configures ComfyUI image editing.
type EditOptions struct {
	Image        string // local input image path
	Prompt       string
	Output       string
	Steps        int
	Denoise      float64
	Seed         *int64
	Lora         string // overrides the engine default
	LoraStrength float64
}

// Edit runs FLUX.1 Dev img2img against the ComfyUI server.
func (e *Engine) Edit(ctx context.Context, opts EditOptions) Result {
	return e.queue.Do(ctx, func(ctx context.Context) Result {
		return e.edit(ctx, opts)
	})
}

func (e *Engine) edit(ctx context.Context, opts EditOptions) Result {
	start := time.Now()

	if err := os.MkdirAll(e.WorkDir, 0755); err != nil {
		return failure(start, "create work dir: %v", err)
	}
	if !e.Comfy.Ping(ctx) {
		return failure(start, "ComfyUI is not running; start it first")
	}
	if _, err := os.Stat(opts.Image); err != nil {
		return failure(start, "input image not found: %s", opts.Image)
	}

	input := e.convertInput(ctx, opts.Image)
	uploaded, err := e.Comfy.UploadImage(ctx, input)
	if err != nil {
		return failure(start, "upload to ComfyUI: %v", err)
	}

	lora := opts.Lora
	if lora == "" {
		lora = e.DefaultLora
	}
	strength := opts.LoraStrength
	if strength == 0 {
		strength = e.LoraStrength
	}

	graph := e.Models.Edit(workflow.EditOptions{
		ImageName:    uploaded,
		Prompt:       opts.Prompt,
		Steps:        opts.Steps,
		Denoise:      opts.Denoise,
		Seed:         opts.Seed,
		Lora:         lora,
		LoraStrength: strength,
	})

	log.Printf("[Media] Editing via ComfyUI: denoise=%v steps=%d lora=%s", opts.Denoise, opts.Steps, lora)

	outputs, err := e.runGraph(ctx, graph)
	if err != nil {
		return failure(start, "%v", err)
	}
	if len(outputs) == 0 {
		return failure(start, "no output files from ComfyUI")
	}

	local, err := e.Comfy.Download(ctx, outputs[0], e.WorkDir)
	if err != nil {
		return failure(start, "retrieve image: %v", err)
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(e.WorkDir, "edit_"+shortID()+".png")
	}
	if err := moveTo(local, output); err != nil {
		return failure(start, "move output: %v", err)
	}
	return Result{OK: true, Path: output, Elapsed: elapsed(start)}
}

// AnimateOptions configures video generation. An input image selects
// image-to-video; without one the prompt drives text-to-video.
type AnimateOptions struct {
	Image  string
	Prompt string
	Output string
	Width  int
	Height int
	Frames int
	Steps  int
	Seed   *int64
}

// Animate runs Wan2.2 TI2V-5B video generation against the ComfyUI server.
func (e *Engine) Animate(ctx context.Context, opts AnimateOptions) Result {
	return e.queue.Do(ctx, func(ctx context.Context) Result {
		return e.animate(ctx, opts)
	})
}

func (e *Engine) animate(ctx context.Context, opts AnimateOptions) Result {
	start := time.Now()

	if err := os.MkdirAll(e.WorkDir, 0755); err != nil {
		return failure(start, "create work dir: %v", err)
	}
	if !e.Comfy.Ping(ctx) {
		return failure(start, "ComfyUI is not running; start it first")
	}

	var imageName string
	mode := "T2V"
	if opts.Image != "" {
		if _, err := os.Stat(opts.Image); err != nil {
			return failure(start, "input image not found: %s", opts.Image)
		}
		input := e.convertInput(ctx, opts.Image)
		uploaded, err := e.Comfy.UploadImage(ctx, input)
		if err != nil {
			return failure(start, "upload to ComfyUI: %v", err)
		}
		imageName = uploaded
		mode = "I2V"
	}

	graph := e.Models.Video(workflow.VideoOptions{
		Prompt:    opts.Prompt,
		ImageName: imageName,
		Width:     opts.Width,
		Height:    opts.Height,
		Frames:    opts.Frames,
		Steps:     opts.Steps,
		Seed:      opts.Seed,
	})

	log.Printf("[Media] %s: %dx%d, %d frames, %d steps, shift=%v",
		mode, opts.Width, opts.Height, opts.Frames, opts.Steps, e.Models.Shift)

	outputs, err := e.runGraph(ctx, graph)
	if err != nil {
		return failure(start, "%v", err)
	}
	if len(outputs) == 0 {
		return failure(start, "no output files from ComfyUI")
	}

	// Prefer an actual video among the outputs; some sinks also report
	// preview frames.
	var final string
	for _, f := range outputs {
		local, err := e.Comfy.Download(ctx, f, e.WorkDir)
		if err != nil {
			log.Printf("[Media] Download failed for %s: %v", f.Filename, err)
			continue
		}
		if strings.HasSuffix(f.Filename, ".mp4") || strings.HasSuffix(f.Filename, ".webm") || strings.HasSuffix(f.Filename, ".gif") {
			final = local
			break
		}
		if final == "" {
			final = local
		}
	}
	if final == "" {
		return failure(start, "could not retrieve video from ComfyUI")
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(e.WorkDir, "video_"+shortID()+".mp4")
	}
	if err := moveTo(final, output); err != nil {
		return failure(start, "move output: %v", err)
	}
	return Result{OK: true, Path: output, Elapsed: elapsed(start)}
}

// runGraph executes a workflow with the engine's deadline and progress logging.
func (e *Engine) runGraph(ctx context.Context, graph workflow.Graph) ([]comfy.OutputFile, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var lastLogged float64 = -10
	outputs, err := e.Comfy.Run(ctx, graph, func(pct float64) {
		if pct-lastLogged >= 10 {
			log.Printf("[Media] Progress: %.0f%%", pct)
			lastLogged = pct
		}
	})
	if err != nil {
		return nil, fmt.Errorf("comfyui job: %w", err)
	}
	return outputs, nil
}
