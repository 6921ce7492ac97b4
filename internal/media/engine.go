// Package media implements the image/video generation engine: local
// text-to-image through the mflux binaries, and image editing plus video
// generation through a ComfyUI server.
package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"jarvis/internal/comfy"
	"jarvis/internal/workflow"
)

// Result is the outcome of one media job.
type Result struct {
	OK      bool    `json:"ok"`
	Path    string  `json:"path,omitempty"`
	Error   string  `json:"error,omitempty"`
	Elapsed float64 `json:"elapsed"` // seconds, one decimal
}

func failure(start time.Time, format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), Elapsed: elapsed(start)}
}

func elapsed(start time.Time) float64 {
	return float64(int(time.Since(start).Seconds()*10)) / 10
}

// commandRunner runs an external command and returns combined output.
// Swappable in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Engine coordinates the generation backends.
type Engine struct {
	Comfy        *comfy.Client
	Models       workflow.Models
	WorkDir      string
	MfluxVenv    string // venv whose bin/ holds the mflux binaries
	ComfyDir     string // ComfyUI install dir, for model verification
	DefaultLora  string
	LoraStrength float64
	Timeout      time.Duration // per ComfyUI job

	run   commandRunner
	queue *Queue
}

// NewEngine creates an engine; jobs submitted through it are serialized.
func NewEngine(client *comfy.Client, models workflow.Models, workDir string) *Engine {
	return &Engine{
		Comfy:   client,
		Models:  models,
		WorkDir: workDir,
		Timeout: 40 * time.Minute,
		run:     runCommand,
		queue:   NewQueue(),
	}
}

// Close stops the job queue.
func (e *Engine) Close() {
	e.queue.Close()
}

// mfluxBin returns the path of an mflux binary, preferring the venv.
func (e *Engine) mfluxBin(name string) string {
	if e.MfluxVenv != "" {
		venvBin := filepath.Join(e.MfluxVenv, "bin", name)
		if _, err := os.Stat(venvBin); err == nil {
			return venvBin
		}
	}
	return name
}

// GenerateOptions configures local text-to-image generation.
type GenerateOptions struct {
	Prompt   string
	Output   string
	Width    int // default 1024
	Height   int // default 1024
	Steps    int // default 9
	Quantize int // default 8
	Seed     *int64
}

// Generate runs text-to-image through the local mflux Z-Image-Turbo
// pipeline. No ComfyUI involvement; the binary writes the file itself.
func (e *Engine) Generate(ctx context.Context, opts GenerateOptions) Result {
	return e.queue.Do(ctx, func(ctx context.Context) Result {
		return e.generate(ctx, opts)
	})
}

func (e *Engine) generate(ctx context.Context, opts GenerateOptions) Result {
	start := time.Now()

	if err := os.MkdirAll(e.WorkDir, 0755); err != nil {
		return failure(start, "create work dir: %v", err)
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(e.WorkDir, "gen_"+shortID()+".png")
	}
	if opts.Width == 0 {
		opts.Width = 1024
	}
	if opts.Height == 0 {
		opts.Height = 1024
	}
	if opts.Steps == 0 {
		opts.Steps = 9
	}
	if opts.Quantize == 0 {
		opts.Quantize = 8
	}

	args := []string{
		"--prompt", opts.Prompt,
		"--width", strconv.Itoa(opts.Width),
		"--height", strconv.Itoa(opts.Height),
		"--steps", strconv.Itoa(opts.Steps),
		"-q", strconv.Itoa(opts.Quantize),
		"--output", output,
	}
	if opts.Seed != nil {
		args = append(args, "--seed", strconv.FormatInt(*opts.Seed, 10))
	}

	bin := e.mfluxBin("mflux-generate-z-image-turbo")
	log.Printf("[Media] Generating image: %s %s", bin, strings.Join(args, " "))

	out, err := e.run(ctx, bin, args...)
	if err != nil {
		return failure(start, "mflux failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	return Result{OK: true, Path: e.findOutput(output), Elapsed: elapsed(start)}
}

// findOutput locates the file mflux actually wrote. The binary sometimes
// appends a suffix to the requested name; fall back to the newest image
// written in the last ten minutes.
func (e *Engine) findOutput(expected string) string {
	if _, err := os.Stat(expected); err == nil {
		return expected
	}

	dir := filepath.Dir(expected)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = e.WorkDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return expected
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".jpg") && !strings.HasSuffix(name, ".jpeg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > 10*time.Minute {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newest = filepath.Join(dir, name)
		}
	}

	if newest != "" {
		return newest
	}
	return expected
}

// convertInput converts HEIC/WEBP/etc inputs to PNG via sips so ComfyUI
// can load them. JPEG and PNG pass through. Conversion failures fall back
// to the original file.
func (e *Engine) convertInput(ctx context.Context, path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return path
	}

	converted := filepath.Join(e.WorkDir, "converted_"+shortID()+".png")
	out, err := e.run(ctx, "sips", "-s", "format", "png", path, "--out", converted)
	if err != nil {
		log.Printf("[Media] Image conversion failed, using original: %v: %s", err, strings.TrimSpace(string(out)))
		return path
	}
	log.Printf("[Media] Converted %s -> %s", filepath.Base(path), filepath.Base(converted))
	return converted
}

func shortID() string {
	return uuid.NewString()[:8]
}

// moveTo moves a downloaded output into the requested destination.
// Falls back to copy when rename crosses filesystems.
func moveTo(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
