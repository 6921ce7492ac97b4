package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"jarvis/internal/comfy"
	"jarvis/internal/config"
	"jarvis/internal/media"
	"jarvis/internal/workflow"

	"github.com/spf13/cobra"
)

var (
	mediaOutput  string
	mediaWidth   int
	mediaHeight  int
	mediaSteps   int
	mediaFrames  int
	mediaSeed    int64
	mediaImage   string
	mediaDenoise float64
	mediaLora    string
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Generate and edit images and videos",
}

var mediaGenerateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Text-to-image via the local mflux pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		opts := media.GenerateOptions{
			Prompt: joinArgs(args),
			Output: mediaOutput,
			Width:  mediaWidth,
			Height: mediaHeight,
			Steps:  mediaSteps,
			Seed:   seedFlag(cmd),
		}
		return printResult(engine.Generate(cmd.Context(), opts))
	},
}

var mediaEditCmd = &cobra.Command{
	Use:   "edit <prompt>",
	Short: "Image-to-image editing via ComfyUI FLUX.1 Dev",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mediaImage == "" {
			return fmt.Errorf("--image is required")
		}
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		opts := media.EditOptions{
			Image:   mediaImage,
			Prompt:  joinArgs(args),
			Output:  mediaOutput,
			Steps:   mediaSteps,
			Denoise: mediaDenoise,
			Seed:    seedFlag(cmd),
			Lora:    mediaLora,
		}
		return printResult(engine.Edit(cmd.Context(), opts))
	},
}

var mediaAnimateCmd = &cobra.Command{
	Use:   "animate <prompt>",
	Short: "Video generation via ComfyUI Wan2.2 (image-to-video with --image)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		opts := media.AnimateOptions{
			Image:  mediaImage,
			Prompt: joinArgs(args),
			Output: mediaOutput,
			Width:  mediaWidth,
			Height: mediaHeight,
			Frames: mediaFrames,
			Steps:  mediaSteps,
			Seed:   seedFlag(cmd),
		}
		return printResult(engine.Animate(cmd.Context(), opts))
	},
}

var mediaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the media toolchain and model files",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		status := engine.Status(cmd.Context())
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	mediaCmd.PersistentFlags().StringVarP(&mediaOutput, "output", "o", "", "output file path")
	mediaCmd.PersistentFlags().IntVar(&mediaWidth, "width", 0, "output width")
	mediaCmd.PersistentFlags().IntVar(&mediaHeight, "height", 0, "output height")
	mediaCmd.PersistentFlags().IntVar(&mediaSteps, "steps", 0, "sampling steps")
	mediaCmd.PersistentFlags().Int64Var(&mediaSeed, "seed", 0, "fixed seed (random if omitted)")
	mediaCmd.PersistentFlags().StringVar(&mediaImage, "image", "", "input image path")

	mediaEditCmd.Flags().Float64Var(&mediaDenoise, "denoise", 0, "denoise strength (default 0.65)")
	mediaEditCmd.Flags().StringVar(&mediaLora, "lora", "", "LoRA file name")
	mediaAnimateCmd.Flags().IntVar(&mediaFrames, "frames", 0, "video length in frames (default 33)")

	mediaCmd.AddCommand(mediaGenerateCmd, mediaEditCmd, mediaAnimateCmd, mediaStatusCmd)
	rootCmd.AddCommand(mediaCmd)
}

// newEngine wires the media engine from the config.
func newEngine() (*media.Engine, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}
	engine := media.NewEngine(comfy.New(c.ComfyUI.URL), modelsFromConfig(c), c.WorkDir)
	engine.MfluxVenv = c.Media.MfluxVenv
	engine.ComfyDir = c.ComfyUI.Dir
	engine.DefaultLora = c.Media.FluxLora
	engine.LoraStrength = c.Media.FluxLoraStrength
	engine.Timeout = c.JobTimeout()
	return engine, nil
}

func modelsFromConfig(c *config.Config) workflow.Models {
	return workflow.Models{
		WanUnet:     c.Media.WanModel,
		WanGGUFUnet: c.Media.WanGGUFModel,
		UseGGUFUnet: c.Media.WanGGUFUnet,
		WanClipGGUF: c.Media.WanClipGGUF,
		WanClipFP16: c.Media.WanClipFP16,
		UseFP16Clip: c.Media.WanEncoder == "fp16",
		WanVAE:      c.Media.WanVAE,
		Shift:       c.Media.WanShift,
		FluxUnet:    c.Media.FluxUnet,
		FluxClipL:   c.Media.FluxClipL,
		FluxT5:      c.Media.FluxT5,
		FluxVAE:     c.Media.FluxVAE,
	}
}

func seedFlag(cmd *cobra.Command) *int64 {
	if cmd.Flags().Changed("seed") {
		seed := mediaSeed
		return &seed
	}
	return nil
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func printResult(res media.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if !res.OK {
		os.Exit(1)
	}
	return nil
}
