// Package workflow builds ComfyUI node graphs in the API's JSON form:
// a map of string node IDs to nodes, where inputs reference upstream
// nodes as ["nodeID", outputSlot] pairs.
package workflow

import (
	"math/rand"
)

// Node is one node in a ComfyUI workflow graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Graph maps node IDs to nodes. IDs must be numeric strings for the
// ComfyUI API to accept the prompt.
type Graph map[string]Node

// Ref builds a connection to output slot of another node.
func Ref(nodeID string, slot int) []any {
	return []any{nodeID, slot}
}

// Models names the model files the builders reference. All files live in
// the ComfyUI models directory tree.
type Models struct {
	// Wan2.2 TI2V-5B video pipeline
	WanUnet     string  // fp16 safetensors
	WanGGUFUnet string  // quantized alternative
	UseGGUFUnet bool    // load WanGGUFUnet instead of WanUnet
	WanClipGGUF string  // GGUF text encoder (default: fp8 is broken on MPS)
	WanClipFP16 string  // fp16 text encoder alternative
	UseFP16Clip bool    // load WanClipFP16 instead of WanClipGGUF
	WanVAE      string
	Shift       float64 // ModelSamplingSD3 shift, typical 3.0-5.0

	// FLUX.1 Dev img2img pipeline
	FluxUnet  string
	FluxClipL string
	FluxT5    string
	FluxVAE   string
}

// randomSeed returns a seed in [0, 2^32).
func randomSeed() int64 {
	return rand.Int63n(1 << 32)
}

// seedOr returns seed when set (non-nil), otherwise a random one.
func seedOr(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return randomSeed()
}

// unetLoaderNode builds the video UNET loader for the configured variant.
func (m Models) unetLoaderNode() Node {
	if m.UseGGUFUnet {
		return Node{
			ClassType: "UnetLoaderGGUF",
			Inputs:    map[string]any{"unet_name": m.WanGGUFUnet},
		}
	}
	return Node{
		ClassType: "UNETLoader",
		Inputs:    map[string]any{"unet_name": m.WanUnet, "weight_dtype": "default"},
	}
}

// modelSamplingNode applies the shift parameter to the diffusion model's
// noise schedule. Wan2.2 requires this between the UNET loader and the
// KSampler; without it generation quality degrades badly.
func (m Models) modelSamplingNode(modelSource string) Node {
	return Node{
		ClassType: "ModelSamplingSD3",
		Inputs:    map[string]any{"shift": m.Shift, "model": Ref(modelSource, 0)},
	}
}

// textEncoderNode builds the Wan text encoder loader. GGUF is the default
// because the fp8 encoder (Float8_e4m3fn) is unsupported on Apple MPS.
func (m Models) textEncoderNode() Node {
	if m.UseFP16Clip {
		return Node{
			ClassType: "CLIPLoader",
			Inputs:    map[string]any{"clip_name": m.WanClipFP16, "type": "wan"},
		}
	}
	return Node{
		ClassType: "CLIPLoaderGGUF",
		Inputs:    map[string]any{"clip_name": m.WanClipGGUF, "type": "wan"},
	}
}
