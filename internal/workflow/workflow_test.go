package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModels() Models {
	return Models{
		WanUnet:     "wan2.2_ti2v_5B_fp16.safetensors",
		WanGGUFUnet: "wan2.2-ti2v-5b-Q5_K_S.gguf",
		WanClipGGUF: "umt5xxl-encoder-q5_k_s.gguf",
		WanClipFP16: "umt5_xxl_fp16.safetensors",
		WanVAE:      "wan2.2_vae.safetensors",
		Shift:       3.0,
		FluxUnet:    "flux1-dev-Q5_K_S.gguf",
		FluxClipL:   "clip_l.safetensors",
		FluxT5:      "t5-v1_1-xxl-encoder-Q5_K_M.gguf",
		FluxVAE:     "ae.safetensors",
	}
}

func TestVideo_TextToVideo(t *testing.T) {
	g := testModels().Video(VideoOptions{Prompt: "a red dragon flying"})

	// 10 nodes, no LoadImage, latent without start_image
	assert.Len(t, g, 10)
	assert.NotContains(t, g, "11")

	latent := g["6"]
	assert.Equal(t, "Wan22ImageToVideoLatent", latent.ClassType)
	assert.NotContains(t, latent.Inputs, "start_image")
	assert.Equal(t, 832, latent.Inputs["width"])
	assert.Equal(t, 480, latent.Inputs["height"])
	assert.Equal(t, 33, latent.Inputs["length"])

	// ModelSamplingSD3 sits between the UNET loader and the sampler
	assert.Equal(t, "ModelSamplingSD3", g["2"].ClassType)
	assert.Equal(t, 3.0, g["2"].Inputs["shift"])
	assert.Equal(t, Ref("2", 0), g["8"].Inputs["model"])

	sampler := g["8"]
	assert.Equal(t, 3.5, sampler.Inputs["cfg"])
	assert.Equal(t, "euler", sampler.Inputs["sampler_name"])
	assert.Equal(t, "simple", sampler.Inputs["scheduler"])
	assert.Equal(t, 1.0, sampler.Inputs["denoise"])

	assert.Equal(t, "wan22_t2v", g["10"].Inputs["filename_prefix"])
}

func TestVideo_ImageToVideo(t *testing.T) {
	g := testModels().Video(VideoOptions{Prompt: "gentle waves", ImageName: "beach.png"})

	assert.Len(t, g, 11)
	assert.Equal(t, "LoadImage", g["11"].ClassType)
	assert.Equal(t, "beach.png", g["11"].Inputs["image"])
	assert.Equal(t, Ref("11", 0), g["6"].Inputs["start_image"])
	assert.Equal(t, "wan22_i2v", g["10"].Inputs["filename_prefix"])

	// The 5B model has no CLIPVision branch.
	for id, node := range g {
		assert.NotContains(t, node.ClassType, "CLIPVision", "node %s", id)
		assert.NotEqual(t, "WanImageToVideoCond", node.ClassType, "node %s", id)
	}
}

func TestVideo_GGUFUnetVariant(t *testing.T) {
	m := testModels()
	m.UseGGUFUnet = true
	g := m.Video(VideoOptions{Prompt: "x"})

	assert.Equal(t, "UnetLoaderGGUF", g["1"].ClassType)
	assert.Equal(t, m.WanGGUFUnet, g["1"].Inputs["unet_name"])
}

func TestVideo_FP16EncoderVariant(t *testing.T) {
	m := testModels()
	m.UseFP16Clip = true
	g := m.Video(VideoOptions{Prompt: "x"})

	assert.Equal(t, "CLIPLoader", g["3"].ClassType)
	assert.Equal(t, m.WanClipFP16, g["3"].Inputs["clip_name"])
	assert.Equal(t, "wan", g["3"].Inputs["type"])
}

func TestVideo_FixedSeed(t *testing.T) {
	seed := int64(1234)
	g := testModels().Video(VideoOptions{Prompt: "x", Seed: &seed})
	assert.Equal(t, seed, g["8"].Inputs["seed"])
}

func TestVideo_RandomSeedInRange(t *testing.T) {
	g := testModels().Video(VideoOptions{Prompt: "x"})
	seed := g["8"].Inputs["seed"].(int64)
	assert.GreaterOrEqual(t, seed, int64(0))
	assert.Less(t, seed, int64(1)<<32)
}

func TestEdit_WithLora(t *testing.T) {
	g := testModels().Edit(EditOptions{
		ImageName: "in.png",
		Prompt:    "make it night",
		Lora:      "style.safetensors",
	})

	assert.Len(t, g, 11)
	lora := g["4"]
	assert.Equal(t, "LoraLoaderModelOnly", lora.ClassType)
	assert.Equal(t, "style.safetensors", lora.Inputs["lora_name"])
	assert.Equal(t, 0.8, lora.Inputs["strength_model"])

	sampler := g["9"]
	assert.Equal(t, Ref("4", 0), sampler.Inputs["model"])
	assert.Equal(t, 0.65, sampler.Inputs["denoise"])
	assert.Equal(t, 20, sampler.Inputs["steps"])
}

func TestEdit_WithoutLora(t *testing.T) {
	g := testModels().Edit(EditOptions{ImageName: "in.png", Prompt: "p"})

	assert.NotContains(t, g, "4")
	assert.Equal(t, Ref("1", 0), g["9"].Inputs["model"])
}

func TestGraph_MarshalsToAPIShape(t *testing.T) {
	g := testModels().Edit(EditOptions{ImageName: "in.png", Prompt: "p"})

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var decoded map[string]struct {
		ClassType string         `json:"class_type"`
		Inputs    map[string]any `json:"inputs"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Connections survive as ["nodeID", slot] pairs.
	ref, ok := decoded["10"].Inputs["samples"].([]any)
	require.True(t, ok)
	require.Len(t, ref, 2)
	assert.Equal(t, "9", ref[0])
	assert.Equal(t, float64(0), ref[1])
}
