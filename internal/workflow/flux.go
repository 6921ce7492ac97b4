package workflow

// EditOptions configures a FLUX.1 Dev img2img pass.
type EditOptions struct {
	ImageName    string // server-side input image name
	Prompt       string
	Steps        int     // default 20
	Denoise      float64 // 0=no change, 1=full regenerate; default 0.65
	Seed         *int64
	Lora         string  // LoRA filename in the ComfyUI loras dir; empty skips the LoRA node
	LoraStrength float64 // default 0.8
}

func (o *EditOptions) applyDefaults() {
	if o.Steps == 0 {
		o.Steps = 20
	}
	if o.Denoise == 0 {
		o.Denoise = 0.65
	}
	if o.LoraStrength == 0 {
		o.LoraStrength = 0.8
	}
}

// Edit builds a FLUX.1 Dev img2img workflow with an optional LoRA applied
// to the model weights only.
func (m Models) Edit(opts EditOptions) Graph {
	opts.applyDefaults()

	// Without a LoRA the sampler takes the UNET directly.
	samplerModel := Ref("1", 0)

	g := Graph{
		"1": {
			ClassType: "UnetLoaderGGUF",
			Inputs:    map[string]any{"unet_name": m.FluxUnet},
		},
		"2": {
			ClassType: "DualCLIPLoaderGGUF",
			Inputs: map[string]any{
				"clip_name1": m.FluxClipL,
				"clip_name2": m.FluxT5,
				"type":       "flux",
			},
		},
		"3": {
			ClassType: "VAELoader",
			Inputs:    map[string]any{"vae_name": m.FluxVAE},
		},
		"5": {
			ClassType: "LoadImage",
			Inputs:    map[string]any{"image": opts.ImageName},
		},
		"6": {
			ClassType: "VAEEncode",
			Inputs:    map[string]any{"pixels": Ref("5", 0), "vae": Ref("3", 0)},
		},
		"7": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": opts.Prompt, "clip": Ref("2", 0)},
		},
		"8": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": "", "clip": Ref("2", 0)},
		},
		"10": {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": Ref("9", 0), "vae": Ref("3", 0)},
		},
		"11": {
			ClassType: "SaveImage",
			Inputs:    map[string]any{"images": Ref("10", 0), "filename_prefix": "flux_edit"},
		},
	}

	if opts.Lora != "" {
		g["4"] = Node{
			ClassType: "LoraLoaderModelOnly",
			Inputs: map[string]any{
				"model":          Ref("1", 0),
				"lora_name":      opts.Lora,
				"strength_model": opts.LoraStrength,
			},
		}
		samplerModel = Ref("4", 0)
	}

	g["9"] = Node{
		ClassType: "KSampler",
		Inputs: map[string]any{
			"seed":         seedOr(opts.Seed),
			"steps":        opts.Steps,
			"cfg":          3.5,
			"sampler_name": "euler",
			"scheduler":    "simple",
			"denoise":      opts.Denoise,
			"model":        samplerModel,
			"positive":     Ref("7", 0),
			"negative":     Ref("8", 0),
			"latent_image": Ref("6", 0),
		},
	}

	return g
}
