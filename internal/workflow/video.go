package workflow

// VideoOptions configures a Wan2.2 TI2V-5B generation.
type VideoOptions struct {
	Prompt    string
	ImageName string // server-side input image name; empty means text-to-video
	Width     int    // default 832 (model is 720p tuned; 480x480 gives mush)
	Height    int    // default 480
	Frames    int    // default 33 (~1.4s at 24fps; 121 is ~5s)
	Steps     int    // default 30
	Seed      *int64 // nil picks a random uint32 seed
}

func (o *VideoOptions) applyDefaults() {
	if o.Width == 0 {
		o.Width = 832
	}
	if o.Height == 0 {
		o.Height = 480
	}
	if o.Frames == 0 {
		o.Frames = 33
	}
	if o.Steps == 0 {
		o.Steps = 30
	}
}

// Video builds a Wan2.2 TI2V-5B workflow. With an input image the latent
// node receives a start_image (image-to-video); without one the same node
// runs in text-to-video mode. The 5B model never uses CLIPVision — that
// whole branch (CLIPVisionLoader/Encode, WanImageToVideoCond) belongs to
// the 14B model only.
func (m Models) Video(opts VideoOptions) Graph {
	opts.applyDefaults()

	latentInputs := map[string]any{
		"width":      opts.Width,
		"height":     opts.Height,
		"length":     opts.Frames,
		"batch_size": 1,
		"vae":        Ref("4", 0),
	}

	g := Graph{
		"1": m.unetLoaderNode(),
		"2": m.modelSamplingNode("1"),
		"3": m.textEncoderNode(),
		"4": {
			ClassType: "VAELoader",
			Inputs:    map[string]any{"vae_name": m.WanVAE},
		},
		"5": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": opts.Prompt, "clip": Ref("3", 0)},
		},
		"7": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": "", "clip": Ref("3", 0)},
		},
		"8": {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":         seedOr(opts.Seed),
				"steps":        opts.Steps,
				"cfg":          3.5,
				"sampler_name": "euler",
				"scheduler":    "simple",
				"denoise":      1.0,
				"model":        Ref("2", 0),
				"positive":     Ref("5", 0),
				"negative":     Ref("7", 0),
				"latent_image": Ref("6", 0),
			},
		},
		"9": {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": Ref("8", 0), "vae": Ref("4", 0)},
		},
		"10": {
			ClassType: "VHS_VideoCombine",
			Inputs: map[string]any{
				"frame_rate":      24,
				"loop_count":      0,
				"filename_prefix": "wan22_t2v",
				"format":          "video/h264-mp4",
				"save_output":     true,
				"pingpong":        false,
				"pix_fmt":         "yuv420p",
				"crf":             19,
				"save_metadata":   true,
				"trim_to_audio":   false,
				"images":          Ref("9", 0),
			},
		},
	}

	if opts.ImageName != "" {
		g["11"] = Node{
			ClassType: "LoadImage",
			Inputs:    map[string]any{"image": opts.ImageName},
		}
		latentInputs["start_image"] = Ref("11", 0)
		sink := g["10"]
		sink.Inputs["filename_prefix"] = "wan22_i2v"
		g["10"] = sink
	}

	g["6"] = Node{
		ClassType: "Wan22ImageToVideoLatent",
		Inputs:    latentInputs,
	}

	return g
}
