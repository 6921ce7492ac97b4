package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the jarvis toolkit configuration
type Config struct {
	Timezone    string          `json:"timezone,omitempty"`
	WorkDir     string          `json:"work_dir,omitempty"`
	SecretsFile string          `json:"secrets_file,omitempty"`
	ComfyUI     ComfyUIConfig   `json:"comfyui"`
	Media       MediaConfig     `json:"media"`
	Telegram    TelegramConfig  `json:"telegram"`
	CoreDB      CoreDBConfig    `json:"coredb"`
	Todoist     TodoistConfig   `json:"todoist"`
	Hooks       HooksConfig     `json:"hooks"`
	Scheduler   SchedulerConfig `json:"scheduler,omitempty"`
}

// ComfyUIConfig contains settings for the local ComfyUI server
type ComfyUIConfig struct {
	URL     string `json:"url"`
	Dir     string `json:"dir,omitempty"`      // ComfyUI install dir, for model verification
	Timeout int    `json:"timeout,omitempty"`  // Job timeout in seconds (default 2400)
}

// MediaConfig contains model settings for image/video generation
type MediaConfig struct {
	MfluxVenv string `json:"mflux_venv,omitempty"` // venv containing mflux binaries

	// Wan2.2 TI2V-5B video pipeline
	WanModel       string  `json:"wan_model,omitempty"`
	WanEncoder     string  `json:"wan_encoder,omitempty"` // "gguf" or "fp16"
	WanClipGGUF    string  `json:"wan_clip_gguf,omitempty"`
	WanClipFP16    string  `json:"wan_clip_fp16,omitempty"`
	WanVAE         string  `json:"wan_vae,omitempty"`
	WanShift       float64 `json:"wan_shift,omitempty"`
	WanGGUFUnet    bool    `json:"wan_gguf_unet,omitempty"`
	WanGGUFModel   string  `json:"wan_gguf_model,omitempty"`

	// FLUX.1 Dev img2img pipeline
	FluxUnet         string  `json:"flux_unet,omitempty"`
	FluxClipL        string  `json:"flux_clip_l,omitempty"`
	FluxT5           string  `json:"flux_t5,omitempty"`
	FluxVAE          string  `json:"flux_vae,omitempty"`
	FluxLora         string  `json:"flux_lora,omitempty"`
	FluxLoraStrength float64 `json:"flux_lora_strength,omitempty"`
}

// TelegramConfig contains notifier credentials
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// CoreDBConfig contains settings for the business reporting engine
type CoreDBConfig struct {
	DatabasePath string `json:"database_path"` // Access .accdb, read via mdb-export
	ProjectDir   string `json:"project_dir"`   // Dropbox project tree
	EtcDir       string `json:"etc_dir,omitempty"`
	CachePath    string `json:"cache_path,omitempty"` // SQLite cache (derived from database_path if empty)
}

// TodoistConfig contains Todoist API settings
type TodoistConfig struct {
	APIToken string `json:"api_token"`
}

// HooksConfig contains settings for assistant lifecycle hooks
type HooksConfig struct {
	ProjectDir  string `json:"project_dir,omitempty"`  // git repo the hooks validate
	MemoryDir   string `json:"memory_dir,omitempty"`   // auto-memory directory
	JournalDir  string `json:"journal_dir,omitempty"`  // daily journal directory
	BackupDir   string `json:"backup_dir,omitempty"`   // transcript backups
	WIPFile     string `json:"wip_file,omitempty"`     // WIP tracker markdown
	GuardMarker string `json:"guard_marker,omitempty"` // marker file arming the PreToolUse guard
	GuardRules  string `json:"guard_rules,omitempty"`  // optional YAML rules file
	TestCommand string `json:"test_command,omitempty"` // command run by stopcheck
}

// SchedulerConfig contains settings for the in-process cron scheduler
type SchedulerConfig struct {
	JobsFile    string `json:"jobs_file,omitempty"`
	ArmGuard    string `json:"arm_guard,omitempty"`    // cron expr to arm the nightly guard
	DisarmGuard string `json:"disarm_guard,omitempty"` // cron expr to disarm it
	Digest      string `json:"digest,omitempty"`       // cron expr for the morning Todoist digest
}

// DeriveCachePath returns a SQLite cache path derived from the Access DB path.
// For example, "MLDatabase.accdb" becomes "MLDatabase.cache.db".
func DeriveCachePath(accdbPath string) string {
	ext := filepath.Ext(accdbPath)
	base := strings.TrimSuffix(accdbPath, ext)
	return base + ".cache.db"
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		WorkDir:     "/tmp/ai-media",
		SecretsFile: "~/.jarvis/secrets.env",
		ComfyUI: ComfyUIConfig{
			URL:     "http://127.0.0.1:8188",
			Dir:     "~/ComfyUI",
			Timeout: 2400,
		},
		Media: MediaConfig{
			MfluxVenv:        "~/ai-tools/mflux-env",
			WanModel:         "wan2.2_ti2v_5B_fp16.safetensors",
			WanEncoder:       "gguf",
			WanClipGGUF:      "umt5xxl-encoder-q5_k_s.gguf",
			WanClipFP16:      "umt5_xxl_fp16.safetensors",
			WanVAE:           "wan2.2_vae.safetensors",
			WanShift:         3.0,
			WanGGUFModel:     "wan2.2-ti2v-5b-Q5_K_S.gguf",
			FluxUnet:         "flux1-dev-Q5_K_S.gguf",
			FluxClipL:        "clip_l.safetensors",
			FluxT5:           "t5-v1_1-xxl-encoder-Q5_K_M.gguf",
			FluxVAE:          "ae.safetensors",
			FluxLoraStrength: 0.8,
		},
		Telegram: TelegramConfig{
			BotToken: "${TELEGRAM_BOT_TOKEN}",
			ChatID:   "${TELEGRAM_CHAT_ID}",
		},
		Todoist: TodoistConfig{
			APIToken: "${TODOIST_API_TOKEN}",
		},
		Hooks: HooksConfig{
			MemoryDir:   "~/.jarvis/memory",
			JournalDir:  "~/.jarvis/journal",
			BackupDir:   "~/.jarvis/backups",
			WIPFile:     "~/.jarvis/WIP.md",
			GuardMarker: "/tmp/nightly-mode",
			TestCommand: "go test ./...",
		},
		Scheduler: SchedulerConfig{
			JobsFile: "~/.jarvis/cron_jobs.json",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Check if file exists, create default if not
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		fmt.Printf("Created default configuration at %s\n", path)
		cfg.expandTilde()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand tilde in path fields before anything else so that
	// secrets_file can reference ~/... paths.
	cfg.expandTilde()

	// Load secrets file (KEY=VALUE) into the environment before
	// expanding ${ENV_VAR} placeholders in the config.
	if err := cfg.loadSecretsFile(); err != nil {
		return nil, fmt.Errorf("failed to load secrets file: %w", err)
	}

	// Expand environment variables
	cfg.expandEnvVars()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandEnvVars expands environment variables in configuration values.
// Unset variables expand to the empty string; consumers that require the
// value report the missing credential themselves.
func (c *Config) expandEnvVars() {
	c.WorkDir = os.ExpandEnv(c.WorkDir)
	c.SecretsFile = os.ExpandEnv(c.SecretsFile)
	c.ComfyUI.URL = os.ExpandEnv(c.ComfyUI.URL)
	c.Telegram.BotToken = os.ExpandEnv(c.Telegram.BotToken)
	c.Telegram.ChatID = os.ExpandEnv(c.Telegram.ChatID)
	c.Todoist.APIToken = os.ExpandEnv(c.Todoist.APIToken)
	c.CoreDB.DatabasePath = os.ExpandEnv(c.CoreDB.DatabasePath)
	c.CoreDB.ProjectDir = os.ExpandEnv(c.CoreDB.ProjectDir)
	c.CoreDB.EtcDir = os.ExpandEnv(c.CoreDB.EtcDir)
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if c.ComfyUI.URL == "" {
		return fmt.Errorf("comfyui.url must not be empty")
	}
	if !strings.HasPrefix(c.ComfyUI.URL, "http://") && !strings.HasPrefix(c.ComfyUI.URL, "https://") {
		return fmt.Errorf("comfyui.url must be an http(s) URL, got %q", c.ComfyUI.URL)
	}
	if c.ComfyUI.Timeout < 0 {
		return fmt.Errorf("comfyui.timeout must not be negative")
	}
	if c.Media.WanShift < 0 || c.Media.WanShift > 100 {
		return fmt.Errorf("media.wan_shift must be in [0, 100], got %v", c.Media.WanShift)
	}
	if c.Media.WanEncoder != "" && c.Media.WanEncoder != "gguf" && c.Media.WanEncoder != "fp16" {
		return fmt.Errorf("media.wan_encoder must be \"gguf\" or \"fp16\", got %q", c.Media.WanEncoder)
	}

	// Validate timezone if set
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
	}

	return nil
}

// GetLocation returns the configured timezone as a *time.Location,
// falling back to time.Local.
func (c *Config) GetLocation() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// JobTimeout returns the ComfyUI job deadline as a duration.
func (c *Config) JobTimeout() time.Duration {
	if c.ComfyUI.Timeout <= 0 {
		return 40 * time.Minute
	}
	return time.Duration(c.ComfyUI.Timeout) * time.Second
}

// expandTilde replaces a leading "~/" with the user's home directory in
// path-valued config fields. Called before env-var expansion so that
// both "~/foo" and "${SOME_PATH}" work.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return // can't expand, leave as-is
	}
	expand := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	c.WorkDir = expand(c.WorkDir)
	c.SecretsFile = expand(c.SecretsFile)
	c.ComfyUI.Dir = expand(c.ComfyUI.Dir)
	c.Media.MfluxVenv = expand(c.Media.MfluxVenv)
	c.CoreDB.DatabasePath = expand(c.CoreDB.DatabasePath)
	c.CoreDB.ProjectDir = expand(c.CoreDB.ProjectDir)
	c.CoreDB.EtcDir = expand(c.CoreDB.EtcDir)
	c.CoreDB.CachePath = expand(c.CoreDB.CachePath)
	c.Hooks.ProjectDir = expand(c.Hooks.ProjectDir)
	c.Hooks.MemoryDir = expand(c.Hooks.MemoryDir)
	c.Hooks.JournalDir = expand(c.Hooks.JournalDir)
	c.Hooks.BackupDir = expand(c.Hooks.BackupDir)
	c.Hooks.WIPFile = expand(c.Hooks.WIPFile)
	c.Hooks.GuardRules = expand(c.Hooks.GuardRules)
	c.Scheduler.JobsFile = expand(c.Scheduler.JobsFile)
}

// loadSecretsFile reads a KEY=VALUE file into the process environment.
// Blank lines and lines starting with '#' are ignored.
// Existing environment variables are NOT overridden (shell/launchd wins).
// If SecretsFile is empty or the file doesn't exist, this is a no-op.
func (c *Config) loadSecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}

	f, err := os.Open(c.SecretsFile)
	if os.IsNotExist(err) {
		return nil // missing file is fine
	}
	if err != nil {
		return fmt.Errorf("cannot open secrets file %s: %w", c.SecretsFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Strip optional surrounding quotes from value
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		// Don't override existing env vars
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
