package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"jarvis/internal/config"
	"jarvis/internal/version"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Personal assistant toolkit: media generation, reports, hooks and notifications",
	Long: `jarvis is the command-line half of a personal Telegram assistant.

It drives a local ComfyUI server for image and video generation, sends
Telegram notifications, runs the coding-assistant lifecycle hooks, turns
the company Access database into reports, and schedules the overnight
automation window.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("jarvis %s\n", version.Full())
		info := version.Get()

		if info.Commit != "" {
			fmt.Printf("Git commit: %s\n", info.Commit)
		}
		if info.Dirty {
			fmt.Printf("Git status: dirty (uncommitted changes)\n")
		}
		if info.BuildDate != "" {
			fmt.Printf("Build date: %s\n", info.BuildDate)
		}
		fmt.Printf("Go version: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "jarvis_config.json"
	}
	return filepath.Join(home, ".jarvis", "config.json")
}

// loadConfig loads the config lazily so commands that do not need it
// (version, wip) never touch the file.
func loadConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", cfgFile, err)
	}
	cfg = c
	return cfg, nil
}

func main() {
	log.SetFlags(log.LstdFlags)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
