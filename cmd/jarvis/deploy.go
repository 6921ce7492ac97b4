package main

import (
	"os"

	"jarvis/internal/deploy"

	"github.com/spf13/cobra"
)

var deployApply bool

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Write the media launcher script and verify model files",
	Long: `Writes the ComfyUI launcher script next to the install directory and
checks that every required model file is present. Runs in dry-run mode
unless --apply is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		d := &deploy.Deployer{
			Config: c,
			Apply:  deployApply,
			Out:    os.Stdout,
		}
		return d.Run()
	},
}

func init() {
	deployCmd.Flags().BoolVar(&deployApply, "apply", false, "write files instead of previewing")
	rootCmd.AddCommand(deployCmd)
}
