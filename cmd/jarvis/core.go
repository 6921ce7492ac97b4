package main

import (
	"fmt"
	"os"

	"jarvis/internal/config"
	"jarvis/internal/coredb"
	"jarvis/internal/report"

	"github.com/spf13/cobra"
)

var coreNoCache bool

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "Business reports from the company database",
	Long: `Turn the company Access database and the Dropbox project tree
into reports: customer profiles, project profiles, a company summary
and a project-tree search.

The first query after a database change exports the tables through
mdb-export (slow); later queries come from a local SQLite cache.`,
}

var coreCustomerCmd = &cobra.Command{
	Use:   "customer <name>",
	Short: "Customer profile by name or kana",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReporter(cmd)
		if err != nil {
			return err
		}
		return r.Customer(joinArgs(args))
	},
}

var coreProjectCmd = &cobra.Command{
	Use:   "project <number|name>",
	Short: "Project profile by number (e.g. M1012) or name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReporter(cmd)
		if err != nil {
			return err
		}
		return r.Project(joinArgs(args))
	},
}

var coreSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Company-wide totals and top clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReporter(cmd)
		if err != nil {
			return err
		}
		return r.Summary()
	},
}

var coreSearchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search the Dropbox project tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReporter(cmd)
		if err != nil {
			return err
		}
		return r.Search(joinArgs(args))
	},
}

func init() {
	coreCmd.PersistentFlags().BoolVar(&coreNoCache, "no-cache", false, "bypass the SQLite cache")
	coreCmd.AddCommand(coreCustomerCmd, coreProjectCmd, coreSummaryCmd, coreSearchCmd)
	rootCmd.AddCommand(coreCmd)
}

func newReporter(cmd *cobra.Command) (*report.Reporter, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if c.CoreDB.DatabasePath == "" {
		return nil, fmt.Errorf("coredb.database_path is not configured")
	}
	cachePath := c.CoreDB.CachePath
	if cachePath == "" {
		cachePath = config.DeriveCachePath(c.CoreDB.DatabasePath)
	}
	if coreNoCache {
		cachePath = ""
	}

	loader := coredb.NewLoader(c.CoreDB.DatabasePath, cachePath)
	data, err := loader.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	fmt.Printf("Loaded: %d clients, %d quotes, %d projects\n\n",
		len(data.Clients), len(data.Quotes), len(data.Projects))

	return &report.Reporter{
		Data: data,
		Tree: &report.Tree{ProjectDir: c.CoreDB.ProjectDir, EtcDir: c.CoreDB.EtcDir},
		Out:  os.Stdout,
	}, nil
}
