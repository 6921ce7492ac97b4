package main

import (
	"fmt"
	"log"
	"strings"

	"jarvis/internal/notify"
	"jarvis/internal/xsearch"

	"github.com/spf13/cobra"
)

var (
	fetchFile   string
	fetchMax    int
	fetchNotify bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <query...>",
	Short: "Fetch recent posts from X search",
	Long: `Scrapes the live search page for a query and prints a numbered digest.
Use --file to parse a saved HTML page instead of fetching over HTTP,
which also works when the live page requires a login.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		f := xsearch.New()
		if fetchMax > 0 {
			f.MaxTweets = fetchMax
		}

		var (
			tweets []string
			err    error
		)
		if fetchFile != "" {
			tweets, err = f.FromFile(fetchFile, query)
		} else {
			tweets, err = f.Search(cmd.Context(), query)
		}
		if err != nil {
			return err
		}

		digest := xsearch.Format(query, tweets)
		fmt.Println(digest)

		if fetchNotify {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := notify.New(c.Telegram.BotToken, c.Telegram.ChatID)
			if err != nil {
				return err
			}
			if err := n.Send(cmd.Context(), digest); err != nil {
				log.Printf("[Fetch] notify failed: %v", err)
			}
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchFile, "file", "f", "", "parse a saved HTML page instead of fetching")
	fetchCmd.Flags().IntVar(&fetchMax, "max", 0, "maximum posts to include (default 15)")
	fetchCmd.Flags().BoolVar(&fetchNotify, "notify", false, "send the digest to Telegram")
	rootCmd.AddCommand(fetchCmd)
}
