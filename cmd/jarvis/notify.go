package main

import (
	"fmt"
	"os"

	"jarvis/internal/notify"

	"github.com/spf13/cobra"
)

var (
	notifyFile     string
	notifyPhoto    string
	notifyDocument string
)

var notifyCmd = &cobra.Command{
	Use:   "notify [message]",
	Short: "Send a Telegram notification",
	Long: `Send a message to the configured Telegram chat.

The message comes from the argument, from --file, or from stdin when
neither is given. Use --photo or --document to attach a file with the
message as its caption.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		n, err := notify.New(c.Telegram.BotToken, c.Telegram.ChatID)
		if err != nil {
			return err
		}

		arg := ""
		if len(args) > 0 {
			arg = args[0]
		}
		message, err := notify.ReadMessage(arg, notifyFile, os.Stdin)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		switch {
		case notifyPhoto != "":
			err = n.SendPhoto(ctx, notifyPhoto, message)
		case notifyDocument != "":
			err = n.SendDocument(ctx, notifyDocument, message)
		default:
			err = n.Send(ctx, message)
		}
		if err != nil {
			return err
		}
		fmt.Println("Sent.")
		return nil
	},
}

func init() {
	notifyCmd.Flags().StringVarP(&notifyFile, "file", "f", "", "read the message from a file")
	notifyCmd.Flags().StringVar(&notifyPhoto, "photo", "", "attach an image")
	notifyCmd.Flags().StringVar(&notifyDocument, "document", "", "attach a document")
	rootCmd.AddCommand(notifyCmd)
}
