// Package cmd wires the command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ladle",
	Short: "Ladle - a conversational Discord bot that brews images on demand",
	Long: `Ladle is a Discord chat bot. It joins the conversation when spoken to,
reads linked pages and shared images for context, and brokers image
generation requests to a flux server through a single serialized queue.

Running ladle with no arguments starts the bot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
