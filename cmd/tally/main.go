package main

import (
	"os"

	"github.com/spf13/cobra"

	"tally/cmd/tally/chat"
	"tally/cmd/tally/serve"
	"tally/cmd/tally/setup"
	"tally/internal/logger"
)

func main() {
	logger.Init()

	rootCmd := &cobra.Command{
		Use:   "tally",
		Short: "Tally is the streaming agent behind the finance dashboard",
	}

	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(chat.Cmd)
	rootCmd.AddCommand(setup.Cmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
