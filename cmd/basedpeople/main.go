package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	noColor    bool
	serverFlag string
)

var rootCmd = &cobra.Command{
	Use:           "basedpeople",
	Short:         "Track public appearances of technology figures",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "base URL of a running server (default: local port from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(personCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
