package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// For testing
var osExit = os.Exit

var configFile string

var rootCmd = &cobra.Command{
	Use:   "observer",
	Short: "LLM call observer",
	Long: `observer instruments outbound LLM API calls and forwards structured
request/response records to an analytics collector. Use the subcommands to
configure credentials, run the demo chat client, submit records manually or
run the buffered delivery worker.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// subcommands load config through the environment, so the flag
		// is exported rather than threaded through each one
		if configFile != "" {
			_ = os.Setenv("LLM_OBSERVER_CONFIG_FILE", configFile)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
}

func main() {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}
