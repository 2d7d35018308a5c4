package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sofatutor/llm-observer/internal/obfuscate"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	setupEnvFile    string
	setupBaseURL    string
	setupEnviron    string
	setupTargets    []string
	setupForceWrite bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure the observer",
	Long:  `Prompt for the collector API key and write the observer's .env file.`,
	RunE:  runSetup,
}

func init() {
	setupCmd.Flags().StringVar(&setupEnvFile, "env-file", ".env", "Path of the env file to write")
	setupCmd.Flags().StringVar(&setupBaseURL, "base-url", "https://app.llmobserver.dev", "Collector base URL")
	setupCmd.Flags().StringVar(&setupEnviron, "environment", "development", "Environment tag (production, development, test)")
	setupCmd.Flags().StringSliceVar(&setupTargets, "intercept", nil, "Intercept address substrings (default provider set when empty)")
	setupCmd.Flags().BoolVar(&setupForceWrite, "force", false, "Overwrite an existing env file")

	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(setupEnvFile); err == nil && !setupForceWrite {
		return fmt.Errorf("%s already exists; use --force to overwrite", setupEnvFile)
	}

	fmt.Print("Collector API key: ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	apiKey := strings.TrimSpace(string(keyBytes))
	if apiKey == "" {
		return fmt.Errorf("API key must not be empty")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "LLM_OBSERVER_API_KEY=%s\n", apiKey)
	fmt.Fprintf(&b, "LLM_OBSERVER_BASE_URL=%s\n", setupBaseURL)
	fmt.Fprintf(&b, "LLM_OBSERVER_ENV=%s\n", setupEnviron)
	if len(setupTargets) > 0 {
		fmt.Fprintf(&b, "LLM_OBSERVER_INTERCEPT_ADDRESSES=%s\n", strings.Join(setupTargets, ","))
	}

	if err := os.WriteFile(setupEnvFile, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", setupEnvFile, err)
	}

	fmt.Printf("Wrote %s (api key %s)\n", setupEnvFile, obfuscate.ObfuscateToken(apiKey))
	return nil
}
