package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/microsandbox/microsandbox/internal/clientlib"
)

var baseURL string

var rootCmd = &cobra.Command{
	Use:   "msbxctl",
	Short: "microsandbox CLI - manage sandboxes from the command line",
	Long: `msbxctl is a command-line client for the microsandbox orchestration
server. It starts and stops sandboxes, reads metrics, and runs REPL
evaluations and shell commands against a running sandbox's portal.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("MSB_SERVER_URL", "http://localhost:8080"), "microsandbox server base URL")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *clientlib.Client {
	return clientlib.New(baseURL)
}
