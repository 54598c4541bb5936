// importctl is the command-line client for the import service. It uploads
// CSV files in resumable chunks, drives server-side processing to completion,
// and inspects running imports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	// Global flags
	serverURL  string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "importctl",
	Short:   "Client for the chunked CSV import service",
	Version: version,
	Long: `importctl talks to the import service API.

Files are uploaded as byte ranges so a flaky connection only costs the
current chunk, then the server processes the CSV in resumable batches.

Server selection, highest priority first:
  --server flag
  IMPORTCTL_SERVER environment variable
  server: entry in the config file (--config, default ~/.importctl.yaml)`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "base URL of the import service (e.g. http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ~/.importctl.yaml)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(errorsCmd)
}
