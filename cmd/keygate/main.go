// Keygate — admin approval service for device login requests.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keygate",
	Short: "Keygate — organization admin approval for device login requests.",
	Long: `Keygate records device login requests awaiting organization admin approval
and drives the approval workflow: decisions are persisted once, devices are
notified, members are emailed, and every decision lands in the audit event log.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
