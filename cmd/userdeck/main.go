package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "userdeck",
		Short: "Admin console for the user service",
		Long: `Userdeck is an admin console for the remote user service.

It keeps a local collection of user records, applies every change
optimistically before the server confirms it, and rolls back cleanly
when the server refuses. Features include:

  • Optimistic create, update, delete, and status toggling
  • Partial-failure-tolerant bulk deletion
  • Virtualized list windows for large user sets
  • Live updates over WebSocket
  • GDPR subject-access exports to S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", ".", "Directory containing userdeck.json")

	rootCmd.AddCommand(
		serveCmd(),
		usersCmd(),
		exportCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
