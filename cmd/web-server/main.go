// Command web-server runs the single-threaded HTTP/1.x server.
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
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "web-server",
		Short: "Single-threaded HTTP/1.x web server",
		Long: `web-server serves HTTP/1.0 and HTTP/1.1 clients from one event loop.

Every connection is multiplexed over a single readiness wait, either the
built-in poll loop or a gnet engine. Requests are routed to health, echo,
localized static pages and a document store kept on disk or in S3.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		versionCmd(),
	)
	return root
}
