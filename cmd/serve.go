package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// serveCmd runs the chat and extract web UI
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and extract web UI",
	Long: `Serve a small web UI:

  /         chat about videos, one conversation per browser
  /extract  view the context extracted from links without asking the model

The JSON API lives under /api (chat, reset, extract, health).`,
	Example: `  # Listen on the configured address (default :8080)
  tubetalk serve

  # Listen elsewhere with a Postgres cache
  tubetalk serve --addr 127.0.0.1:9000 --database-url postgres://localhost/tubetalk`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.ValidateModelRequirements(cmd, config)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			config.ListenAddr = addr
		}
		config.Quiet = true

		logger, closer := internal.NewLogger(config, "serve", false)
		defer closer.Close()

		app, err := newApp(cmd, internal.WithLogger(logger))
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Fprintf(os.Stderr, "Listening on %s\n", config.ListenAddr)
		return internal.NewServer(app, version).ListenAndServe(cmd.Context(), config.ListenAddr)
	},
}

func init() {
	internal.AddModelFlags(serveCmd)
	internal.AddContentFlags(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}
