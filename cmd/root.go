package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rtzll/tubetalk/internal"
)

var (
	config *internal.Config
)

// rootCmd answers a single message; YouTube links in it are read first
var rootCmd = &cobra.Command{
	Use:   "tubetalk [message with YouTube links]",
	Short: "Ask questions about YouTube videos",
	Long: `tubetalk answers questions about YouTube videos and playlists.

Every YouTube link in your message is resolved to its title, channel,
description and transcript, which are handed to the model together with
your question. Content is cached when database_url is configured.

Use "tubetalk chat" for a conversation and "tubetalk serve" for the web UI.`,
	Example: `  # Ask about a video
  tubetalk "What is this about? https://youtu.be/tAP1eZYEuKA"

  # Compare two videos with a specific model
  tubetalk -m gpt-4o "Compare https://youtu.be/tAP1eZYEuKA and https://youtu.be/dQw4w9WgXcQ"

  # Use a custom prompt template
  tubetalk --prompt "Answer in one sentence. {{.Message}} {{.Context}}" "https://youtu.be/tAP1eZYEuKA"`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.HandleVerboseFlag(cmd, config)
	},
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.ValidateModelRequirements(cmd, config)
	},
	RunE: runAsk,
}

// askCmd is the explicit form of the root command
var askCmd = &cobra.Command{
	Use:   "ask [message with YouTube links]",
	Short: "Answer a single message",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.ValidateModelRequirements(cmd, config)
	},
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if len(args) == 1 && internal.IsLikelyCommand(args[0], commandNames(cmd.Root())) {
		return unknownCommandError(cmd.Root(), args[0])
	}
	// a bare video or playlist ID becomes a link
	if len(internal.ExtractIDs(message)) == 0 && len(args) == 1 {
		if id, err := internal.ParseArg(args[0]); err == nil {
			message = "Summarize this: " + id.URL()
		}
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	reply, err := app.AskWithStatus(cmd.Context(), message, !config.Quiet)
	if err != nil {
		return err
	}

	printResolution(reply.Resolution)
	return printReply(reply.Text)
}

func commandNames(root *cobra.Command) []string {
	var names []string
	for _, c := range root.Commands() {
		if c.IsAvailableCommand() {
			names = append(names, c.Name())
		}
	}
	return names
}

func unknownCommandError(root *cobra.Command, arg string) error {
	suggestions := internal.CommandSuggestions(arg, commandNames(root))
	if len(suggestions) > 0 {
		return fmt.Errorf("'%s' doesn't look like a question or YouTube link. Did you mean: %s?", arg, strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("'%s' doesn't look like a question or YouTube link. Use --help to see available commands", arg)
}

// configFileFlag picks --config out of args. The config has to be loaded
// before cobra parses flags, so unknown flags are skipped here.
func configFileFlag(args []string) string {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config = internal.InitConfig(configFileFlag(os.Args[1:]))

	if err := internal.EnsureDirs(config.ConfigDir, config.DataDir, config.CacheDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating XDG directories: %v\n", err)
		os.Exit(1)
	}

	if err := internal.EnsureDefaultConfig(config.ConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default config: %v\n", err)
	}

	if err := internal.EnsureDefaultPrompt(config.ConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default prompt: %v\n", err)
	}

	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Shutting down...")

		// servers drain on cancel; give them a moment before forcing exit
		cancel()

		select {
		case <-done:
		case <-time.After(10 * time.Second):
			fmt.Fprintln(os.Stderr, "Warning: shutdown timed out, forcing exit")
		}

		if err := internal.CleanupTempDir(config.TempDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning up temporary files: %v\n", err)
		}
		os.Exit(130)
	}()

	rootCmd.SetContext(ctx)

	return rootCmd.Execute()
}

func init() {
	internal.AddModelFlags(rootCmd)
	internal.AddContentFlags(rootCmd)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for debugging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Hide spinners and status lines")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is $XDG_CONFIG_HOME/tubetalk/config.toml)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	internal.AddModelFlags(askCmd)
	internal.AddContentFlags(askCmd)
	rootCmd.AddCommand(askCmd)
}
