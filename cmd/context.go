package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// contextCmd prints the context block a message would send to the model
var contextCmd = &cobra.Command{
	Use:     "context [message with YouTube links]",
	Aliases: []string{"extract"},
	Short:   "Print the video context extracted from a message",
	Example: `  # Show what the model would see
  tubetalk context "https://youtu.be/tAP1eZYEuKA and https://youtu.be/dQw4w9WgXcQ"

  # Save it without timestamps
  tubetalk context --timestamps=false https://youtu.be/tAP1eZYEuKA -o context.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, err := messageFromArgs(args)
		if err != nil {
			return err
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		res := app.ResolveContextWithStatus(cmd.Context(), message, !config.Quiet)
		printResolution(res)
		return writeOutput(cmd, res.Context)
	},
}

// messageFromArgs joins args and turns a lone bare ID into a link
func messageFromArgs(args []string) (string, error) {
	message := strings.Join(args, " ")
	if len(internal.ExtractIDs(message)) > 0 {
		return message, nil
	}
	if len(args) == 1 {
		if id, err := internal.ParseArg(args[0]); err == nil {
			return id.URL(), nil
		}
	}
	return "", errors.New("no YouTube links found")
}

func init() {
	internal.AddContentFlags(contextCmd)
	contextCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	rootCmd.AddCommand(contextCmd)
}
