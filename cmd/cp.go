package cmd

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// cpCmd copies the extracted context to the system clipboard instead of printing it
var cpCmd = &cobra.Command{
	Use:   "cp [message with YouTube links]",
	Short: "Copy the video context to the clipboard",
	Long: `Resolve the YouTube links in a message and copy the resulting context block
to the clipboard, ready to paste into any chat assistant.`,
	Example: `  # Copy the context of a video
  tubetalk cp "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  tubetalk cp tAP1eZYEuKA

  # Copy a whole playlist
  tubetalk cp "https://www.youtube.com/playlist?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf"`,
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
		if res.Videos() == 0 {
			return fmt.Errorf("nothing to copy: no video could be fetched")
		}

		if err := clipboard.WriteAll(res.Context); err != nil {
			return fmt.Errorf("copying context to clipboard: %w", err)
		}

		if !config.Quiet {
			fmt.Fprintln(os.Stderr, "Context copied to clipboard")
		}

		return nil
	},
}

func init() {
	internal.AddContentFlags(cpCmd)
	rootCmd.AddCommand(cpCmd)
}
