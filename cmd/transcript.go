package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// transcriptCmd prints the transcript of a video or of every video in a playlist
var transcriptCmd = &cobra.Command{
	Use:     "transcript [URL or ID]",
	Aliases: []string{"transcribe"},
	Short:   "Get the transcript of a YouTube video or playlist",
	Example: `  # Get transcript from YouTube captions
  tubetalk transcript "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  tubetalk transcript tAP1eZYEuKA

  # Plain text without [mm:ss] offsets, saved to a file
  tubetalk transcript tAP1eZYEuKA --timestamps=false -o transcript.txt

  # Use Whisper if no captions available (costs money)
  tubetalk transcript tAP1eZYEuKA --fallback-whisper`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := internal.ParseArg(args[0])
		if err != nil {
			return err
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		items, err := app.TranscriptsWithStatus(cmd.Context(), id, !config.Quiet)
		if err != nil {
			if !errors.Is(err, internal.ErrNoCaptions) || !config.FallbackWhisper || id.Type != internal.ContentTypeVideo {
				return err
			}

			// captions came back empty-handed and the source did not fall back itself
			app.UI().Println("No captions available, transcribing audio with Whisper...")
			transcript, werr := app.TranscribeWithWhisperStatus(cmd.Context(), id.ID, !config.Quiet)
			if werr != nil {
				return werr
			}
			items = []internal.ResolvedItem{{
				ID:     id,
				Record: &internal.ContentRecord{ID: id, Transcript: transcript},
			}}
		}

		return writeOutput(cmd, internal.TranscriptText(items, config.Timestamps))
	},
}

func init() {
	internal.AddContentFlags(transcriptCmd)
	transcriptCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	rootCmd.AddCommand(transcriptCmd)
}
