package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// metadataCmd represents the metadata command
var metadataCmd = &cobra.Command{
	Use:   "metadata [URL or ID]",
	Short: "Get metadata of a YouTube video or playlist",
	Example: `  # Get metadata of a video
  tubetalk metadata "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  tubetalk metadata tAP1eZYEuKA

  # List the videos of a playlist
  tubetalk metadata "https://www.youtube.com/playlist?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf" --pretty

  # Save metadata to file
  tubetalk metadata tAP1eZYEuKA -o metadata.json`,
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

		metadata, err := app.MetadataWithStatus(cmd.Context(), id, !config.Quiet)
		if err != nil {
			return err
		}

		var jsonData []byte
		pretty, _ := cmd.Flags().GetBool("pretty")
		if pretty {
			jsonData, err = json.MarshalIndent(metadata, "", "  ")
		} else {
			jsonData, err = json.Marshal(metadata)
		}
		if err != nil {
			return fmt.Errorf("error converting metadata to JSON: %w", err)
		}

		return writeOutput(cmd, string(jsonData))
	},
}

func init() {
	internal.AddContentFlags(metadataCmd)
	metadataCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	metadataCmd.Flags().Bool("pretty", false, "Format output as pretty JSON")
	rootCmd.AddCommand(metadataCmd)
}
