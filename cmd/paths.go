package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show paths used by the application",
	Example: `  # Show all application paths
  tubetalk paths`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Config directory: %s\n", config.ConfigDir)
		fmt.Printf("Data directory: %s\n", config.DataDir)
		fmt.Printf("Cache directory: %s\n", config.CacheDir)
		fmt.Printf("Subtitles directory: %s\n", config.SubtitlesDir)
		fmt.Printf("Temp directory: %s\n", config.TempDir)
		if config.DatabaseURL == "" {
			fmt.Println("Content cache: disabled (set database_url)")
		} else {
			fmt.Printf("Content cache: %s\n", redactDSN(config.DatabaseURL))
		}
	},
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}
