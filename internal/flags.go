package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AddModelFlags adds flags related to the chat model
func AddModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "Model to answer with")
	cmd.Flags().StringP("prompt", "p", "", "Custom prompt template (string or file path)")
	cmd.Flags().String("system-prompt", "", "System prompt sent before the conversation")
}

// AddContentFlags adds flags that control how video content is fetched
func AddContentFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Content source: web or ytdlp")
	cmd.Flags().String("database-url", "", "Content cache (postgres://, sqlite://, redis://, file://)")
	cmd.Flags().Bool("timestamps", true, "Keep [mm:ss] offsets in transcripts")
	AddTranscriptionFlags(cmd)
}

// AddTranscriptionFlags adds flags related to transcription functionality
func AddTranscriptionFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("fallback-whisper", false, "Fallback to Whisper if no captions available (costs money)")
}

// ApplyFlags copies explicitly set flags over the loaded configuration
func ApplyFlags(cmd *cobra.Command, config *Config) error {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"model":         &config.Model,
		"prompt":        &config.Prompt,
		"system-prompt": &config.SystemPrompt,
		"source":        &config.Source,
		"database-url":  &config.DatabaseURL,
	}
	for name, target := range stringFlags {
		if f := flags.Lookup(name); f == nil || !f.Changed {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*target = v
	}

	boolFlags := map[string]*bool{
		"timestamps":       &config.Timestamps,
		"fallback-whisper": &config.FallbackWhisper,
	}
	for name, target := range boolFlags {
		if f := flags.Lookup(name); f == nil || !f.Changed {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*target = v
	}

	config.applyDefaults()
	return nil
}

// HandleVerboseFlag processes the --verbose and --quiet flags to update config
func HandleVerboseFlag(cmd *cobra.Command, config *Config) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}
	if verbose {
		config.Verbose = true
	}
	if quiet, err := cmd.Flags().GetBool("quiet"); err == nil && quiet {
		config.Quiet = true
	}
	return nil
}

// ValidateModelRequirements applies flags and checks the API key and model.
// A missing key is fatal for every command that talks to the model.
func ValidateModelRequirements(cmd *cobra.Command, config *Config) error {
	if err := ApplyFlags(cmd, config); err != nil {
		return err
	}
	if err := config.ValidateForModel(); err != nil {
		return err
	}
	return nil
}
