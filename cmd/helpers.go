package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// newApp applies the command's flags and builds the app
func newApp(cmd *cobra.Command, options ...internal.AppOption) (*internal.App, error) {
	if err := internal.ApplyFlags(cmd, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return internal.NewApp(cmd.Context(), config, options...)
}

// writeOutput writes to the --output file when set, stdout otherwise
func writeOutput(cmd *cobra.Command, content string) error {
	outputFile, _ := cmd.Flags().GetString("output")
	if outputFile != "" {
		return os.WriteFile(outputFile, []byte(content), 0644)
	}
	fmt.Println(content)
	return nil
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printReply renders markdown on a terminal and prints raw text when piped
func printReply(text string) error {
	if !stdoutIsTerminal() {
		fmt.Println(text)
		return nil
	}
	rendered, err := internal.RenderMarkdown(text)
	if err != nil {
		return err
	}
	fmt.Print(rendered)
	return nil
}

// printResolution reports which links made it into the context
func printResolution(res *internal.Resolution) {
	if config.Quiet || res == nil {
		return
	}
	if n := res.Videos(); n > 0 {
		noun := "videos"
		if n == 1 {
			noun = "video"
		}
		fmt.Fprintf(os.Stderr, "🔗 %d %s included\n", n, noun)
	}
	for _, failed := range res.Failures() {
		fmt.Fprintf(os.Stderr, "⚠️  %s unavailable (%s)\n", failed.ID.ID, internal.FailureReason(failed.Err))
	}
}

// redactDSN hides the password of a connection string
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
