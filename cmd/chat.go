package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// chatCmd runs an interactive conversation in the terminal
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat about YouTube videos in the terminal",
	Long: `Start a conversation. Paste YouTube links into any message and their
content is read before the model answers. Earlier messages and their
video context stay part of the conversation.

Commands: /reset clears the conversation, /history shows it, /exit quits.`,
	Example: `  # Start chatting
  tubetalk chat

  # Pipe a scripted conversation
  printf 'What is https://youtu.be/tAP1eZYEuKA about?\nAnd the main takeaway?\n' | tubetalk chat`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.ValidateModelRequirements(cmd, config)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		return runChat(cmd.Context(), app, os.Stdin, stdinIsTerminal())
	},
}

func runChat(ctx context.Context, app *internal.App, in io.Reader, interactive bool) error {
	session := app.NewSession()
	lines := readLines(ctx, in)

	if interactive {
		fmt.Fprintf(os.Stderr, "Chatting with %s. Paste YouTube links into your messages. /exit to quit.\n", config.Model)
	}

	for {
		if interactive {
			fmt.Fprint(os.Stderr, "> ")
		}

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			session.Reset()
			fmt.Fprintln(os.Stderr, "Conversation cleared")
			continue
		case "/history":
			for _, m := range session.History() {
				fmt.Println(m.String())
			}
			continue
		}

		spinner := app.UI().NewSpinner("Thinking...")
		if !interactive {
			spinner = &internal.SilentProgressBar{}
		}

		// an interactive terminal sees the answer as it is written; piped
		// output gets the rendered reply in one piece
		var (
			reply    *internal.Reply
			err      error
			streamed bool
		)
		if interactive && stdoutIsTerminal() {
			reply, err = session.SendStream(ctx, line, func(delta string) {
				if !streamed {
					spinner.Finish()
					streamed = true
				}
				fmt.Print(delta)
			})
		} else {
			reply, err = session.Send(ctx, line)
		}
		if streamed {
			fmt.Println()
		} else {
			spinner.Finish()
		}
		if err != nil {
			// the turn was not recorded, so the user can simply retry
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		printResolution(reply.Resolution)
		if streamed {
			continue
		}
		if err := printReply(reply.Text); err != nil {
			fmt.Println(reply.Text)
		}
	}
}

// readLines feeds input lines into a channel so the loop can also watch ctx
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func init() {
	internal.AddModelFlags(chatCmd)
	internal.AddContentFlags(chatCmd)
	rootCmd.AddCommand(chatCmd)
}
