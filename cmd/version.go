package cmd

import (
	"fmt"
	"net/url"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/rtzll/tubetalk/internal"
)

// set with -ldflags at release time
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// buildInfo fills commit and date from the VCS stamp of a plain `go build`
func buildInfo() (rev, built string) {
	rev, built = commit, date
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return rev, built
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if rev == "" && len(s.Value) >= 7 {
				rev = s.Value[:7]
			}
		case "vcs.time":
			if built == "" {
				built = s.Value
			}
		}
	}
	return rev, built
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		rev, built := buildInfo()
		if rev == "" {
			rev = "unknown"
		}
		fmt.Printf("%s %s\n", internal.AppName, version)
		fmt.Printf("  commit: %s\n", rev)
		if built != "" {
			fmt.Printf("  built:  %s\n", built)
		}
		fmt.Printf("  cache:  %s\n", cacheKind(config))
	},
}

// cacheKind names the configured content store without leaking credentials
func cacheKind(c *internal.Config) string {
	if c == nil || c.DatabaseURL == "" {
		return "none"
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.Scheme == "" {
		return "unknown"
	}
	return u.Scheme
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
