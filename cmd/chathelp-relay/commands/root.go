package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "chathelp-relay",
	Short: "Realtime conversational relay server",
	Long: `chathelp-relay - a realtime conversational relay.

Each client connection exchanges free-text messages over a WebSocket
channel. Answers come from a response cache, deterministic intent
handlers (date/time, web search), or a generative-text backend, and are
optionally spoken back as synthesized audio.

Configuration is a YAML file (see --config). Credentials come from the
environment: OPENAI_API_KEY / GEMINI_API_KEY for the generative backend,
SERPAPI_KEY for web search.

Examples:
  # Run with defaults (listens on :3000)
  OPENAI_API_KEY=sk-... chathelp-relay serve

  # Run with a config file
  chathelp-relay serve --config relay.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// IsVerbose reports whether --verbose was given.
func IsVerbose() bool {
	return verbose
}
