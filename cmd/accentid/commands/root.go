package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/accentid/cmd/accentid/internal/config"
)

var (
	// Global flags
	verbose     bool
	contextName string
	logLevel    string
	logFormat   string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "accentid",
	Short: "Detect the English accent of a speaker in audio or video",
	Long: `accentid - English accent detection from video or audio.

Upload an audio/video file or paste a public video URL, and accentid will
extract the audio (if needed) and detect the speaker's English accent using
a deep learning model.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/accentid/
  Linux:   ~/.config/accentid/
  Windows: %AppData%/accentid/

Set ACCENTID_CONFIG_DIR to use another directory, and HF_TOKEN to
authenticate against the model hub.

Examples:
  # Serve the web page on :8501
  accentid serve

  # Classify local files and URLs
  accentid classify talk.mp4 https://example.com/interview.mp4

  # Pre-fetch the model for offline use
  accentid model pull`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&contextName, "context", "c", "", "config context (default: current context)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from settings)")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json (default from settings)")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// LoadSettings returns the settings of --context (or the current context).
func LoadSettings() (*config.Settings, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return config.LoadSettings(cfg, contextName)
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// newLogger builds the process logger from settings and flags, and
// installs it as the slog default.
func newLogger(s *config.Settings, w io.Writer) (*slog.Logger, error) {
	level, format := s.Log.Level, s.Log.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	if verbose {
		level = "debug"
	}

	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q (text or json)", format)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func stderrLogger(s *config.Settings) (*slog.Logger, error) {
	return newLogger(s, os.Stderr)
}

// outputWriter returns the command's stdout unless output goes to a file.
func outputWriter(cmd *cobra.Command, file string) io.Writer {
	if file != "" {
		return nil
	}
	return cmd.OutOrStdout()
}
