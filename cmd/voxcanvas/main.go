// Command voxcanvas is the kiosk client of the voice-driven art installation.
//
// Usage:
//
//	voxcanvas [flags] <command> [args]
//
// Commands:
//
//	run              - connect, stream the microphone and show the live image
//	sessions         - list persisted sessions
//	load <name>      - print the history of a persisted session
//	export           - download the current session archive
//
// Every flag has an environment fallback (VOXCANVAS_URL, VOXCANVAS_DATA_DIR,
// VOXCANVAS_SETTINGS, VOXCANVAS_METRICS_ADDR, VOXCANVAS_LOG_LEVEL,
// VOXCANVAS_EXPORT_DIR).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "dev"

// Config holds process configuration, loaded from environment variables
// and overridden by flags.
type Config struct {
	URL          string
	DataDir      string
	SettingsFile string
	MetricsAddr  string
	LogLevel     string
	ExportDir    string
	Plain        bool
}

func loadConfig() Config {
	cfg := Config{
		URL:       "ws://localhost:8000/ws",
		DataDir:   defaultDataDir(),
		LogLevel:  "info",
		ExportDir: ".",
	}

	if v := os.Getenv("VOXCANVAS_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("VOXCANVAS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VOXCANVAS_SETTINGS"); v != "" {
		cfg.SettingsFile = v
	}
	if v := os.Getenv("VOXCANVAS_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("VOXCANVAS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VOXCANVAS_EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}

	return cfg
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voxcanvas")
	}
	return ".voxcanvas"
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func newRootCmd() *cobra.Command {
	cfg := loadConfig()

	root := &cobra.Command{
		Use:           "voxcanvas",
		Short:         "Kiosk client for the voice-driven art installation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cfg.LogLevel)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.URL, "url", cfg.URL, "backend websocket endpoint")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for durable local settings")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(&cfg),
		newSessionsCmd(&cfg),
		newLoadCmd(&cfg),
		newExportCmd(&cfg),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
