package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hyperengineering/sidecar/internal/config"
	"github.com/hyperengineering/sidecar/internal/ledger"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var auditPathOverride string

var rootCmd = &cobra.Command{
	Use:           "sidecar",
	Short:         "Sidecar - append-only knowledge ledger",
	Long:          "Record proposals, promotions, evidence, facts and chains, and replay the audit trail.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&auditPathOverride, "audit-file", "",
		"Audit file path (overrides config and LOG_ROOT)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(auditCmd)
}

// loadConfig loads configuration and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLedger opens the ledger by replaying the configured audit file, so the
// CLI sees the same state any prior run committed.
func openLedger() (*ledger.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.AuditPath()
	if auditPathOverride != "" {
		path = auditPathOverride
	}
	return ledger.Open(ledger.Options{AuditPath: path})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
