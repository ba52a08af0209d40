package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/bankfill/internal/config"
)

// app carries state the root command prepares for its subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		logLevel     string
		variantsFile string
		inputMode    string
	)

	root := &cobra.Command{
		Use:          "bankfill",
		Short:        "Fill the faction bank give-money form over the Chrome DevTools Protocol",
		Long:         "bankfill attaches to a running Chromium, reads the recipient and amount from the bank page's URL fragment, picks the recipient from the autocomplete, checks the balance, and writes the amount. It never submits the form.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if variantsFile != "" {
				cfg.VariantsFile = variantsFile
			}
			if inputMode != "" {
				cfg.InputMode = inputMode
			}
			if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("logger setup failed: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&variantsFile, "variants", "", "YAML file with UI variants; overrides AUTOFILL_VARIANTS_FILE")
	root.PersistentFlags().StringVar(&inputMode, "input-mode", "", "synthetic or trusted; overrides AUTOFILL_INPUT_MODE")

	root.AddCommand(newServeCmd(a), newFillCmd(a), newPagesCmd(a), newVariantsCmd(a))
	return root
}

func setupLogger(level, filename string) error {
	var out io.Writer = os.Stdout
	if filename != "" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
