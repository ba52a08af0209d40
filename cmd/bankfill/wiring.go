package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/bankfill/internal/autofill"
	"github.com/dgnsrekt/bankfill/internal/browser"
	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
	"github.com/dgnsrekt/bankfill/internal/config"
	"github.com/dgnsrekt/bankfill/internal/journal"
	"github.com/dgnsrekt/bankfill/internal/notify"
	"github.com/dgnsrekt/bankfill/internal/snapshot"
)

// stack holds the long-lived pieces shared by serve and fill.
type stack struct {
	cdp      *cdpcontrol.Client
	launcher *browser.Launcher
	autofill autofill.Config
	mode     cdpcontrol.InputMode
	snaps    *snapshot.Store
	journal  *journal.Writer
	notifier *notify.Notifier
}

func openRuntime(ctx context.Context, cfg *config.Config) (*stack, error) {
	afCfg, err := cfg.Autofill()
	if err != nil {
		return nil, err
	}
	if afCfg.BalancePolicy == autofill.BalanceMax {
		slog.Warn("balance policy max selected: the largest amount near the balance phrase is used instead of the first")
	}
	mode, err := cdpcontrol.ParseInputMode(cfg.InputMode)
	if err != nil {
		return nil, err
	}

	rt := &stack{autofill: afCfg, mode: mode}

	if cfg.BrowserLaunch {
		rt.launcher = browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			StartURL:    cfg.BrowserStartURL,
			ProfileDir:  cfg.BrowserProfileDir,
			BrowserPath: cfg.BrowserPath,
		})
		if err := rt.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	rt.cdp = cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	if err := rt.cdp.Connect(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("connect CDP at %s: %w", cfg.CDPURL(), err)
	}

	if rt.snaps, err = snapshot.NewStore(cfg.SnapshotDir); err != nil {
		rt.close()
		return nil, err
	}
	rt.journal = journal.NewWriter(cfg.JournalDir, "runs", 256, 50)
	rt.notifier = notify.New(cfg.NtfyEndpoint, notify.WithPriority("high"), notify.WithTags("warning", "moneybag"))

	slog.Info("bankfill runtime ready",
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"input_mode", mode,
		"balance_policy", afCfg.BalancePolicy,
		"variants_file", cfg.VariantsFile,
		"snapshot_dir", cfg.SnapshotDir,
		"journal_dir", cfg.JournalDir,
		"ntfy", rt.notifier != nil,
	)
	return rt, nil
}

func (rt *stack) close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}
	if rt.cdp != nil {
		if err := rt.cdp.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}
	if rt.launcher != nil && rt.launcher.Running() {
		rt.launcher.Stop()
	}
}
