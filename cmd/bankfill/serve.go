package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/bankfill/internal/api"
	"github.com/dgnsrekt/bankfill/internal/controller"
	"github.com/dgnsrekt/bankfill/internal/netutil"
	"github.com/dgnsrekt/bankfill/internal/relay"
	"github.com/dgnsrekt/bankfill/internal/trigger"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		bindAddr  string
		noTrigger bool
		history   int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and fill bank pages when they load or their fragment changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if bindAddr != "" {
				cfg.BindAddr = bindAddr
			}
			ctx := cmd.Context()

			rt, err := openRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			broker := relay.NewBroker()
			svc := controller.NewService(rt.cdp, rt.mode, rt.autofill,
				controller.WithSnapshots(rt.snaps),
				controller.WithJournal(rt.journal),
				controller.WithBroker(broker),
				controller.WithNotifier(rt.notifier),
				controller.WithHistorySize(history),
			)

			if !noTrigger {
				sched := trigger.NewScheduler(cfg.TriggerDebounce(), func(ctx context.Context, targetID, reason string) {
					broker.PublishJSON(relay.FeedTrigger, map[string]string{"target_id": targetID, "reason": reason})
					svc.RunFromTrigger(ctx, targetID, reason)
				})
				defer sched.Stop()
				watcher := trigger.NewWatcher(cfg.CDPURL(), rt.cdp, sched, 5*time.Second)
				go func() {
					if err := watcher.Run(ctx); err != nil {
						slog.Error("trigger watcher failed", "error", err)
					}
				}()
			}

			ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
			if err != nil {
				return err
			}
			srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				addr := ln.Addr().String()
				slog.Info("bankfill listening", "addr", addr, "docs", "http://"+addr+"/docs", "trigger", !noTrigger)
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					slog.Error("bankfill server failed", "error", err)
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("bankfill shutdown failed", "error", err)
			}
			slog.Info("bankfill stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&bindAddr, "bind", "", "control API bind address; overrides CONTROLLER_BIND_ADDR")
	cmd.Flags().BoolVar(&noTrigger, "no-trigger", false, "only fill on API requests, never on page events")
	cmd.Flags().IntVar(&history, "history", 50, "number of finished runs kept for GET /api/v1/runs")
	return cmd
}
