package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
	"github.com/dgnsrekt/bankfill/internal/controller"
	"github.com/dgnsrekt/bankfill/internal/relay"
	"github.com/dgnsrekt/bankfill/internal/snapshot"
)

type Service interface {
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
	StartRun(ctx context.Context, targetID, source string) (controller.RunRecord, error)
	RecentRuns(limit int) []controller.RunRecord
	GetRun(runID string) (controller.RunRecord, error)
	ListSnapshots(runID string) ([]snapshot.SnapshotMeta, error)
	GetSnapshot(id string) (snapshot.SnapshotMeta, error)
	ReadSnapshotImage(id string) ([]byte, string, error)
}

// NewServer builds the control API. broker may be nil, in which case the
// event stream is not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("bankfill Controller API", "1.0.0")
	cfg.Info.Description = "Run transitions and outcomes stream as server-sent events from GET " + eventsPath + "?feeds=transition,outcome,trigger."
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get(eventsPath, relay.SSEHandler(broker))
	}

	registerHealthHandlers(api, broker)
	registerRunHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

const eventsPath = "/api/v1/events"

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodePageNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeBusy:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	switch {
	case errors.Is(err, snapshot.ErrInvalidID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, controller.ErrRunNotFound):
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
