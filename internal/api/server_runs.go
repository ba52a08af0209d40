package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/bankfill/internal/autofill"
	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
	"github.com/dgnsrekt/bankfill/internal/controller"
)

type startRunInput struct {
	Body struct {
		TargetID string `json:"target_id,omitempty" doc:"Page to fill. Omit to use the first bank page."`
		Fragment string `json:"fragment,omitempty" doc:"URL fragment or full URL carrying name and amount" example:"#/tab=controls&name=OgBob&amount=1000000"`
		Name     string `json:"name,omitempty" doc:"Recipient name, used when fragment is omitted" example:"OgBob"`
		Amount   int64  `json:"amount,omitempty" doc:"Amount in whole dollars, used when fragment is omitted" example:"1000000"`
	} `required:"false"`
}

// source picks what the engine parses. With neither a fragment nor a
// name/amount pair the page's own URL is used.
func (in *startRunInput) source() string {
	if f := strings.TrimSpace(in.Body.Fragment); f != "" {
		return autofill.AsFragment(f)
	}
	if strings.TrimSpace(in.Body.Name) == "" && in.Body.Amount == 0 {
		return ""
	}
	return autofill.Request{Recipient: in.Body.Name, Amount: in.Body.Amount}.Fragment()
}

type runOutput struct {
	Body controller.RunRecord
}

func registerRunHandlers(api huma.API, svc Service) {
	type pagesOutput struct {
		Body struct {
			Pages []cdpcontrol.PageInfo `json:"pages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-pages", Method: http.MethodGet, Path: "/api/v1/pages", Summary: "List open bank pages", Tags: []string{"Pages"}},
		func(ctx context.Context, input *struct{}) (*pagesOutput, error) {
			pages, err := svc.ListPages(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pagesOutput{}
			out.Body.Pages = pages
			return out, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "start-run",
		Method:      http.MethodPost,
		Path:        "/api/v1/runs",
		Summary:     "Fill the transfer form",
		Description: "Runs the autofill pipeline on a page and returns its outcome. The form is never submitted. Parameter problems are reported in the outcome as PARAMS_MISSING, not as an HTTP error.",
		Tags:        []string{"Runs"},
	}, func(ctx context.Context, input *startRunInput) (*runOutput, error) {
		rec, err := svc.StartRun(ctx, input.Body.TargetID, input.source())
		if err != nil {
			return nil, mapErr(err)
		}
		return &runOutput{Body: rec}, nil
	})

	type listRunsOutput struct {
		Body struct {
			Runs []controller.RunRecord `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-runs", Method: http.MethodGet, Path: "/api/v1/runs", Summary: "List recent runs, newest first", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct {
			Limit int `query:"limit" default:"20" minimum:"0" doc:"Maximum runs to return (0 for all kept)"`
		}) (*listRunsOutput, error) {
			out := &listRunsOutput{}
			out.Body.Runs = svc.RecentRuns(input.Limit)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-run", Method: http.MethodGet, Path: "/api/v1/runs/{run_id}", Summary: "Get a recent run", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct {
			RunID string `path:"run_id"`
		}) (*runOutput, error) {
			rec, err := svc.GetRun(input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &runOutput{Body: rec}, nil
		})
}
