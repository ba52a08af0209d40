package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/bankfill/internal/autofill"
	"github.com/dgnsrekt/bankfill/internal/controller"
)

func newFillCmd(a *app) *cobra.Command {
	var (
		targetID string
		fragment string
		name     string
		amount   int64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill the form once on an open bank page and print the outcome",
		Long:  "Runs the pipeline once. Without --fragment or --name/--amount the request is read from the page's current URL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			svc := controller.NewService(rt.cdp, rt.mode, rt.autofill,
				controller.WithSnapshots(rt.snaps),
				controller.WithJournal(rt.journal),
				controller.WithNotifier(rt.notifier),
			)

			source := autofill.AsFragment(fragment)
			if source == "" && (name != "" || amount != 0) {
				source = autofill.Request{Recipient: name, Amount: amount}.Fragment()
			}
			rec, err := svc.StartRun(ctx, targetID, source)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rec); err != nil {
					return err
				}
			} else {
				printRecord(out, rec)
			}
			if !rec.Outcome.Succeeded() {
				return fmt.Errorf("run %s aborted: %s", rec.Outcome.RunID, rec.Outcome.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&targetID, "target", "", "target ID of the page (default: first bank page)")
	cmd.Flags().StringVar(&fragment, "fragment", "", "fragment or URL carrying name and amount")
	cmd.Flags().StringVar(&name, "name", "", "recipient name")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in whole dollars")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run record as JSON")
	cmd.MarkFlagsMutuallyExclusive("fragment", "name")
	cmd.MarkFlagsMutuallyExclusive("fragment", "amount")
	return cmd
}

func printRecord(w io.Writer, rec controller.RunRecord) {
	o := rec.Outcome
	fmt.Fprintf(w, "run %s on %s: %s", o.RunID, rec.TargetID, o.State)
	if o.Kind != "" {
		fmt.Fprintf(w, " (%s)", o.Kind)
	}
	fmt.Fprintln(w)
	if o.Request != nil {
		fmt.Fprintf(w, "request: %s, $%s\n", o.Request.Recipient, humanize.Comma(o.Request.Amount))
	}
	if o.Suggestion != "" {
		fmt.Fprintf(w, "selected: %s\n", o.Suggestion)
	}
	if o.Balance != nil {
		fmt.Fprintf(w, "balance: $%s\n", humanize.Comma(*o.Balance))
	}
	if o.Message != "" {
		fmt.Fprintf(w, "message: %s\n", o.Message)
	}
	if rec.SnapshotID != "" {
		fmt.Fprintf(w, "snapshot: %s\n", rec.SnapshotID)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tFROM\tTO\tDETAIL")
	for _, t := range o.Transitions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.At.Format("15:04:05.000"), t.From, t.To, t.Detail)
	}
	_ = tw.Flush()
}
