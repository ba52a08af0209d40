package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
)

func newPagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List open tabs matching the bank tab filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := cdpcontrol.NewClient(a.cfg.CDPURL(), a.cfg.TabURLFilter, a.cfg.EvalTimeout())
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer client.Close()

			pages, err := client.ListPages(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TARGET\tTITLE\tURL")
			for _, p := range pages {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.TargetID, p.Title, p.URL)
			}
			return tw.Flush()
		},
	}
}
