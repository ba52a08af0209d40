package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/bankfill/internal/autofill"
	"github.com/dgnsrekt/bankfill/internal/config"
)

func newVariantsCmd(a *app) *cobra.Command {
	var candidates bool
	cmd := &cobra.Command{
		Use:   "variants",
		Short: "Print the UI variants in effect as YAML",
		Long:  "Prints the configured variants file, or the built-in variants, in the layout AUTOFILL_VARIANTS_FILE accepts. With --candidates prints the flattened per-field candidate order and the query each locator compiles to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			variants, err := a.cfg.Variants()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !candidates {
				data, err := config.MarshalVariants(variants)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\t#\tLOCATOR\tQUERY")
			locs := autofill.Candidates(variants)
			for _, field := range autofill.Fields {
				for i, loc := range locs[field] {
					kind, expr, err := loc.Query()
					if err != nil {
						return fmt.Errorf("%s[%d]: %w", field, i, err)
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s %s\n", field, i, loc, kind, expr)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&candidates, "candidates", false, "print flattened candidates instead of YAML")
	return cmd
}
