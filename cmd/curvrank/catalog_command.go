package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curvrank/internal/dataset"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog utilities",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summarise images, individuals and encounters in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := dataset.LoadCatalog(cfg.Paths.CatalogPath)
			if err != nil {
				return err
			}
			st := catalog.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog: %s\n", cfg.Paths.CatalogPath)
			fmt.Fprintln(out, renderTable(
				[]string{"Images", "Individuals", "Encounters", "Single-encounter individuals"},
				[][]string{{
					strconv.Itoa(st.Images),
					strconv.Itoa(st.Individuals),
					strconv.Itoa(st.Encounters),
					strconv.Itoa(st.Singletons),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	})
	return catalogCmd
}
