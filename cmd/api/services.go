package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/commerce-router/internal/config"
	"github.com/zhouzirui/commerce-router/internal/handler/catalog"
)

func newServicesCmd(cfg func() *config.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the registered commerce services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(cfg())
			if err != nil {
				return err
			}
			list := catalog.Describe(registry.List())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tTOOLS\tDESCRIPTION")
			for _, s := range list {
				tools := "no"
				if s.ToolsEnabled {
					tools = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Tag, tools, s.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
