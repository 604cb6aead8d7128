package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/zebadrabbit/HelpMePost/internal/richtext"
)

func newFacetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "facets TEXT",
		Short: "Print the link and mention facets of TEXT with UTF-8 byte offsets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			facets := richtext.BuildFacets(strings.Join(args, " "))
			if facets == nil {
				return a.printJSON([]any{})
			}
			return a.printJSON(facets)
		},
	}
}
