package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zebadrabbit/HelpMePost/internal/graphemes"
)

func newPlansCmd(a *app) *cobra.Command {
	var (
		limit int
		show  int64
	)
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List stored plans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if show != 0 {
				rec, err := st.GetPlan(ctx, show)
				if err != nil {
					return err
				}
				return a.printJSON(rec)
			}
			recs, err := st.ListPlans(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range recs {
				summary := ""
				switch {
				case r.Plan.Bluesky != nil:
					summary, _, _ = strings.Cut(r.Plan.Bluesky.Text, "\n")
				case r.Plan.YouTube != nil:
					summary = r.Plan.YouTube.Title
				}
				fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Model, graphemes.Truncate(summary, 60))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of plans to list")
	cmd.Flags().Int64Var(&show, "show", 0, "print one plan as JSON")
	return cmd
}

func newPostsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List published posts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			posts, err := st.ListPosts(ctx, limit)
			if err != nil {
				return err
			}
			for _, p := range posts {
				plan := "-"
				if p.PlanID != 0 {
					plan = fmt.Sprint(p.PlanID)
				}
				fmt.Fprintf(a.out, "%d\t%s\t%s\tplan %s\t%s\n", p.ID, p.PostedAt.Format("2006-01-02 15:04"), p.Platform, plan, p.URI)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of posts to list")
	return cmd
}
