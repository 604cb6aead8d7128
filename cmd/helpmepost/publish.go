package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zebadrabbit/HelpMePost/internal/service"
)

func newPublishCmd(a *app) *cobra.Command {
	var (
		req    service.PublishRequest
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an image post to Bluesky",
		Long: `Publishes text with 1-4 stored images to Bluesky. Credentials come from
BSKY_IDENTIFIER and BSKY_APP_PASSWORD. With --plan the text, media and alt
text default to the stored plan's Bluesky section.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if req.PlanID != 0 {
				rec, err := st.GetPlan(ctx, req.PlanID)
				if err != nil {
					return err
				}
				if rec.Plan.Bluesky == nil {
					return fmt.Errorf("plan %d has no bluesky section", req.PlanID)
				}
				if req.Text == "" {
					req.Text = rec.Plan.Bluesky.Text
				}
				if len(req.SelectedMediaIDs) == 0 {
					req.SelectedMediaIDs = rec.Plan.SelectedMediaIDs
				}
				if req.AltText == nil {
					req.AltText = rec.Plan.Bluesky.AltText
				}
			}

			svc, err := a.newService(ctx, st)
			if err != nil {
				return err
			}

			if dryRun || a.cfg.DryRun {
				draft, err := svc.Preview(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, "DRY RUN ✅ (no network calls)")
				fmt.Fprintf(a.out, "Will post:\n---\n%s\n---\n", req.Text)
				return a.printJSON(draft)
			}

			req.Identifier, req.AppPassword = a.cfg.Bluesky.Identifier, a.cfg.Bluesky.AppPassword
			if req.Identifier == "" || req.AppPassword == "" {
				return errors.New("missing required env var: BSKY_IDENTIFIER and BSKY_APP_PASSWORD")
			}
			resp, err := svc.Publish(ctx, req)
			if perr := a.printJSON(resp); perr != nil && err == nil {
				return perr
			}
			if err != nil {
				return errors.New(resp.Error.HumanMessage)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Text, "text", "", "post text")
	f.Int64SliceVar(&req.SelectedMediaIDs, "media", nil, "media ids, in display order")
	f.StringArrayVar(&req.AltText, "alt", nil, "alt text per image, in order (repeatable)")
	f.Int64Var(&req.PlanID, "plan", 0, "stored plan id to publish")
	f.BoolVar(&dryRun, "dry-run", false, "print what would be posted and make no network call")
	f.BoolVar(&req.MirrorX, "mirror-x", false, "also post to X (needs X_* credentials)")
	return cmd
}
