package main

import (
	"github.com/spf13/cobra"

	"github.com/zebadrabbit/HelpMePost/internal/service"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		req        service.GenerateRequest
		intentText string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft a plan from an intent and selected media",
		Example: `  helpmepost generate --focus "Launch day for my app" --tag launch --media 1 --template
  helpmepost generate --intent $'Focus: Studio tour\nTone: cozy' --media 2,3 --target bluesky`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := a.newService(ctx, st)
			if err != nil {
				return err
			}

			req.ApplyIntentText(intentText)
			resp, err := svc.Generate(ctx, req)
			if err != nil {
				_ = a.printJSON(resp)
				return err
			}
			return a.printJSON(resp)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Focus, "focus", "", "what the post is about")
	f.StringVar(&intentText, "intent", "", "intent in builder format (Focus:/Audience:/Tone: lines)")
	f.StringVar(&req.Audience, "audience", "", "who the post is for")
	f.StringVar(&req.Tone, "tone", "", "tone, e.g. cozy, excited, informative")
	f.StringSliceVar(&req.Tags, "tag", nil, "hashtag to include (repeatable)")
	f.BoolVar(&req.AddEmojis, "emojis", false, "add emojis")
	f.StringVar(&req.CTATarget, "cta", "", "call to action target: @handle or URL")
	f.Int64SliceVar(&req.SelectedMediaIDs, "media", nil, "selected media ids, in order")
	f.BoolVar(&req.TemplateMode, "template", false, "skip the generative backend")
	f.StringVar(&req.Model, "model", "", "generative model (default from GEMINI_MODEL)")
	f.StringSliceVar(&req.Targets, "target", nil, "platforms to draft for: bluesky, youtube")
	f.BoolVar(&req.StrictTags, "strict-tags", false, "do not add suggested hashtags")
	return cmd
}
