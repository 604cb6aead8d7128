package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zebadrabbit/HelpMePost/internal/xpost"
)

func newXVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "x-verify",
		Short: "Check the X mirror credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred := xCredentials(a.cfg.X)
			if missing := cred.Missing(); len(missing) > 0 {
				return fmt.Errorf("missing required env var: %s", strings.Join(missing, ", "))
			}
			name, err := xpost.New(cmd.Context(), cred, xpost.WithLogger(a.log)).ValidateCredentials()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "X credentials OK for @%s\n", name)
			return nil
		},
	}
}
