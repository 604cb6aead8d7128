package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMediaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage stored media",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add FILE...",
		Short: "Copy files into the upload directory and record them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			for _, path := range args {
				ref, err := st.ImportFile(ctx, path, a.cfg.UploadDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%d\t%s\t%s\t%d bytes\n", ref.ID, ref.Filename, ref.ContentType, ref.Size)
			}
			return nil
		},
	})
	return cmd
}
