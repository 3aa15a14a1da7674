package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLinkCmd() *cobra.Command {
	var workspaceID string
	var async bool
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link and verify a workspace's unverified knowledge items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp("bosun-cli")
			if err != nil {
				return err
			}
			defer a.Close()

			if async {
				if err := a.openProducer(); err != nil {
					return err
				}
				if err := a.enqueuer.Link(ctx, workspaceID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Link job queued for workspace %s\n", workspaceID)
				return nil
			}

			if err := a.openStore(ctx); err != nil {
				return err
			}
			if err := a.openRedis(ctx); err != nil {
				return err
			}
			linker, err := a.linker()
			if err != nil {
				return err
			}
			report, err := linker.LinkAndVerifyKB(ctx, workspaceID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %d items (%d failed)\n", report.Processed, report.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id")
	cmd.Flags().BoolVar(&async, "async", false, "queue a link job instead of running it here")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}
