package main

import (
	"canvas-backend/internal/di"
	"canvas-backend/internal/session"

	"github.com/spf13/cobra"
)

func snapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture and list graph snapshots",
	}
	cmd.AddCommand(snapshotCaptureCmd(a), snapshotListCmd(a))
	return cmd
}

func snapshotCaptureCmd(a *app) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "capture PROJECT",
		Short: "Store the current graph of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			err := a.withSession(cmd.Context(), args[0], func(c *di.Container, s *session.Controller) error {
				var err error
				id, err = c.History.Capture(cmd.Context(), s, comment)
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"snapshot_id": id})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "snapshot comment")
	return cmd
}

func snapshotListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT",
		Short: "List the snapshots of a project, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			snaps, err := c.History.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, snaps)
		},
	}
}
