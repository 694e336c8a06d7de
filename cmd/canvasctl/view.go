package main

import (
	"canvas-backend/internal/di"
	"canvas-backend/internal/session"
	"canvas-backend/internal/viewport"

	"github.com/spf13/cobra"
)

func viewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Compute viewports",
	}
	cmd.AddCommand(viewFitCmd(a))
	return cmd
}

func viewFitCmd(a *app) *cobra.Command {
	var width, height float64
	cmd := &cobra.Command{
		Use:   "fit PROJECT",
		Short: "Print the viewport that frames every node of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fitted viewport.Viewport
			err := a.withSession(cmd.Context(), args[0], func(c *di.Container, s *session.Controller) error {
				vp := c.Sessions.Viewport(s)
				if width > 0 || height > 0 {
					screen := vp.Screen()
					if width <= 0 {
						width = screen.Width
					}
					if height <= 0 {
						height = screen.Height
					}
					if err := vp.SetScreen(width, height); err != nil {
						return err
					}
				}
				fitted = vp.FitView()
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, fitted)
		},
	}
	cmd.Flags().Float64Var(&width, "width", 0, "screen width, defaults to the configured screen")
	cmd.Flags().Float64Var(&height, "height", 0, "screen height, defaults to the configured screen")
	return cmd
}
