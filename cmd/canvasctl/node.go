package main

import (
	"canvas-backend/internal/di"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	"canvas-backend/internal/session"

	"github.com/spf13/cobra"
)

func nodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Add, move and list the nodes of a project",
	}
	cmd.AddCommand(nodeAddCmd(a), nodeMoveCmd(a), nodeListCmd(a))
	return cmd
}

func nodeAddCmd(a *app) *cobra.Command {
	var (
		variant string
		title   string
		x, y    float64
	)
	cmd := &cobra.Command{
		Use:   "add PROJECT",
		Short: "Add a node; without --x/--y it is placed at the next staggered slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := node.ParseVariant(variant)
			if err != nil {
				return err
			}
			opts := session.AddNodeOptions{Title: title}
			if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
				opts.Position = &shared.Position{X: x, Y: y}
			}
			var added *node.Node
			err = a.withSession(cmd.Context(), args[0], func(_ *di.Container, s *session.Controller) error {
				n, err := s.AddNode(cmd.Context(), v, opts)
				added = n
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, added)
		},
	}
	cmd.Flags().StringVar(&variant, "variant", string(node.VariantNote), "task, milestone, note, goal, group, image or document")
	cmd.Flags().StringVar(&title, "title", "", "node title, defaults to the variant title")
	cmd.Flags().Float64Var(&x, "x", 0, "canvas x coordinate")
	cmd.Flags().Float64Var(&y, "y", 0, "canvas y coordinate")
	return cmd
}

func nodeMoveCmd(a *app) *cobra.Command {
	var x, y float64
	cmd := &cobra.Command{
		Use:   "move PROJECT NODE",
		Short: "Move a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var moved *node.Node
			err := a.withSession(cmd.Context(), args[0], func(_ *di.Container, s *session.Controller) error {
				if err := s.MoveNode(args[1], shared.Position{X: x, Y: y}); err != nil {
					return err
				}
				moved, _ = s.Node(args[1])
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, moved)
		},
	}
	cmd.Flags().Float64Var(&x, "x", 0, "canvas x coordinate")
	cmd.Flags().Float64Var(&y, "y", 0, "canvas y coordinate")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

func nodeListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT",
		Short: "Print the graph of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			err := a.withSession(cmd.Context(), args[0], func(_ *di.Container, s *session.Controller) error {
				out = s.Graph()
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func connectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect PROJECT SOURCE TARGET",
		Short: "Connect two nodes of a project",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			err := a.withSession(cmd.Context(), args[0], func(_ *di.Container, s *session.Controller) error {
				e, err := s.ConnectNodes(cmd.Context(), args[1], args[2])
				out = e
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}
