package main

import (
	"canvas-backend/internal/projects"

	"github.com/spf13/cobra"
)

func projectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create, list and delete projects",
	}
	cmd.AddCommand(projectCreateCmd(a), projectListCmd(a), projectDeleteCmd(a))
	return cmd
}

func projectCreateCmd(a *app) *cobra.Command {
	var in projects.CreateProjectInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project owned by the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			p, err := c.Projects.CreateProject(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "project title")
	cmd.Flags().StringVar(&in.Description, "description", "", "project description")
	cmd.Flags().BoolVar(&in.IsPublic, "public", false, "make the project readable by anyone")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag, repeatable")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects owned by or shared with the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			list, err := c.Projects.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
}

func projectDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROJECT",
		Short: "Delete a project and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Projects.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"deleted": args[0]})
		},
	}
}
