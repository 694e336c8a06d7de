package main

import (
	"canvas-backend/internal/di"
	"canvas-backend/internal/session"
	"canvas-backend/internal/templates"

	"github.com/spf13/cobra"
)

func templateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "List, instantiate and save templates",
	}
	cmd.AddCommand(templateListCmd(a), templateInstantiateCmd(a), templateSaveCmd(a))
	return cmd
}

func templateListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			list, err := c.Templates.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
}

func templateInstantiateCmd(a *app) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "instantiate TEMPLATE",
		Short: "Create a project from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var desc *string
			if cmd.Flags().Changed("description") {
				desc = &description
			}
			res, err := c.Templates.Instantiate(cmd.Context(), args[0], "", title, desc)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title, defaults to the template title")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func templateSaveCmd(a *app) *cobra.Command {
	var meta templates.TemplateMeta
	cmd := &cobra.Command{
		Use:   "save PROJECT",
		Short: "Save the graph of a project as a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			err := a.withSession(cmd.Context(), args[0], func(c *di.Container, s *session.Controller) error {
				t, err := c.Templates.SaveAsTemplate(cmd.Context(), s.Graph(), meta)
				out = t
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&meta.Title, "title", "", "template title")
	cmd.Flags().StringVar(&meta.Description, "description", "", "template description")
	cmd.Flags().StringVar(&meta.Category, "category", "", "template category")
	cmd.Flags().BoolVar(&meta.IsPublic, "public", false, "share the template")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
