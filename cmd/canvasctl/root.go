package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"canvas-backend/internal/config"
	"canvas-backend/internal/di"
	"canvas-backend/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what the commands of one invocation share.
type app struct {
	configPath string
	driver     string
	dsn        string
	userID     string

	container *di.Container
	cleanup   func()
}

// run executes one canvasctl invocation.
func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "canvasctl",
		Short:         "Manage canvas projects, graphs, snapshots and templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.driver, "driver", "", "persistence driver (memory, sqlite, postgres, supabase)")
	flags.StringVar(&a.dsn, "dsn", "", "database connection string")
	flags.StringVar(&a.userID, "user", "", "act as this user identifier")

	root.AddCommand(
		projectCmd(a),
		nodeCmd(a),
		connectCmd(a),
		snapshotCmd(a),
		templateCmd(a),
		viewCmd(a),
	)
	return root
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(a.configPath).Load()
	if err != nil {
		return nil, err
	}
	if a.driver != "" {
		cfg.Persistence.Driver = config.Driver(a.driver)
	}
	if a.dsn != "" {
		cfg.Persistence.DSN = a.dsn
	}
	if a.userID != "" {
		cfg.Identity.UserID = a.userID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open builds the container on first use.
func (a *app) open(ctx context.Context) (*di.Container, error) {
	if a.container != nil {
		return a.container, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	c, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.container, a.cleanup = c, cleanup
	return c, nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup, a.container = nil, nil
	}
}

// withSession loads projectID, runs fn and saves before closing the session.
func (a *app) withSession(ctx context.Context, projectID string, fn func(*di.Container, *session.Controller) error) error {
	c, err := a.open(ctx)
	if err != nil {
		return err
	}
	s, err := c.Sessions.Open(ctx, projectID)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(c, s); err != nil {
		return err
	}
	if err := s.Save(ctx); err != nil {
		c.Logger.Warn("Save failed", zap.String("project_id", projectID), zap.Error(err))
		return fmt.Errorf("save project %s: %w", projectID, err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
