package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	cerrors "canvas-backend/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t   *testing.T
	dsn string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, dsn: filepath.Join(t.TempDir(), "canvas.db")}
}

func (c *cli) exec(args ...string) error {
	var buf bytes.Buffer
	return run(context.Background(), c.args(args), &buf)
}

func (c *cli) args(args []string) []string {
	return append([]string{"--driver", "sqlite", "--dsn", c.dsn, "--user", "user-1"}, args...)
}

// json runs args and decodes the printed result into out.
func (c *cli) json(out any, args ...string) {
	c.t.Helper()
	var buf bytes.Buffer
	require.NoError(c.t, run(context.Background(), c.args(args), &buf), "canvasctl %v", args)
	require.NoError(c.t, json.Unmarshal(buf.Bytes(), out), buf.String())
}

type entity struct {
	ID       string
	SourceID string
	TargetID string
	Title    string
}

func TestProjectGraphWorkflow(t *testing.T) {
	c := newCLI(t)

	var p entity
	c.json(&p, "project", "create", "--title", "CLI board", "--tag", "demo")
	require.NotEmpty(t, p.ID)

	var list []entity
	c.json(&list, "project", "list")
	require.Len(t, list, 1)
	assert.Equal(t, "CLI board", list[0].Title)

	var a, b entity
	c.json(&a, "node", "add", p.ID, "--variant", "task", "--x", "0", "--y", "0", "--title", "Plan")
	c.json(&b, "node", "add", p.ID, "--variant", "goal")
	assert.Equal(t, "Plan", a.Title)

	var e entity
	c.json(&e, "connect", p.ID, a.ID, b.ID)
	assert.Equal(t, a.ID, e.SourceID)
	assert.Equal(t, b.ID, e.TargetID)

	var moved struct {
		Position struct{ X, Y float64 }
	}
	c.json(&moved, "node", "move", p.ID, a.ID, "--x", "120", "--y", "80")

	var g struct {
		Nodes []struct {
			ID       string
			Position struct{ X, Y float64 }
		}
		Edges []entity
	}
	c.json(&g, "node", "list", p.ID)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	for _, n := range g.Nodes {
		if n.ID == a.ID {
			assert.Equal(t, 120.0, n.Position.X)
			assert.Equal(t, 80.0, n.Position.Y)
		}
	}

	var fitted map[string]any
	c.json(&fitted, "view", "fit", p.ID, "--width", "800", "--height", "600")
	assert.Contains(t, fitted, "zoom")

	var snap map[string]string
	c.json(&snap, "snapshot", "capture", p.ID, "--comment", "first")
	var snaps []entity
	c.json(&snaps, "snapshot", "list", p.ID)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap["snapshot_id"], snaps[0].ID)

	var tpl entity
	c.json(&tpl, "template", "save", p.ID, "--title", "From CLI")
	var templates []entity
	c.json(&templates, "template", "list")
	require.Len(t, templates, 1)

	var res struct {
		ProjectID string
		NodeIDs   map[string]string
		EdgeIDs   map[string]string
	}
	c.json(&res, "template", "instantiate", tpl.ID, "--title", "Copy")
	assert.Len(t, res.NodeIDs, 2)
	assert.Len(t, res.EdgeIDs, 1)

	var deleted map[string]string
	c.json(&deleted, "project", "delete", res.ProjectID)
	assert.Equal(t, res.ProjectID, deleted["deleted"])
}

func TestCommandErrors(t *testing.T) {
	c := newCLI(t)
	var p entity
	c.json(&p, "project", "create", "--title", "Errors")
	var n entity
	c.json(&n, "node", "add", p.ID)

	err := c.exec("connect", p.ID, n.ID, n.ID)
	var self *cerrors.SelfConnectionError
	assert.ErrorAs(t, err, &self)

	err = c.exec("node", "add", p.ID, "--variant", "sticker")
	assert.ErrorIs(t, err, cerrors.ErrUnknownVariant)

	err = c.exec("node", "list", "no-such-project")
	var load *cerrors.ProjectLoadError
	assert.ErrorAs(t, err, &load)

	assert.Error(t, c.exec("project", "create"))
}
