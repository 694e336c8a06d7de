// Package history captures and lists point-in-time snapshots of a project
// graph. Snapshots are append-only; there is no restore or diff.
package history

import (
	"context"

	"canvas-backend/internal/domain/graph"
	domain "canvas-backend/internal/domain/history"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Source is the graph being captured, usually an open session.
type Source interface {
	ProjectID() string
	Graph() graph.Snapshot
}

// Manager persists snapshots through the gateway.
type Manager struct {
	gw      persistence.SnapshotGateway
	ids     identity.Provider
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewManager creates a Manager. Nil logger and metrics are allowed.
func NewManager(gw persistence.SnapshotGateway, ids identity.Provider, logger *zap.Logger, metrics *observability.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{gw: gw, ids: ids, logger: logger.Named("history"), metrics: metrics}
}

// Capture persists the current graph of src verbatim and returns the new
// snapshot identifier. An empty comment is stored as no comment.
func (m *Manager) Capture(ctx context.Context, src Source, comment string) (string, error) {
	projectID := src.ProjectID()
	if projectID == "" {
		return "", cerrors.ErrSessionNotReady
	}
	userID, err := m.ids.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}
	g := src.Graph()

	draft := persistence.SnapshotDraft{ProjectID: projectID, Graph: g, CreatedBy: userID}
	if comment != "" {
		draft.Comment = &comment
	}
	s, err := m.gw.CreateSnapshot(ctx, draft)
	if err != nil {
		m.logger.Warn("Snapshot capture failed", zap.String("project_id", projectID), zap.Error(err))
		return "", err
	}

	m.metrics.Inc(func(c *observability.Collector) prometheus.Counter { return c.SnapshotsCaptured })
	m.logger.Info("Snapshot captured",
		zap.String("project_id", projectID),
		zap.String("snapshot_id", s.ID),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)))
	return s.ID, nil
}

// List returns the snapshots of a project, newest first.
func (m *Manager) List(ctx context.Context, projectID string) ([]*domain.Snapshot, error) {
	if projectID == "" {
		return nil, cerrors.ErrMissingID
	}
	snaps, err := m.gw.ListSnapshots(ctx, projectID)
	if err != nil {
		return nil, err
	}
	domain.SortNewestFirst(snaps)
	return snaps, nil
}

// Latest returns the newest snapshot of a project.
func (m *Manager) Latest(ctx context.Context, projectID string) (*domain.Snapshot, bool, error) {
	snaps, err := m.List(ctx, projectID)
	if err != nil || len(snaps) == 0 {
		return nil, false, err
	}
	return snaps[0], true, nil
}
