package supabase

import (
	"context"
	"net/http"
	"testing"

	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/persistencetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*Gateway, *fakeRest) {
	t.Helper()
	fake, srv := newFakeRest(t)
	gw, err := Dial(srv.URL, "service-role-key", nil)
	require.NoError(t, err)
	return gw, fake
}

func TestGatewayContract(t *testing.T) {
	persistencetest.RunGatewaySuite(t, func(t *testing.T) persistence.Gateway {
		gw, _ := newTestGateway(t)
		return gw
	}, persistencetest.SuiteOptions{})
}

func TestInstantiateTemplateCallsFunction(t *testing.T) {
	gw, fake := newTestGateway(t)
	var got string
	fake.rpc = func(name string, body []byte) (int, string) {
		got = name + " " + string(body)
		return http.StatusOK, `"project-42"`
	}

	id, err := gw.InstantiateTemplate(context.Background(), persistence.InstantiateRequest{
		TemplateID: "tpl-1", OwnerID: "owner-1", Title: "Launch",
	})
	require.NoError(t, err)
	assert.Equal(t, "project-42", id)
	assert.Contains(t, got, persistence.ProcInstantiate)
	assert.Contains(t, got, `"template_id":"tpl-1"`)
	assert.Contains(t, got, `"owner_id":"owner-1"`)
}

func TestInstantiateTemplateErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantIs    error
		retryable bool
	}{
		{name: "function missing", status: http.StatusNotFound, body: `{"code":"PGRST202","message":"not found"}`, wantIs: cerrors.ErrRPCUnavailable},
		{name: "undefined function", status: http.StatusNotFound, body: `{"code":"42883","message":"function does not exist"}`, wantIs: cerrors.ErrRPCUnavailable},
		{name: "garbage result", status: http.StatusOK, body: `{"unexpected":true}`, wantIs: cerrors.ErrMalformedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, fake := newTestGateway(t)
			fake.rpc = func(string, []byte) (int, string) { return tt.status, tt.body }

			_, err := gw.InstantiateTemplate(context.Background(), persistence.InstantiateRequest{TemplateID: "tpl-1", OwnerID: "o"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			var pe *cerrors.PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, persistence.OpInstantiateTemplate, pe.Operation)
		})
	}

	t.Run("database error is surfaced", func(t *testing.T) {
		gw, fake := newTestGateway(t)
		fake.rpc = func(string, []byte) (int, string) {
			return http.StatusBadRequest, `{"code":"P0001","message":"template not found"}`
		}
		_, err := gw.InstantiateTemplate(context.Background(), persistence.InstantiateRequest{TemplateID: "tpl-1", OwnerID: "o"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, cerrors.ErrRPCUnavailable)
		assert.Contains(t, err.Error(), "template not found")
	})
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.FetchNodes(ctx, "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.count("GET canvas_elements"))
}

func TestMalformedRowIsReported(t *testing.T) {
	gw, fake := newTestGateway(t)
	fake.tables[persistence.TableNodes] = []row{{
		"id": "n1", "project_id": "p1", "type": "sticker", "title": "?",
		"position": map[string]any{"x": 0, "y": 0},
	}}

	_, err := gw.FetchNodes(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrMalformedRecord)
}

func TestGrantAccessUpdatesExistingRow(t *testing.T) {
	gw, fake := newTestGateway(t)
	p := persistencetest.NewProject(t, gw, "Shared")

	first, err := gw.GrantAccess(context.Background(), persistence.GrantDraft{ProjectID: p.ID, UserID: "u2", Permission: "view"})
	require.NoError(t, err)
	second, err := gw.GrantAccess(context.Background(), persistence.GrantDraft{ProjectID: p.ID, UserID: "u2", Permission: "admin"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, fake.count("POST canvas_shares"))
	assert.Equal(t, 1, fake.count("PATCH canvas_shares"))
}
