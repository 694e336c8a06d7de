package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	cerrors "canvas-backend/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	supa "github.com/supabase-community/supabase-go"
)

func TestStatic(t *testing.T) {
	id, err := Static("user-1").CurrentUserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = Static("").CurrentUserID(context.Background())
	assert.ErrorIs(t, err, cerrors.ErrUnauthenticated)
}

const userID = "8d2f4c1e-6b0a-4d57-9a3e-2f1b7c9d0e11"

func authServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if !strings.HasSuffix(r.URL.Path, "/user") || r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id":%q,"aud":"authenticated","role":"authenticated","email":"ada@example.com"}`, userID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSupabaseResolvesAndCaches(t *testing.T) {
	var hits int32
	srv := authServer(t, &hits)
	client, err := supa.NewClient(srv.URL, "anon-key", nil)
	require.NoError(t, err)

	p := NewSupabase(client, "good-token", nil)
	for i := 0; i < 3; i++ {
		id, err := p.CurrentUserID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, userID, id)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSupabaseRejectsBadToken(t *testing.T) {
	var hits int32
	srv := authServer(t, &hits)
	client, err := supa.NewClient(srv.URL, "anon-key", nil)
	require.NoError(t, err)

	_, err = NewSupabase(client, "bad-token", nil).CurrentUserID(context.Background())
	assert.ErrorIs(t, err, cerrors.ErrUnauthenticated)

	_, err = NewSupabase(client, "", nil).CurrentUserID(context.Background())
	assert.ErrorIs(t, err, cerrors.ErrUnauthenticated)
}
