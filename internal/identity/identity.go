// Package identity resolves the user an editing session acts for. The
// canvas core never authenticates anyone itself; it asks a Provider.
package identity

import (
	"context"
	"fmt"
	"sync"

	cerrors "canvas-backend/internal/errors"

	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// Provider returns the identifier of the current user.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Static always returns the same user. An empty Static is unauthenticated.
type Static string

func (s Static) CurrentUserID(ctx context.Context) (string, error) {
	if s == "" {
		return "", cerrors.ErrUnauthenticated
	}
	return string(s), nil
}

// Supabase resolves the user owning an access token through Supabase Auth.
// The first successful lookup is cached for the lifetime of the provider.
type Supabase struct {
	lookup func() (string, error)
	logger *zap.Logger

	mu     sync.Mutex
	userID string
}

// NewSupabase returns a provider for the user holding token.
func NewSupabase(client *supa.Client, token string, logger *zap.Logger) *Supabase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supabase{
		logger: logger.Named("identity"),
		lookup: func() (string, error) {
			if token == "" {
				return "", cerrors.ErrUnauthenticated
			}
			user, err := client.Auth.WithToken(token).GetUser()
			if err != nil {
				return "", err
			}
			return user.ID.String(), nil
		},
	}
}

func (s *Supabase) CurrentUserID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" {
		return s.userID, nil
	}

	id, err := s.lookup()
	if err != nil {
		s.logger.Warn("Access token rejected", zap.Error(err))
		return "", fmt.Errorf("%w: %v", cerrors.ErrUnauthenticated, err)
	}
	s.userID = id
	return id, nil
}
