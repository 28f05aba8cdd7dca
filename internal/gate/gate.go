// Package gate implements the password check that guards the form. The
// result is kept as a flag on the visitor's session; the entered password is
// compared and dropped.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"image.gen/internal/models"
	"image.gen/internal/store"
)

type Gate struct {
	store    store.Store
	password string
	ttl      time.Duration
	now      func() time.Time
}

func New(st store.Store, password string, ttl time.Duration) *Gate {
	return &Gate{
		store:    st,
		password: password,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lookup returns the stored session for id. It returns nil without an error
// when id is empty, unknown or expired, and never writes to the store.
func (g *Gate) Lookup(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, nil
	}
	s, err := g.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrExpired) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return s, nil
}

// Session returns the stored session for id, or a fresh unauthenticated one
// when id is empty, unknown or expired.
func (g *Gate) Session(ctx context.Context, id string) (*models.Session, error) {
	s, err := g.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}

	now := g.now()
	s = &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return s, nil
}

// Attempt compares entered against the configured password in constant time
// and records the result on the session. A wrong password clears a flag set
// earlier.
func (g *Gate) Attempt(ctx context.Context, sessionID, entered string) (bool, error) {
	ok := Match(entered, g.password)
	if err := g.store.SetAuthenticated(ctx, sessionID, ok); err != nil {
		return false, fmt.Errorf("recording gate result: %w", err)
	}
	return ok, nil
}

// Authorized reports whether the session has passed the gate.
func (g *Gate) Authorized(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	s, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	return s.Authenticated
}

// End removes the session.
func (g *Gate) End(ctx context.Context, sessionID string) error {
	return g.store.Delete(ctx, sessionID)
}

// Match is a constant-time string comparison. An empty secret never matches.
func Match(entered, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(entered), []byte(secret)) == 1
}
