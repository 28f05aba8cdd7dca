package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"image.gen/internal/models"
)

func newSession(id string, ttl time.Duration) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}

	s := newSession("abc", time.Hour)
	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "abc" || got.Authenticated {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := st.SetAuthenticated(ctx, "abc", true); err != nil {
		t.Fatalf("SetAuthenticated(true): %v", err)
	}
	got, _ = st.Get(ctx, "abc")
	if !got.Authenticated {
		t.Fatal("session should be authenticated")
	}

	if err := st.SetAuthenticated(ctx, "abc", false); err != nil {
		t.Fatalf("SetAuthenticated(false): %v", err)
	}
	got, _ = st.Get(ctx, "abc")
	if got.Authenticated {
		t.Fatal("session flag should be reset")
	}

	if err := st.SetAuthenticated(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetAuthenticated missing: expected ErrNotFound, got %v", err)
	}

	if err := st.Save(ctx, newSession("old", -time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("Save expired: expected ErrExpired, got %v", err)
	}

	if err := st.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
}
