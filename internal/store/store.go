package store

import (
	"context"
	"errors"

	"image.gen/internal/models"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session has expired")
)

type Store interface {
	Save(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	// SetAuthenticated records the outcome of a gate check on an existing session.
	SetAuthenticated(ctx context.Context, id string, ok bool) error
	Close() error
}
