// Package store provides durable keyed storage for session and
// template records.
package store

import (
	"context"
	"errors"

	"github.com/georgepadayatti/signflow/session"
)

// Common errors
var (
	ErrNotFound         = errors.New("session not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrBadKey           = errors.New("invalid storage key")
	ErrConflict         = errors.New("session was modified concurrently")
)

// SessionStore is durable keyed storage for session records. Save must
// be atomic: it either fully succeeds or leaves the prior content
// intact.
type SessionStore interface {
	Load(ctx context.Context, id string) (*session.Session, error)
	Save(ctx context.Context, id string, s *session.Session) error
	Create(ctx context.Context, id string, s *session.Session) error
}

// TemplateStore is keyed storage for reusable layouts. Templates are
// immutable once saved.
type TemplateStore interface {
	LoadTemplate(ctx context.Context, name string) (*session.Template, error)
	SaveTemplate(ctx context.Context, name string, t *session.Template) error
	ListTemplates(ctx context.Context) ([]string, error)
}
