package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlugTaken     = errors.New("slug already exists")
	ErrUsernameTaken = errors.New("username already taken")
)

// LinkStorage persists OneLinks with their typed content. Lookups return nil, nil
// when nothing matches.
type LinkStorage interface {
	// CreateLink inserts the link and its content in one transaction.
	// A slug collision is reported as ErrSlugTaken.
	CreateLink(ctx context.Context, link *OneLink, content Content) error
	GetBySlug(ctx context.Context, slug string) (*OneLink, error)
	GetByID(ctx context.Context, id uuid.UUID) (*OneLink, error)
	GetContent(ctx context.Context, link *OneLink) (Content, error)
	// UpdateLink updates the link and its content in one transaction. Bio links are
	// replaced as a unit.
	UpdateLink(ctx context.Context, link *OneLink, content Content) error
	DeleteLink(ctx context.Context, id uuid.UUID) error
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]OneLink, error)
	// ListExpired returns links expired at now, restricted to one owner when ownerID is non-nil.
	ListExpired(ctx context.Context, now time.Time, ownerID *uuid.UUID) ([]ExpiredLink, error)
	DeleteLinks(ctx context.Context, ids []uuid.UUID) (int64, error)
	Browse(ctx context.Context, filter BrowseFilter) ([]BrowseRow, int64, error)
	LatestPublicLinksPage(ctx context.Context, ownerID uuid.UUID, now time.Time) (*OneLink, []BioLink, error)
	ListFileKeysByOwner(ctx context.Context, ownerID uuid.UUID) ([]string, error)
}

type UserStorage interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// SetUsername reports a unique violation as ErrUsernameTaken.
	SetUsername(ctx context.Context, id uuid.UUID, username string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type SecurityInspector interface {
	TableSecurity(ctx context.Context, tables []string) ([]TableSecurity, error)
}
