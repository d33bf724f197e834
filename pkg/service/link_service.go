package service

import (
	"context"
	"errors"
	"fmt"

	"onelink/pkg/blob"
	"onelink/pkg/logging"
	"onelink/pkg/storage"

	"github.com/google/uuid"
)

const maxSlugAttempts = 5

type LinkService struct {
	links  storage.LinkStorage
	blobs  blob.Store
	logger *logging.Logger
	opts   options
}

func NewLinkService(links storage.LinkStorage, blobs blob.Store, logger *logging.Logger, opts ...Option) *LinkService {
	return &LinkService{
		links:  links,
		blobs:  blobs,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// LinkView is a link together with its content, as returned to clients.
type LinkView struct {
	storage.OneLink
	storage.Content
}

type CreateLinkResponse struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
}

type SweepResult struct {
	Deleted      int64 `json:"deleted"`
	FilesDeleted int   `json:"filesDeleted"`
}

func (s *LinkService) Create(ctx context.Context, owner uuid.UUID, req LinkRequest) (*CreateLinkResponse, error) {
	if owner == uuid.Nil {
		return nil, ErrUnauthorized
	}

	link, content, err := validateCreate(req, s.opts.now())
	if err != nil {
		return nil, err
	}
	link.OwnerID = owner

	if err := s.insert(ctx, link, content); err != nil {
		return nil, err
	}
	return &CreateLinkResponse{ID: link.ID, Slug: link.Slug}, nil
}

// insert persists a validated link under a fresh slug, retrying on collisions.
func (s *LinkService) insert(ctx context.Context, link *storage.OneLink, content storage.Content) error {
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		slug, err := s.opts.newSlug()
		if err != nil {
			return err
		}
		link.Slug = slug

		err = s.links.CreateLink(ctx, link, content)
		if errors.Is(err, storage.ErrSlugTaken) {
			s.logger.Warn(ctx, "slug collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			s.logger.LogLinkOperation(ctx, "create", slug, false)
			return fmt.Errorf("create link: %w", err)
		}

		s.logger.LogLinkOperation(ctx, "create", slug, true)
		return nil
	}
	return fmt.Errorf("create link: no free slug after %d attempts", maxSlugAttempts)
}

// loadOwned returns the link with id if owner may modify it.
func (s *LinkService) loadOwned(ctx context.Context, owner, id uuid.UUID) (*storage.OneLink, error) {
	if owner == uuid.Nil {
		return nil, ErrUnauthorized
	}
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link == nil {
		return nil, ErrNotFound
	}
	if link.OwnerID != owner {
		return nil, ErrForbidden
	}
	return link, nil
}

func (s *LinkService) Get(ctx context.Context, owner, id uuid.UUID) (*LinkView, error) {
	link, err := s.loadOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	content, err := s.links.GetContent(ctx, link)
	if err != nil {
		return nil, err
	}
	return &LinkView{OneLink: *link, Content: content}, nil
}

func (s *LinkService) List(ctx context.Context, owner uuid.UUID) ([]storage.OneLink, error) {
	if owner == uuid.Nil {
		return nil, ErrUnauthorized
	}
	links, err := s.links.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

// Edit applies req to the caller's link. The type of a link is fixed at creation.
func (s *LinkService) Edit(ctx context.Context, owner, id uuid.UUID, req LinkRequest) (*LinkView, error) {
	link, err := s.loadOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	content, err := s.links.GetContent(ctx, link)
	if err != nil {
		return nil, err
	}

	if err := applyEdit(link, &content, req, s.opts.now()); err != nil {
		return nil, err
	}

	if err := s.links.UpdateLink(ctx, link, content); err != nil {
		s.logger.LogLinkOperation(ctx, "edit", link.Slug, false)
		return nil, fmt.Errorf("update link: %w", err)
	}
	s.logger.LogLinkOperation(ctx, "edit", link.Slug, true)
	return &LinkView{OneLink: *link, Content: content}, nil
}

// Delete removes the caller's link. The blob of a file link is removed first and a
// failure there does not stop the row from being deleted.
func (s *LinkService) Delete(ctx context.Context, owner, id uuid.UUID) error {
	link, err := s.loadOwned(ctx, owner, id)
	if err != nil {
		return err
	}

	if link.Type == storage.LinkTypeFile {
		content, err := s.links.GetContent(ctx, link)
		switch {
		case err != nil:
			s.logger.Warn(ctx, "file content not loaded before delete", "slug", link.Slug, "error", err)
		case content.File != nil:
			if err := s.blobs.Delete(ctx, content.File.StorageKey); err != nil {
				s.logger.Warn(ctx, "blob delete failed", "slug", link.Slug, "error", err)
			}
		}
	}

	if err := s.links.DeleteLink(ctx, link.ID); err != nil {
		s.logger.LogLinkOperation(ctx, "delete", link.Slug, false)
		return fmt.Errorf("delete link: %w", err)
	}
	s.logger.LogLinkOperation(ctx, "delete", link.Slug, true)
	return nil
}

// SweepExpired deletes every expired link and its blob.
func (s *LinkService) SweepExpired(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, nil)
}

// CleanupOwnExpired deletes the caller's expired links and their blobs.
func (s *LinkService) CleanupOwnExpired(ctx context.Context, owner uuid.UUID) (SweepResult, error) {
	if owner == uuid.Nil {
		return SweepResult{}, ErrUnauthorized
	}
	return s.sweep(ctx, &owner)
}

func (s *LinkService) sweep(ctx context.Context, owner *uuid.UUID) (SweepResult, error) {
	expired, err := s.links.ListExpired(ctx, s.opts.now(), owner)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expired links: %w", err)
	}
	if len(expired) == 0 {
		return SweepResult{}, nil
	}

	ids := make([]uuid.UUID, 0, len(expired))
	var keys []string
	for _, e := range expired {
		ids = append(ids, e.ID)
		if e.StorageKey != nil {
			keys = append(keys, *e.StorageKey)
		}
	}

	var result SweepResult
	if len(keys) > 0 {
		n, err := s.blobs.DeleteBatch(ctx, keys)
		if err != nil {
			s.logger.Warn(ctx, "some expired blobs were not deleted", "requested", len(keys), "deleted", n, "error", err)
		}
		result.FilesDeleted = n
	}

	deleted, err := s.links.DeleteLinks(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("delete expired links: %w", err)
	}
	result.Deleted = deleted

	s.logger.Info(ctx, "expired links swept", "deleted", result.Deleted, "files_deleted", result.FilesDeleted)
	return result, nil
}
