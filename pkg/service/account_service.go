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

type AccountService struct {
	users  storage.UserStorage
	links  storage.LinkStorage
	blobs  blob.Store
	logger *logging.Logger
	opts   options
}

func NewAccountService(users storage.UserStorage, links storage.LinkStorage, blobs blob.Store, logger *logging.Logger, opts ...Option) *AccountService {
	return &AccountService{users: users, links: links, blobs: blobs, logger: logger, opts: buildOptions(opts)}
}

// Profile is the public page of a user.
type Profile struct {
	User  storage.Author    `json:"user"`
	Title *string           `json:"title"`
	Links []storage.BioLink `json:"links"`
}

// UpdateUsername sets the caller's username and returns the normalized value.
func (s *AccountService) UpdateUsername(ctx context.Context, userID uuid.UUID, name string) (string, error) {
	if userID == uuid.Nil {
		return "", ErrUnauthorized
	}

	name = NormalizeUsername(name)
	if err := ValidateUsername(name); err != nil {
		return "", err
	}

	existing, err := s.users.GetUserByUsername(ctx, name)
	if err != nil {
		return "", fmt.Errorf("lookup username: %w", err)
	}
	if existing != nil && existing.ID != userID {
		return "", fmt.Errorf("username %q: %w", name, ErrConflict)
	}

	if err := s.users.SetUsername(ctx, userID, name); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			return "", fmt.Errorf("username %q: %w", name, ErrConflict)
		}
		return "", fmt.Errorf("set username: %w", err)
	}

	s.logger.LogAuthEvent(ctx, "username_updated", userID.String(), true)
	return name, nil
}

// UsernameAvailable reports whether the caller could take name. Invalid names are
// reported as unavailable rather than as an error.
func (s *AccountService) UsernameAvailable(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	if userID == uuid.Nil {
		return false, ErrUnauthorized
	}

	name = NormalizeUsername(name)
	if ValidateUsername(name) != nil {
		return false, nil
	}

	existing, err := s.users.GetUserByUsername(ctx, name)
	if err != nil {
		return false, fmt.Errorf("lookup username: %w", err)
	}
	return existing == nil || existing.ID == userID, nil
}

// DeleteAccount removes the caller's uploaded files and then the user. Links and
// their content go with the user.
func (s *AccountService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrUnauthorized
	}

	keys, err := s.links.ListFileKeysByOwner(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "file keys not listed before account deletion", "error", err)
	} else if len(keys) > 0 {
		if n, err := s.blobs.DeleteBatch(ctx, keys); err != nil {
			s.logger.Warn(ctx, "some account blobs were not deleted", "requested", len(keys), "deleted", n, "error", err)
		}
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		s.logger.LogAuthEvent(ctx, "account_deleted", userID.String(), false)
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.LogAuthEvent(ctx, "account_deleted", userID.String(), true)
	return nil
}

// Profile returns the user's public page: their most recent active public links page.
func (s *AccountService) Profile(ctx context.Context, username string) (*Profile, error) {
	username = NormalizeUsername(username)
	if username == "" || IsReservedUsername(username) {
		return nil, ErrNotFound
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	page, links, err := s.links.LatestPublicLinksPage(ctx, user.ID, s.opts.now())
	if err != nil {
		return nil, fmt.Errorf("load profile links: %w", err)
	}

	profile := &Profile{
		User:  storage.Author{Name: user.Name, Image: user.Image, Username: user.Username},
		Links: []storage.BioLink{},
	}
	if page != nil {
		profile.Title = page.Title
		if links != nil {
			profile.Links = links
		}
	}
	return profile, nil
}
