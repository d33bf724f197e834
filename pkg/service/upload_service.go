package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"onelink/pkg/blob"
	"onelink/pkg/logging"
	"onelink/pkg/storage"

	"github.com/google/uuid"
)

const uploadURLExpiry = 2 * time.Hour

type UploadRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type UploadTicket struct {
	SignedURL string `json:"signedUrl"`
	Path      string `json:"path"`
}

type CompleteUploadRequest struct {
	Path       string             `json:"path"`
	FileName   string             `json:"fileName"`
	FileSize   int64              `json:"fileSize"`
	MimeType   string             `json:"mimeType"`
	Title      *string            `json:"title,omitempty"`
	Visibility storage.Visibility `json:"visibility,omitempty"`
	ExpiresIn  ExpiryToken        `json:"expiresIn,omitempty"`
}

// UploadService runs the two-phase upload: a signed URL is issued, the client
// uploads directly to the blob store, then the link is committed.
type UploadService struct {
	links  *LinkService
	blobs  blob.Store
	logger *logging.Logger
	opts   options
}

func NewUploadService(links *LinkService, blobs blob.Store, logger *logging.Logger, opts ...Option) *UploadService {
	return &UploadService{links: links, blobs: blobs, logger: logger, opts: buildOptions(opts)}
}

func checkFile(v *ValidationError, name string, size int64) {
	if strings.TrimSpace(name) == "" {
		v.add("fileName", "is required")
	}
	switch {
	case size <= 0:
		v.add("fileSize", "must be positive")
	case size > MaxFileSize:
		v.add("fileSize", "must be at most 20MB")
	}
}

func (s *UploadService) RequestUpload(ctx context.Context, owner uuid.UUID, req UploadRequest) (*UploadTicket, error) {
	if owner == uuid.Nil {
		return nil, ErrUnauthorized
	}

	v := &ValidationError{}
	checkFile(v, req.FileName, req.FileSize)
	if err := v.errOrNil(); err != nil {
		return nil, err
	}

	prefix, err := randomString(12)
	if err != nil {
		return nil, err
	}
	key := owner.String() + "/" + prefix + "-" + sanitizeFileName(req.FileName)

	signed, err := s.blobs.SignedUploadURL(ctx, key, uploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign upload: %w", err)
	}
	return &UploadTicket{SignedURL: signed, Path: key}, nil
}

// CompleteUpload commits an uploaded object as a file link. Everything the client
// claims is checked again, since the upload happened out of band.
func (s *UploadService) CompleteUpload(ctx context.Context, owner uuid.UUID, req CompleteUploadRequest) (*CreateLinkResponse, error) {
	if owner == uuid.Nil {
		return nil, ErrUnauthorized
	}

	v := &ValidationError{}
	if req.Path == "" {
		v.add("path", "is required")
	}
	if strings.TrimSpace(req.MimeType) == "" {
		v.add("mimeType", "is required")
	}
	checkFile(v, req.FileName, req.FileSize)

	link := &storage.OneLink{
		Type:       storage.LinkTypeFile,
		OwnerID:    owner,
		Visibility: storage.VisibilityUnlisted,
	}
	title := req.Title
	if title == nil || *title == "" {
		name := truncateRunes(req.FileName, maxTitleLen)
		title = &name
	}
	link.Title = checkTitle(v, title)
	if req.Visibility != "" {
		if !req.Visibility.Valid() {
			v.add("visibility", "must be PUBLIC or UNLISTED")
		}
		link.Visibility = req.Visibility
	}
	expiresIn := req.ExpiresIn
	if expiresIn == "" {
		expiresIn = ExpiryNever
	}
	if !expiresIn.validForCreate() {
		v.add("expiresIn", "must be one of never, 1h, 24h, 7d")
	}
	link.ExpiresAt = expiresIn.ExpiresAt(s.opts.now())

	if err := v.errOrNil(); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(req.Path, owner.String()+"/") || strings.Contains(req.Path, "..") {
		return nil, ErrForbidden
	}

	info, err := s.blobs.Stat(ctx, req.Path)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fieldError("path", "no uploaded file at this path")
	}
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if info.Size > MaxFileSize {
		return nil, fieldError("fileSize", "must be at most 20MB")
	}

	content := storage.Content{File: &storage.FileContent{
		FileName:   req.FileName,
		FileSize:   info.Size,
		MimeType:   req.MimeType,
		StorageKey: req.Path,
	}}
	if err := s.links.insert(ctx, link, content); err != nil {
		return nil, err
	}
	return &CreateLinkResponse{ID: link.ID, Slug: link.Slug}, nil
}
