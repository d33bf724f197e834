package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"onelink/pkg/blob"
	"onelink/pkg/logging"
	"onelink/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploadService(store *fakeStore, blobs *blob.MemoryStore) *UploadService {
	clock := newTestClock()
	links := newTestLinkService(store, blobs, clock)
	return NewUploadService(links, blobs, logging.Discard(), WithClock(clock.Now))
}

func TestRequestUpload(t *testing.T) {
	owner := uuid.New()
	svc := newTestUploadService(newFakeStore(), blob.NewMemoryStore())

	ticket, err := svc.RequestUpload(context.Background(), owner, UploadRequest{
		FileName: "../../etc/My Report.pdf", FileSize: 1024, MimeType: "application/pdf",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ticket.Path, owner.String()+"/"))
	assert.True(t, strings.HasSuffix(ticket.Path, "-My_Report.pdf"), ticket.Path)
	assert.NotContains(t, ticket.Path, "..")
	assert.Contains(t, ticket.SignedURL, "expires=7200")
}

func TestRequestUploadValidation(t *testing.T) {
	svc := newTestUploadService(newFakeStore(), blob.NewMemoryStore())

	tests := []struct {
		name  string
		req   UploadRequest
		field string
	}{
		{"no name", UploadRequest{FileSize: 1}, "fileName"},
		{"empty file", UploadRequest{FileName: "a.txt"}, "fileSize"},
		{"too large", UploadRequest{FileName: "a.txt", FileSize: MaxFileSize + 1}, "fileSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RequestUpload(context.Background(), uuid.New(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	_, err := svc.RequestUpload(context.Background(), uuid.Nil, UploadRequest{FileName: "a", FileSize: 1})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCompleteUpload(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	store := newFakeStore()
	blobs := blob.NewMemoryStore()
	svc := newTestUploadService(store, blobs)

	ticket, err := svc.RequestUpload(ctx, owner, UploadRequest{FileName: "notes.txt", FileSize: 5, MimeType: "text/plain"})
	require.NoError(t, err)
	blobs.Put(ticket.Path, []byte("hello"), "text/plain")

	resp, err := svc.CompleteUpload(ctx, owner, CompleteUploadRequest{
		Path: ticket.Path, FileName: "notes.txt", FileSize: 5, MimeType: "text/plain",
		Visibility: storage.VisibilityPublic, ExpiresIn: Expiry24h,
	})
	require.NoError(t, err)

	link, ok := store.link(resp.ID)
	require.True(t, ok)
	assert.Equal(t, storage.LinkTypeFile, link.Type)
	assert.Equal(t, "notes.txt", *link.Title)
	assert.Equal(t, storage.VisibilityPublic, link.Visibility)
	assert.NotNil(t, link.ExpiresAt)

	file := store.contents[resp.ID].File
	require.NotNil(t, file)
	assert.Equal(t, ticket.Path, file.StorageKey)
	assert.Equal(t, int64(5), file.FileSize)
}

func TestCompleteUploadRejections(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("path of another user", func(t *testing.T) {
		store := newFakeStore()
		blobs := blob.NewMemoryStore()
		svc := newTestUploadService(store, blobs)
		path := uuid.New().String() + "/abc-x.txt"
		blobs.Put(path, []byte("x"), "text/plain")

		_, err := svc.CompleteUpload(ctx, owner, CompleteUploadRequest{Path: path, FileName: "x.txt", FileSize: 1, MimeType: "text/plain"})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, store.links)
	})

	t.Run("path traversal", func(t *testing.T) {
		svc := newTestUploadService(newFakeStore(), blob.NewMemoryStore())
		path := owner.String() + "/../" + uuid.New().String() + "/x.txt"

		_, err := svc.CompleteUpload(ctx, owner, CompleteUploadRequest{Path: path, FileName: "x.txt", FileSize: 1, MimeType: "text/plain"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("nothing uploaded", func(t *testing.T) {
		svc := newTestUploadService(newFakeStore(), blob.NewMemoryStore())

		_, err := svc.CompleteUpload(ctx, owner, CompleteUploadRequest{
			Path: owner.String() + "/abc-x.txt", FileName: "x.txt", FileSize: 1, MimeType: "text/plain",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "path")
	})

	t.Run("uploaded object too large", func(t *testing.T) {
		store := newFakeStore()
		blobs := blob.NewMemoryStore()
		svc := newTestUploadService(store, blobs)
		path := owner.String() + "/abc-big.bin"
		blobs.Put(path, bytes.Repeat([]byte{0}, int(MaxFileSize)+1), "application/octet-stream")

		_, err := svc.CompleteUpload(ctx, owner, CompleteUploadRequest{
			Path: path, FileName: "big.bin", FileSize: 10, MimeType: "application/octet-stream",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "fileSize")
		assert.Empty(t, store.links)
	})

	t.Run("missing mime type", func(t *testing.T) {
		svc := newTestUploadService(newFakeStore(), blob.NewMemoryStore())

		_, err := svc.CompleteUpload(ctx, owner, CompleteUploadRequest{Path: owner.String() + "/a", FileName: "a", FileSize: 1})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "mimeType")
	})
}
