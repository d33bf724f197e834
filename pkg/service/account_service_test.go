package service

import (
	"context"
	"testing"
	"time"

	"onelink/pkg/blob"
	"onelink/pkg/logging"
	"onelink/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccountService(store *fakeStore, blobs blob.Store, clock *testClock) *AccountService {
	return NewAccountService(store, store, blobs, logging.Discard(), WithClock(clock.Now))
}

func TestUpdateUsername(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestAccountService(store, blob.NewMemoryStore(), newTestClock())
	alice, bob := uuid.New(), uuid.New()

	name, err := svc.UpdateUsername(ctx, alice, "  Alice_01 ")
	require.NoError(t, err)
	assert.Equal(t, "alice_01", name)

	_, err = svc.UpdateUsername(ctx, bob, "ALICE_01")
	assert.ErrorIs(t, err, ErrConflict)

	name, err = svc.UpdateUsername(ctx, alice, "alice_01")
	require.NoError(t, err, "re-saving your own name is allowed")
	assert.Equal(t, "alice_01", name)

	for _, bad := range []string{"ab", "settings", "has space", "émile"} {
		_, err := svc.UpdateUsername(ctx, bob, bad)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, bad)
	}

	_, err = svc.UpdateUsername(ctx, uuid.Nil, "nobody")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUsernameAvailable(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestAccountService(store, blob.NewMemoryStore(), newTestClock())
	alice, bob := uuid.New(), uuid.New()
	_, err := svc.UpdateUsername(ctx, alice, "alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		caller uuid.UUID
		want   bool
	}{
		{"alice", alice, true},
		{"alice", bob, false},
		{"Alice", bob, false},
		{"brand-new", bob, true},
		{"x", bob, false},
		{"api", bob, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.UsernameAvailable(ctx, tt.caller, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	blobs := blob.NewMemoryStore()
	svc := newTestAccountService(store, blobs, newTestClock())

	me := uuid.New()
	store.users[me] = storage.User{ID: me}
	blobs.Put("me/a.bin", []byte("a"), "application/octet-stream")
	blobs.Put("other/b.bin", []byte("b"), "application/octet-stream")
	mine := store.put(storage.OneLink{Slug: "aaaaaaaa", Type: storage.LinkTypeFile, OwnerID: me},
		storage.Content{File: &storage.FileContent{StorageKey: "me/a.bin"}})
	theirs := store.put(storage.OneLink{Slug: "bbbbbbbb", Type: storage.LinkTypeFile, OwnerID: uuid.New()},
		storage.Content{File: &storage.FileContent{StorageKey: "other/b.bin"}})

	require.NoError(t, svc.DeleteAccount(ctx, me))

	assert.False(t, blobs.Has("me/a.bin"))
	assert.True(t, blobs.Has("other/b.bin"))
	_, ok := store.link(mine)
	assert.False(t, ok)
	_, ok = store.link(theirs)
	assert.True(t, ok)
	u, err := store.GetUserByID(ctx, me)
	require.NoError(t, err)
	assert.Nil(t, u)

	assert.ErrorIs(t, svc.DeleteAccount(ctx, uuid.Nil), ErrUnauthorized)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newFakeStore()
	svc := newTestAccountService(store, blob.NewMemoryStore(), clock)

	me := uuid.New()
	store.users[me] = storage.User{ID: me, Name: ptr("Me"), Username: ptr("me_me")}

	older := clock.Now().Add(-2 * time.Hour)
	newer := clock.Now().Add(-time.Hour)
	past := clock.Now().Add(-time.Minute)

	store.put(storage.OneLink{Slug: "old00000", Title: ptr("Old"), Type: storage.LinkTypeLinks, Visibility: storage.VisibilityPublic, OwnerID: me, CreatedAt: older},
		storage.Content{Links: []storage.BioLink{{Title: "old", URL: "https://old.example"}}})
	store.put(storage.OneLink{Slug: "new00000", Title: ptr("Current"), Type: storage.LinkTypeLinks, Visibility: storage.VisibilityPublic, OwnerID: me, CreatedAt: newer},
		storage.Content{Links: []storage.BioLink{{Title: "a", URL: "https://a.example", Order: 0}, {Title: "b", URL: "https://b.example", Order: 1}}})
	store.put(storage.OneLink{Slug: "hidden00", Type: storage.LinkTypeLinks, Visibility: storage.VisibilityUnlisted, OwnerID: me, CreatedAt: clock.Now()},
		storage.Content{Links: []storage.BioLink{{Title: "hidden", URL: "https://h.example"}}})
	store.put(storage.OneLink{Slug: "gone0000", Type: storage.LinkTypeLinks, Visibility: storage.VisibilityPublic, OwnerID: me, CreatedAt: clock.Now(), ExpiresAt: &past},
		storage.Content{Links: []storage.BioLink{{Title: "gone", URL: "https://g.example"}}})

	profile, err := svc.Profile(ctx, "ME_ME")
	require.NoError(t, err)
	assert.Equal(t, "Me", *profile.User.Name)
	assert.Equal(t, "Current", *profile.Title)
	require.Len(t, profile.Links, 2)
	assert.Equal(t, "a", profile.Links[0].Title)

	_, err = svc.Profile(ctx, "dashboard")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Profile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileWithoutLinksPage(t *testing.T) {
	store := newFakeStore()
	svc := newTestAccountService(store, blob.NewMemoryStore(), newTestClock())
	me := uuid.New()
	store.users[me] = storage.User{ID: me, Username: ptr("quiet")}

	profile, err := svc.Profile(context.Background(), "quiet")
	require.NoError(t, err)
	assert.Nil(t, profile.Title)
	assert.NotNil(t, profile.Links)
	assert.Empty(t, profile.Links)
}
