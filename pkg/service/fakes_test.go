package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"onelink/pkg/storage"

	"github.com/google/uuid"
)

// fakeStore is an in-memory LinkStorage and UserStorage.
type fakeStore struct {
	mu       sync.Mutex
	links    map[uuid.UUID]storage.OneLink
	contents map[uuid.UUID]storage.Content
	users    map[uuid.UUID]storage.User

	// createErrs are returned by successive CreateLink calls before succeeding.
	createErrs   []error
	updateErr    error
	browseRows   []storage.BrowseRow
	lastFilter   storage.BrowseFilter
	increments   int
	incrementErr error
	security     []storage.TableSecurity
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:    make(map[uuid.UUID]storage.OneLink),
		contents: make(map[uuid.UUID]storage.Content),
		users:    make(map[uuid.UUID]storage.User),
	}
}

func (f *fakeStore) CreateLink(ctx context.Context, link *storage.OneLink, content storage.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return err
	}
	for _, l := range f.links {
		if l.Slug == link.Slug {
			return storage.ErrSlugTaken
		}
	}
	link.ID = uuid.New()
	link.CreatedAt = time.Now()
	link.UpdatedAt = link.CreatedAt
	f.links[link.ID] = *link
	f.contents[link.ID] = content
	return nil
}

func (f *fakeStore) GetBySlug(ctx context.Context, slug string) (*storage.OneLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Slug == slug {
			return &l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*storage.OneLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (f *fakeStore) GetContent(ctx context.Context, link *storage.OneLink) (storage.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents[link.ID], nil
}

func (f *fakeStore) UpdateLink(ctx context.Context, link *storage.OneLink, content storage.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.links[link.ID] = *link
	f.contents[link.ID] = content
	return nil
}

func (f *fakeStore) DeleteLink(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, id)
	delete(f.contents, id)
	return nil
}

func (f *fakeStore) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	l, ok := f.links[id]
	if !ok {
		return nil
	}
	l.ViewCount++
	f.links[id] = l
	f.increments++
	return nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]storage.OneLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.OneLink
	for _, l := range f.links {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListExpired(ctx context.Context, now time.Time, ownerID *uuid.UUID) ([]storage.ExpiredLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.ExpiredLink
	for id, l := range f.links {
		if !l.IsExpired(now) {
			continue
		}
		if ownerID != nil && l.OwnerID != *ownerID {
			continue
		}
		e := storage.ExpiredLink{ID: id}
		if c := f.contents[id]; c.File != nil {
			key := c.File.StorageKey
			e.StorageKey = &key
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) DeleteLinks(ctx context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := f.links[id]; ok {
			delete(f.links, id)
			delete(f.contents, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Browse(ctx context.Context, filter storage.BrowseFilter) ([]storage.BrowseRow, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return f.browseRows, int64(len(f.browseRows)), nil
}

func (f *fakeStore) LatestPublicLinksPage(ctx context.Context, ownerID uuid.UUID, now time.Time) (*storage.OneLink, []storage.BioLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *storage.OneLink
	for _, l := range f.links {
		if l.OwnerID != ownerID || l.Type != storage.LinkTypeLinks ||
			l.Visibility != storage.VisibilityPublic || l.IsExpired(now) {
			continue
		}
		if latest == nil || l.CreatedAt.After(latest.CreatedAt) {
			l := l
			latest = &l
		}
	}
	if latest == nil {
		return nil, nil, nil
	}
	return latest, f.contents[latest.ID].Links, nil
}

func (f *fakeStore) ListFileKeysByOwner(ctx context.Context, ownerID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for id, l := range f.links {
		if l.OwnerID == ownerID {
			if c := f.contents[id]; c.File != nil {
				keys = append(keys, c.File.StorageKey)
			}
		}
	}
	return keys, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username != nil && *u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetUsername(ctx context.Context, id uuid.UUID, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, u := range f.users {
		if uid != id && u.Username != nil && *u.Username == username {
			return storage.ErrUsernameTaken
		}
	}
	u := f.users[id]
	u.ID = id
	u.Username = &username
	f.users[id] = u
	return nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	for lid, l := range f.links {
		if l.OwnerID == id {
			delete(f.links, lid)
			delete(f.contents, lid)
		}
	}
	return nil
}

func (f *fakeStore) TableSecurity(ctx context.Context, tables []string) ([]storage.TableSecurity, error) {
	return f.security, nil
}

// put stores a link directly and returns its ID.
func (f *fakeStore) put(link storage.OneLink, content storage.Content) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	f.links[link.ID] = link
	f.contents[link.ID] = content
	return link.ID
}

func (f *fakeStore) link(id uuid.UUID) (storage.OneLink, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	return l, ok
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func ptr[T any](v T) *T { return &v }
