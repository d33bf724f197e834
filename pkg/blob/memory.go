package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// MemoryStore keeps objects in process. Signed URLs point at a fake host.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string]memoryObject
	deleteErr error
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores an object directly, as a client upload would.
func (m *MemoryStore) Put(key string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
}

func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// FailDeletes makes every delete fail with err. Pass nil to recover.
func (m *MemoryStore) FailDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

func (m *MemoryStore) SignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://blob.invalid/upload/%s?expires=%d", url.PathEscape(key), int(expiry.Seconds())), nil
}

func (m *MemoryStore) SignedDownloadURL(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://blob.invalid/download/%s?expires=%d&name=%s",
		url.PathEscape(key), int(expiry.Seconds()), url.QueryEscape(fileName)), nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := m.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	m.mu.Lock()
	data := m.objects[key].data
	m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) DeleteBatch(ctx context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		errs := make([]error, 0, len(keys))
		for _, k := range keys {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, m.deleteErr))
		}
		return 0, errors.Join(errs...)
	}
	for _, k := range keys {
		delete(m.objects, k)
	}
	return len(keys), nil
}
