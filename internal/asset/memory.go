package asset

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps assets in process memory. It backs ASSET_DRIVER=memory
// and the tests; content is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	blobs   map[string]Blob

	// PutErr and DeleteErr, when set, make the next calls fail.
	PutErr    error
	DeleteErr error
}

// NewMemoryStore returns an empty store whose references start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, blobs: make(map[string]Blob)}
}

func (s *MemoryStore) Put(ctx context.Context, blob Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	ct, ext, err := sniffImage(blob.Data)
	if err != nil {
		return "", err
	}
	blob.ContentType = ct
	key := uuid.NewString() + ext
	s.blobs[key] = blob
	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	key := keyFromRef(ref)
	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Has reports whether ref is stored.
func (s *MemoryStore) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[keyFromRef(ref)]
	return ok
}

// Len returns the number of stored assets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
