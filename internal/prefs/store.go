package prefs

import (
	"context"
	"sync"

	"campuspresence/internal/models"
)

// Store is the persistence surface behind the routing policy: two sharing
// booleans, the subject's role, and the "currently publishing" flag. Values
// are whole documents written last-write-wins; readers always see a complete
// value, never a partial write.
type Store interface {
	Preferences(ctx context.Context) (models.SharingPreference, error)
	SetPreferences(ctx context.Context, p models.SharingPreference) error
	Role(ctx context.Context) (models.Role, error)
	SetRole(ctx context.Context, role models.Role) error
	Publishing(ctx context.Context) (bool, error)
	SetPublishing(ctx context.Context, on bool) error
	Close() error
}

// Keys under which the documents are stored by the KV backends
const (
	keySharing    = "prefs.sharing"
	keyRole       = "prefs.role"
	keyPublishing = "prefs.publishing"
)

// memoryStore is the in-process backend, used in tests and as the default
// driver when no external store is configured
type memoryStore struct {
	mu         sync.RWMutex
	sharing    models.SharingPreference
	role       models.Role
	publishing bool
}

// NewMemoryStore creates an empty in-memory preference store. The role
// defaults to observer, which never publishes.
func NewMemoryStore() Store {
	return &memoryStore{role: models.RoleObserver}
}

func (s *memoryStore) Preferences(ctx context.Context) (models.SharingPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sharing, nil
}

func (s *memoryStore) SetPreferences(ctx context.Context, p models.SharingPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharing = p
	return nil
}

func (s *memoryStore) Role(ctx context.Context) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role, nil
}

func (s *memoryStore) SetRole(ctx context.Context, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
	return nil
}

func (s *memoryStore) Publishing(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publishing, nil
}

func (s *memoryStore) SetPublishing(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishing = on
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
