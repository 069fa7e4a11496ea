package staging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

// Registry tracks the lifetime of staged files, keyed by their absolute path.
// Staging the same path again replaces the previous entry.
type Registry interface {
	Put(ctx context.Context, up *domain.Upload) error
	Get(ctx context.Context, path string) (*domain.Upload, error)
	Delete(ctx context.Context, path string) error
	// Expired returns every entry whose ExpiresAt is at or before now.
	Expired(ctx context.Context, now time.Time) ([]domain.Upload, error)
}

// MemoryRegistry is the single-process Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	uploads map[string]domain.Upload
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{uploads: make(map[string]domain.Upload)}
}

func (r *MemoryRegistry) Put(_ context.Context, up *domain.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[up.Path] = *up
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, path string) (*domain.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	up, ok := r.uploads[path]
	if !ok {
		return nil, domain.ErrUploadNotFound
	}
	return &up, nil
}

func (r *MemoryRegistry) Delete(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.uploads, path)
	return nil
}

func (r *MemoryRegistry) Expired(_ context.Context, now time.Time) ([]domain.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Upload
	for _, up := range r.uploads {
		if up.Expired(now) {
			out = append(out, up)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
