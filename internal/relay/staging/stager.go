package staging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/logging"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

const (
	NamingUnique   = "unique"
	NamingOriginal = "original"

	tempPrefix = ".staging-"
)

// Options configures a Stager.
type Options struct {
	Dir      string
	Naming   string
	TTL      time.Duration
	Registry Registry
	Now      func() time.Time
	// OnExpire runs after the sweeper removes an expired upload, so copies
	// kept outside the staging directory can go with it.
	OnExpire func(ctx context.Context, up domain.Upload)
}

// Stager writes uploads into the staging directory. Every staged file is
// complete and fsynced on its final path before Stage returns, and the path
// stays locked until the caller releases it.
type Stager struct {
	dir      string
	naming   string
	ttl      time.Duration
	registry Registry
	locks    *pathLocks
	now      func() time.Time
	onExpire func(ctx context.Context, up domain.Upload)
}

func NewStager(opts Options) (*Stager, error) {
	if opts.Dir == "" {
		return nil, errors.New("staging dir is required")
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	if opts.Naming == "" {
		opts.Naming = NamingUnique
	}
	if opts.Naming != NamingUnique && opts.Naming != NamingOriginal {
		return nil, fmt.Errorf("unknown naming policy %q", opts.Naming)
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Registry == nil {
		opts.Registry = NewMemoryRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Stager{
		dir:      dir,
		naming:   opts.Naming,
		ttl:      opts.TTL,
		registry: opts.Registry,
		locks:    newPathLocks(),
		now:      opts.Now,
		onExpire: opts.OnExpire,
	}, nil
}

// Dir returns the absolute staging directory.
func (s *Stager) Dir() string { return s.dir }

// TTL returns the retention applied to staged files.
func (s *Stager) TTL() time.Duration { return s.ttl }

// Staged is an upload held by one request. Release must be called once the
// backend call has finished.
type Staged struct {
	domain.Upload

	stager *Stager
	unlock func()
	once   sync.Once
}

// Stage copies src to the staging directory under a name derived from
// filename. retain keeps the file after Release until its TTL runs out.
func (s *Stager) Stage(ctx context.Context, filename string, src io.Reader, retain bool) (*Staged, error) {
	logger := logging.FromContext(ctx)

	id := uuid.NewString()
	stored := s.storedName(id, filename)
	path := filepath.Join(s.dir, stored)

	unlock, err := s.locks.Lock(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", stored, err)
	}

	size, sum, err := s.write(path, src)
	if err != nil {
		unlock()
		logger.Error("stage upload", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrStaging, err)
	}

	now := s.now()
	st := &Staged{
		Upload: domain.Upload{
			ID:           id,
			OriginalName: filename,
			StoredName:   stored,
			Path:         path,
			Size:         size,
			SHA256:       sum,
			Retained:     retain,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.ttl),
		},
		stager: s,
		unlock: unlock,
	}

	// The sweeper still catches the file by age if this fails.
	if err := s.registry.Put(ctx, &st.Upload); err != nil {
		logger.Warn("register upload", zap.String("path", path), zap.Error(err))
	}

	logger.Debug("upload staged",
		zap.String("upload_id", id),
		zap.String("path", path),
		zap.Int64("size", size),
		zap.Bool("retained", retain),
	)
	return st, nil
}

func (s *Stager) write(path string, src io.Reader) (int64, string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		tmp.Close()
		return 0, "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, "", fmt.Errorf("sync upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, "", fmt.Errorf("chmod upload: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, "", fmt.Errorf("move upload into place: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// PathFor returns where an upload with this id and client filename is
// stored under the current naming policy.
func (s *Stager) PathFor(id, filename string) string {
	return filepath.Join(s.dir, s.storedName(id, filename))
}

func (s *Stager) storedName(id, filename string) string {
	name := SanitizeFilename(filename)
	if s.naming == NamingUnique {
		return id + "-" + name
	}
	return name
}

// Touch pushes a retained upload's expiry to now+TTL. It reports false when
// path is not a live retained upload or a request currently holds it.
func (s *Stager) Touch(ctx context.Context, path string) (bool, error) {
	unlock, ok := s.locks.TryLock(path)
	if !ok {
		return false, nil
	}
	defer unlock()

	up, err := s.registry.Get(ctx, path)
	if errors.Is(err, domain.ErrUploadNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup upload: %w", err)
	}
	if !up.Retained {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}

	now := s.now()
	up.ExpiresAt = now.Add(s.ttl)
	if err := s.registry.Put(ctx, up); err != nil {
		return false, fmt.Errorf("refresh upload: %w", err)
	}
	// Keeps the stray pass from treating the file as old if the entry is lost.
	_ = os.Chtimes(path, now, now)
	return true, nil
}

// Release ends the request's hold on the upload. Non-retained uploads are
// deleted together with their registry entry. Safe to call more than once.
func (st *Staged) Release(ctx context.Context) {
	st.once.Do(func() {
		defer st.unlock()
		if st.Retained {
			return
		}
		st.stager.remove(ctx, st.Path)
	})
}

func (s *Stager) remove(ctx context.Context, path string) {
	logger := logging.FromContext(ctx)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove staged file", zap.String("path", path), zap.Error(err))
	}
	if err := s.registry.Delete(ctx, path); err != nil {
		logger.Warn("unregister upload", zap.String("path", path), zap.Error(err))
	}
}
