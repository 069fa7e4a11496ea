package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/logging"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Expired int // registry entries past ExpiresAt
	Strays  int // files older than the TTL with no live entry
	Busy    int // skipped because a request still holds the path
}

// Sweep deletes expired uploads and stray files. Paths currently held by a
// request are skipped and picked up by a later sweep.
func (s *Stager) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	expired, err := s.registry.Expired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list expired uploads: %w", err)
	}
	seen := make(map[string]struct{}, len(expired))
	for _, up := range expired {
		seen[up.Path] = struct{}{}
		unlock, ok := s.locks.TryLock(up.Path)
		if !ok {
			res.Busy++
			continue
		}
		s.remove(ctx, up.Path)
		unlock()
		if s.onExpire != nil {
			s.onExpire(ctx, up)
		}
		res.Expired++
	}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := now.Add(-s.ttl)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if _, done := seen[path]; done {
			continue
		}
		if !strings.HasPrefix(e.Name(), tempPrefix) {
			up, err := s.registry.Get(ctx, path)
			if err == nil && !up.Expired(now) {
				continue
			}
			if err != nil && !errors.Is(err, domain.ErrUploadNotFound) {
				return res, fmt.Errorf("look up %s: %w", path, err)
			}
		}
		unlock, ok := s.locks.TryLock(path)
		if !ok {
			res.Busy++
			continue
		}
		s.remove(ctx, path)
		unlock()
		res.Strays++
	}
	return res, nil
}

// Scheduler runs Sweep on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	stager *Stager
	logger *zap.Logger
}

// NewScheduler validates spec (standard five-field cron or a descriptor such
// as "@every 10m") and registers the sweep job.
func NewScheduler(stager *Stager, spec string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(),
		stager: stager,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule staging sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := logging.WithContext(context.Background(), s.logger)
	res, err := s.stager.Sweep(ctx)
	if err != nil {
		s.logger.Error("staging sweep failed", zap.Error(err))
		return
	}
	if res.Expired+res.Strays+res.Busy > 0 {
		s.logger.Info("staging sweep",
			zap.Int("expired", res.Expired),
			zap.Int("strays", res.Strays),
			zap.Int("busy", res.Busy),
		)
	}
}

// Start begins running sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("staging sweep scheduler started", zap.String("dir", s.stager.Dir()))
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
