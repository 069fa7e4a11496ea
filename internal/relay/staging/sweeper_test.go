package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newClockedStager(t *testing.T, reg Registry) (*Stager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Now()}
	s, err := NewStager(Options{
		Dir:      t.TempDir(),
		Naming:   NamingUnique,
		TTL:      time.Hour,
		Registry: reg,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return s, clock
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestSweep_RemovesExpiredRetainedUploads(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			s, clock := newClockedStager(t, reg)
			ctx := context.Background()

			st, err := s.Stage(ctx, "helper.csv", strings.NewReader("kept"), true)
			require.NoError(t, err)
			st.Release(ctx)

			res, err := s.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, SweepResult{}, res)
			assert.FileExists(t, st.Path)

			clock.t = clock.t.Add(2 * time.Hour)
			res, err = s.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Expired)
			assert.NoFileExists(t, st.Path)

			_, err = reg.Get(ctx, st.Path)
			assert.ErrorIs(t, err, domain.ErrUploadNotFound)
		})
	}
}

func TestSweep_RunsExpireHook(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	var expired []domain.Upload
	s, err := NewStager(Options{
		Dir: t.TempDir(),
		TTL: time.Hour,
		Now: clock.Now,
		OnExpire: func(_ context.Context, up domain.Upload) {
			expired = append(expired, up)
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	st, err := s.Stage(ctx, "helper.csv", strings.NewReader("kept"), true)
	require.NoError(t, err)
	st.Release(ctx)

	clock.t = clock.t.Add(2 * time.Hour)
	_, err = s.Sweep(ctx)
	require.NoError(t, err)

	require.Len(t, expired, 1)
	assert.Equal(t, st.ID, expired[0].ID)
	assert.Equal(t, "helper.csv", expired[0].OriginalName)
}

func TestSweep_TouchedUploadSurvivesOriginalExpiry(t *testing.T) {
	s, clock := newClockedStager(t, NewMemoryRegistry())
	ctx := context.Background()

	st, err := s.Stage(ctx, "session.csv", strings.NewReader("rows"), true)
	require.NoError(t, err)
	st.Release(ctx)

	clock.t = clock.t.Add(50 * time.Minute)
	ok, err := s.Touch(ctx, st.Path)
	require.NoError(t, err)
	require.True(t, ok)

	clock.t = clock.t.Add(50 * time.Minute)
	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.FileExists(t, st.Path)

	clock.t = clock.t.Add(time.Hour)
	res, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.NoFileExists(t, st.Path)
}

func TestSweep_SkipsPathsHeldByRequests(t *testing.T) {
	s, clock := newClockedStager(t, NewMemoryRegistry())
	ctx := context.Background()

	st, err := s.Stage(ctx, "inflight.csv", strings.NewReader("busy"), false)
	require.NoError(t, err)

	clock.t = clock.t.Add(2 * time.Hour)
	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Busy)
	assert.FileExists(t, st.Path)

	st.Release(ctx)
	assert.NoFileExists(t, st.Path)
}

func TestSweep_RemovesStrayFiles(t *testing.T) {
	s, _ := newClockedStager(t, NewMemoryRegistry())
	ctx := context.Background()

	stray := filepath.Join(s.Dir(), "left-over.csv")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	age(t, stray, 2*time.Hour)

	tmp := filepath.Join(s.Dir(), tempPrefix+"123")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))
	age(t, tmp, 2*time.Hour)

	fresh := filepath.Join(s.Dir(), "fresh.csv")
	require.NoError(t, os.WriteFile(fresh, []byte("y"), 0o644))

	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "nested"), 0o755))

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Strays)
	assert.NoFileExists(t, stray)
	assert.NoFileExists(t, tmp)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(s.Dir(), "nested"))
}

func TestSweep_KeepsOldFilesWithLiveEntries(t *testing.T) {
	reg := NewMemoryRegistry()
	s, clock := newClockedStager(t, reg)
	ctx := context.Background()

	st, err := s.Stage(ctx, "renewed.csv", strings.NewReader("x"), true)
	require.NoError(t, err)
	st.Release(ctx)
	age(t, st.Path, 3*time.Hour)

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Strays)
	assert.FileExists(t, st.Path)

	clock.t = clock.t.Add(2 * time.Hour)
	res, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.NoFileExists(t, st.Path)
}

func TestSweep_MissingDirectory(t *testing.T) {
	s, err := NewStager(Options{Dir: filepath.Join(t.TempDir(), "never-created")})
	require.NoError(t, err)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

func TestScheduler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := NewStager(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = NewScheduler(s, "not a schedule", zap.NewNop())
	require.Error(t, err)

	sched, err := NewScheduler(s, "@every 1h", nil)
	require.NoError(t, err)
	sched.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sched.Stop(ctx)
}

func TestScheduler_RunSweeps(t *testing.T) {
	s, _ := newClockedStager(t, NewMemoryRegistry())
	stray := filepath.Join(s.Dir(), "old.csv")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	age(t, stray, 2*time.Hour)

	sched, err := NewScheduler(s, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	sched.run()

	assert.NoFileExists(t, stray)
}
