package staging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

func newTestStager(t *testing.T, naming string) (*Stager, *MemoryRegistry) {
	t.Helper()
	reg := NewMemoryRegistry()
	s, err := NewStager(Options{
		Dir:      filepath.Join(t.TempDir(), "temp_uploads"),
		Naming:   naming,
		TTL:      time.Hour,
		Registry: reg,
	})
	require.NoError(t, err)
	return s, reg
}

func TestNewStager_Validation(t *testing.T) {
	_, err := NewStager(Options{})
	assert.Error(t, err)

	_, err = NewStager(Options{Dir: t.TempDir(), Naming: "random"})
	assert.Error(t, err)

	s, err := NewStager(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.TTL())
	assert.True(t, filepath.IsAbs(s.Dir()))
}

func TestStage_OriginalNaming(t *testing.T) {
	s, reg := newTestStager(t, NamingOriginal)
	ctx := context.Background()
	content := []byte("a,b\n1,2\n3,")

	st, err := s.Stage(ctx, "sales.csv", bytes.NewReader(content), false)
	require.NoError(t, err)
	defer st.Release(ctx)

	assert.Equal(t, filepath.Join(s.Dir(), "sales.csv"), st.Path)
	assert.Equal(t, "sales.csv", st.StoredName)
	assert.Equal(t, int64(len(content)), st.Size)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), st.SHA256)

	got, err := os.ReadFile(st.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	entry, err := reg.Get(ctx, st.Path)
	require.NoError(t, err)
	assert.Equal(t, st.ID, entry.ID)
	assert.Equal(t, st.CreatedAt.Add(time.Hour), entry.ExpiresAt)
}

func TestStage_UniqueNamingAvoidsCollisions(t *testing.T) {
	s, _ := newTestStager(t, NamingUnique)
	ctx := context.Background()

	first, err := s.Stage(ctx, "my data.csv", strings.NewReader("first"), true)
	require.NoError(t, err)
	second, err := s.Stage(ctx, "my data.csv", strings.NewReader("second"), true)
	require.NoError(t, err)
	first.Release(ctx)
	second.Release(ctx)

	assert.NotEqual(t, first.Path, second.Path)
	assert.True(t, strings.HasSuffix(first.StoredName, "-my_data.csv"))
	assert.Equal(t, "my data.csv", first.OriginalName)

	b1, _ := os.ReadFile(first.Path)
	b2, _ := os.ReadFile(second.Path)
	assert.Equal(t, "first", string(b1))
	assert.Equal(t, "second", string(b2))
}

func TestStage_CreatesDirectoryLazily(t *testing.T) {
	s, _ := newTestStager(t, NamingUnique)
	_, err := os.Stat(s.Dir())
	require.True(t, os.IsNotExist(err))

	st, err := s.Stage(context.Background(), "x.csv", strings.NewReader("x"), false)
	require.NoError(t, err)
	st.Release(context.Background())

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStage_SameNameOverwrites(t *testing.T) {
	s, _ := newTestStager(t, NamingOriginal)
	ctx := context.Background()

	first, err := s.Stage(ctx, "sales.csv", strings.NewReader("old"), true)
	require.NoError(t, err)
	first.Release(ctx)

	second, err := s.Stage(ctx, "sales.csv", strings.NewReader("new contents"), true)
	require.NoError(t, err)
	second.Release(ctx)

	assert.Equal(t, first.Path, second.Path)
	got, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(got))
}

func TestStage_SameNameWaitsForRelease(t *testing.T) {
	s, _ := newTestStager(t, NamingOriginal)
	ctx := context.Background()

	first, err := s.Stage(ctx, "sales.csv", strings.NewReader("first"), false)
	require.NoError(t, err)

	staged := make(chan *Staged)
	go func() {
		st, err := s.Stage(ctx, "sales.csv", strings.NewReader("second"), false)
		if err != nil {
			close(staged)
			return
		}
		staged <- st
	}()

	select {
	case <-staged:
		t.Fatal("second upload overwrote a path still held by another request")
	case <-time.After(50 * time.Millisecond):
	}

	got, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	first.Release(ctx)

	select {
	case second := <-staged:
		require.NotNil(t, second)
		got, err := os.ReadFile(second.Path)
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
		second.Release(ctx)
	case <-time.After(2 * time.Second):
		t.Fatal("second upload never staged")
	}
}

func TestRelease(t *testing.T) {
	s, reg := newTestStager(t, NamingUnique)
	ctx := context.Background()

	t.Run("removes ephemeral uploads", func(t *testing.T) {
		st, err := s.Stage(ctx, "a.csv", strings.NewReader("a"), false)
		require.NoError(t, err)

		st.Release(ctx)
		st.Release(ctx)

		_, err = os.Stat(st.Path)
		assert.True(t, os.IsNotExist(err))
		_, err = reg.Get(ctx, st.Path)
		assert.ErrorIs(t, err, domain.ErrUploadNotFound)
	})

	t.Run("keeps retained uploads", func(t *testing.T) {
		st, err := s.Stage(ctx, "b.csv", strings.NewReader("b"), true)
		require.NoError(t, err)
		st.Release(ctx)

		_, err = os.Stat(st.Path)
		assert.NoError(t, err)
		_, err = reg.Get(ctx, st.Path)
		assert.NoError(t, err)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestStage_WriteFailureLeavesNothingBehind(t *testing.T) {
	s, reg := newTestStager(t, NamingOriginal)
	ctx := context.Background()

	_, err := s.Stage(ctx, "broken.csv", failingReader{}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaging)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = reg.Get(ctx, filepath.Join(s.Dir(), "broken.csv"))
	assert.ErrorIs(t, err, domain.ErrUploadNotFound)

	// The path lock was released on failure.
	st, err := s.Stage(ctx, "broken.csv", strings.NewReader("ok"), false)
	require.NoError(t, err)
	st.Release(ctx)
}

func TestStage_UnwritableDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s, err := NewStager(Options{Dir: filepath.Join(blocker, "staging")})
	require.NoError(t, err)

	_, err = s.Stage(context.Background(), "a.csv", strings.NewReader("a"), false)
	assert.ErrorIs(t, err, domain.ErrStaging)
}

func TestStage_GivesUpWhenContextEnds(t *testing.T) {
	s, _ := newTestStager(t, NamingOriginal)

	held, err := s.Stage(context.Background(), "sales.csv", strings.NewReader("first"), false)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Stage(ctx, "sales.csv", strings.NewReader("second"), false)
	require.ErrorIs(t, err, context.Canceled)

	got, err := os.ReadFile(held.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestPathFor(t *testing.T) {
	unique, _ := newTestStager(t, NamingUnique)
	assert.Equal(t, filepath.Join(unique.Dir(), "id1-q1_sales.csv"), unique.PathFor("id1", "q1 sales.csv"))

	original, _ := newTestStager(t, NamingOriginal)
	assert.Equal(t, filepath.Join(original.Dir(), "q1_sales.csv"), original.PathFor("id1", "q1 sales.csv"))
}

func TestTouch(t *testing.T) {
	s, reg := newTestStager(t, NamingUnique)
	ctx := context.Background()

	kept, err := s.Stage(ctx, "kept.csv", strings.NewReader("x"), true)
	require.NoError(t, err)
	kept.Release(ctx)
	before := kept.ExpiresAt

	ok, err := s.Touch(ctx, kept.Path)
	require.NoError(t, err)
	assert.True(t, ok)
	up, err := reg.Get(ctx, kept.Path)
	require.NoError(t, err)
	assert.False(t, up.ExpiresAt.Before(before))

	ok, err = s.Touch(ctx, filepath.Join(s.Dir(), "missing.csv"))
	require.NoError(t, err)
	assert.False(t, ok)

	transient, err := s.Stage(ctx, "relay.csv", strings.NewReader("y"), false)
	require.NoError(t, err)
	path := transient.Path
	transient.Release(ctx)
	ok, err = s.Touch(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)
}
