package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "mnemo-store-test-*")
	require.NoError(t, err)

	s, err := Open(Config{
		DBPath:    filepath.Join(dir, "test.db"),
		Dimension: 4,
		Logger:    zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	require.NoError(t, err)

	cleanup := func() {
		s.Close()
		os.RemoveAll(dir)
	}
	return s, cleanup
}

func addMemory(t *testing.T, s Store, content string, emb []float32) *Memory {
	t.Helper()
	m := &Memory{
		Content:   content,
		Source:    "test",
		Embedding: emb,
	}
	require.NoError(t, s.CreateMemory(context.Background(), m))
	return m
}

func TestOpen_InvalidConfig(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty path", cfg: Config{Dimension: 4, Logger: logger}},
		{name: "zero dimension", cfg: Config{DBPath: "/tmp/x.db", Logger: logger}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestCreateAndGetMemory(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	quality := 0.8
	m := &Memory{
		Content:      "prefer table-driven tests",
		Tags:         []string{"testing", "style"},
		Source:       "session:abc",
		Embedding:    []float32{0.1, 0.2, 0.3, 0.4},
		QualityScore: &quality,
	}
	require.NoError(t, s.CreateMemory(ctx, m))
	assert.Greater(t, m.ID, int64(0))

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, []string{"testing", "style"}, got.Tags)
	assert.Equal(t, "session:abc", got.Source)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, got.Embedding)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.8, *got.QualityScore, 1e-9)
	assert.True(t, got.Live())
}

func TestGetMemory_NotFound(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()

	_, err := s.GetMemory(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidateMemory(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep := addMemory(t, s, "keep", []float32{1, 0, 0, 0})
	drop := addMemory(t, s, "drop", []float32{0.99, 0.01, 0, 0})

	require.NoError(t, s.InvalidateMemory(ctx, drop.ID, keep.ID))

	got, err := s.GetMemory(ctx, drop.ID)
	require.NoError(t, err)
	assert.False(t, got.Live())
	require.NotNil(t, got.InvalidatedBy)
	assert.Equal(t, keep.ID, *got.InvalidatedBy)

	t.Run("double invalidation fails", func(t *testing.T) {
		err := s.InvalidateMemory(ctx, drop.ID, keep.ID)
		assert.ErrorIs(t, err, ErrInvalidated)
	})

	t.Run("invalidated_by must point to a live memory", func(t *testing.T) {
		third := addMemory(t, s, "third", []float32{0, 1, 0, 0})
		err := s.InvalidateMemory(ctx, third.ID, drop.ID)
		assert.ErrorIs(t, err, ErrInvalidated)
	})

	t.Run("invalidated memories leave the live set", func(t *testing.T) {
		live, err := s.ListLive(ctx)
		require.NoError(t, err)
		for _, m := range live {
			assert.NotEqual(t, drop.ID, m.ID)
		}
	})
}

func TestRestoreMemory(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep := addMemory(t, s, "keep", []float32{1, 0, 0, 0})
	drop := addMemory(t, s, "drop", []float32{0, 1, 0, 0})

	t.Run("restoring a live memory fails", func(t *testing.T) {
		err := s.RestoreMemory(ctx, drop.ID)
		assert.ErrorIs(t, err, ErrNotInvalidated)
	})

	require.NoError(t, s.InvalidateMemory(ctx, drop.ID, keep.ID))
	require.NoError(t, s.RestoreMemory(ctx, drop.ID))

	got, err := s.GetMemory(ctx, drop.ID)
	require.NoError(t, err)
	assert.True(t, got.Live())
}

func TestHardDeleteMemory(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	m := addMemory(t, s, "ephemeral", []float32{1, 0, 0, 0})
	require.NoError(t, s.HardDeleteMemory(ctx, m.ID))

	_, err := s.GetMemory(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("deleting again fails", func(t *testing.T) {
		assert.ErrorIs(t, s.HardDeleteMemory(ctx, m.ID), ErrNotFound)
	})
}

func TestTouchMemory(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	m := addMemory(t, s, "touched", []float32{1, 0, 0, 0})
	require.NoError(t, s.TouchMemory(ctx, m.ID))
	require.NoError(t, s.TouchMemory(ctx, m.ID))

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	assert.NotNil(t, got.LastAccessed)
}

func TestCreateLink(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := addMemory(t, s, "a", []float32{1, 0, 0, 0})
	b := addMemory(t, s, "b", []float32{0, 1, 0, 0})

	link, err := s.CreateLink(ctx, a.ID, b.ID, RelationSimilarTo, 0.9)
	require.NoError(t, err)
	assert.Greater(t, link.ID, int64(0))
	assert.False(t, link.LLMEnriched)

	t.Run("duplicate is rejected", func(t *testing.T) {
		_, err := s.CreateLink(ctx, a.ID, b.ID, RelationSimilarTo, 0.9)
		assert.ErrorIs(t, err, ErrDuplicateLink)
	})

	t.Run("reversed symmetric duplicate is rejected", func(t *testing.T) {
		_, err := s.CreateLink(ctx, b.ID, a.ID, RelationSimilarTo, 0.9)
		assert.ErrorIs(t, err, ErrDuplicateLink)
	})

	t.Run("directed relation allows both directions", func(t *testing.T) {
		_, err := s.CreateLink(ctx, a.ID, b.ID, RelationLeadsTo, 0.5)
		require.NoError(t, err)
		_, err = s.CreateLink(ctx, b.ID, a.ID, RelationLeadsTo, 0.5)
		assert.NoError(t, err)
	})

	t.Run("self link is rejected", func(t *testing.T) {
		_, err := s.CreateLink(ctx, a.ID, a.ID, RelationSimilarTo, 1.0)
		assert.Error(t, err)
	})

	t.Run("unknown relation is rejected", func(t *testing.T) {
		_, err := s.CreateLink(ctx, a.ID, b.ID, Relation("friends_with"), 0.5)
		assert.Error(t, err)
	})
}

func TestUpdateLinkRelation(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := addMemory(t, s, "a", []float32{1, 0, 0, 0})
	b := addMemory(t, s, "b", []float32{0, 1, 0, 0})
	link, err := s.CreateLink(ctx, a.ID, b.ID, RelationSimilarTo, 0.8)
	require.NoError(t, err)

	require.NoError(t, s.UpdateLinkRelation(ctx, link.ID, RelationCausedBy, true))

	links, err := s.LinksFor(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, RelationCausedBy, links[0].Relation)
	assert.True(t, links[0].LLMEnriched)
}

func TestTransferLinks(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep := addMemory(t, s, "keep", []float32{1, 0, 0, 0})
	drop := addMemory(t, s, "drop", []float32{0.9, 0.1, 0, 0})
	other := addMemory(t, s, "other", []float32{0, 1, 0, 0})
	third := addMemory(t, s, "third", []float32{0, 0, 1, 0})

	// drop -> other (transfers), other -> drop would self-dup via symmetry,
	// keep <-> drop (becomes a self link, skipped),
	// third -> drop (incoming, transfers)
	_, err := s.CreateLink(ctx, drop.ID, other.ID, RelationSimilarTo, 0.7)
	require.NoError(t, err)
	_, err = s.CreateLink(ctx, keep.ID, drop.ID, RelationSimilarTo, 0.95)
	require.NoError(t, err)
	_, err = s.CreateLink(ctx, third.ID, drop.ID, RelationLeadsTo, 0.6)
	require.NoError(t, err)

	transferred, err := s.TransferLinks(ctx, drop.ID, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, transferred)

	// Nothing touches drop anymore
	dropLinks, err := s.LinksFor(ctx, drop.ID)
	require.NoError(t, err)
	assert.Empty(t, dropLinks)

	keepLinks, err := s.LinksFor(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, keepLinks, 2)
}

func TestTransferLinks_SwallowsDuplicates(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep := addMemory(t, s, "keep", []float32{1, 0, 0, 0})
	drop := addMemory(t, s, "drop", []float32{0.9, 0.1, 0, 0})
	other := addMemory(t, s, "other", []float32{0, 1, 0, 0})

	// Both keep and drop already link to other; transfer must not fail
	_, err := s.CreateLink(ctx, keep.ID, other.ID, RelationSimilarTo, 0.8)
	require.NoError(t, err)
	_, err = s.CreateLink(ctx, drop.ID, other.ID, RelationSimilarTo, 0.7)
	require.NoError(t, err)

	transferred, err := s.TransferLinks(ctx, drop.ID, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, transferred)

	keepLinks, err := s.LinksFor(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, keepLinks, 1)
}

func TestOrphanMemoryIDs(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := addMemory(t, s, "a", []float32{1, 0, 0, 0})
	b := addMemory(t, s, "b", []float32{0, 1, 0, 0})
	orphan := addMemory(t, s, "orphan", []float32{0, 0, 1, 0})

	_, err := s.CreateLink(ctx, a.ID, b.ID, RelationSimilarTo, 0.8)
	require.NoError(t, err)

	orphans, err := s.OrphanMemoryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{orphan.ID}, orphans)
}

func TestNearestNeighbors(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := addMemory(t, s, "a", []float32{1, 0, 0, 0})
	b := addMemory(t, s, "b", []float32{0.9, 0.1, 0, 0})
	addMemory(t, s, "c", []float32{0, 0, 1, 0})

	neighbors, err := s.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, a.ID, neighbors[0].MemoryID)
	assert.Equal(t, b.ID, neighbors[1].MemoryID)
	assert.Greater(t, neighbors[0].Similarity, neighbors[1].Similarity)

	t.Run("invalidated memories never surface", func(t *testing.T) {
		require.NoError(t, s.InvalidateMemory(ctx, b.ID, a.ID))
		neighbors, err := s.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 5, 0.5)
		require.NoError(t, err)
		for _, n := range neighbors {
			assert.NotEqual(t, b.ID, n.MemoryID)
		}
	})
}

func TestCentralityCache(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := addMemory(t, s, "a", []float32{1, 0, 0, 0})
	b := addMemory(t, s, "b", []float32{0, 1, 0, 0})

	scores := map[int64]CentralityScore{
		a.ID: {MemoryID: a.ID, Degree: 6, NormalizedDegree: 1.0},
		b.ID: {MemoryID: b.ID, Degree: 3, NormalizedDegree: 0.5},
	}
	require.NoError(t, s.SaveCentrality(ctx, scores))

	got, err := s.GetCentrality(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Degree)
	assert.InDelta(t, 1.0, got.NormalizedDegree, 1e-9)

	t.Run("save replaces wholesale", func(t *testing.T) {
		require.NoError(t, s.SaveCentrality(ctx, map[int64]CentralityScore{
			b.ID: {MemoryID: b.ID, Degree: 1, NormalizedDegree: 1.0},
		}))

		_, err := s.GetCentrality(ctx, a.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := s.AllCentrality(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestUnitOfWork(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("commit persists", func(t *testing.T) {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)

		m := &Memory{Content: "committed", Source: "test", Embedding: []float32{1, 0, 0, 0}}
		require.NoError(t, uow.CreateMemory(ctx, m))
		require.NoError(t, uow.Commit())

		got, err := s.GetMemory(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "committed", got.Content)
	})

	t.Run("rollback discards", func(t *testing.T) {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)

		m := &Memory{Content: "discarded", Source: "test", Embedding: []float32{0, 1, 0, 0}}
		require.NoError(t, uow.CreateMemory(ctx, m))
		require.NoError(t, uow.Rollback())

		_, err = s.GetMemory(ctx, m.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEmbeddingRoundtrip(t *testing.T) {
	emb := []float32{0.125, -1.5, 3.25, 0}
	assert.Equal(t, emb, decodeEmbedding(encodeEmbedding(emb)))
	assert.Nil(t, encodeEmbedding(nil))
	assert.Nil(t, decodeEmbedding(nil))
	assert.Nil(t, decodeEmbedding([]byte{1, 2, 3}))
}

func TestMemoryTimestamps(t *testing.T) {
	s, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := time.Now().Add(-time.Hour).Truncate(time.Second)
	until := time.Now().Add(time.Hour).Truncate(time.Second)
	m := &Memory{
		Content:    "windowed",
		Source:     "test",
		Embedding:  []float32{1, 0, 0, 0},
		ValidFrom:  &from,
		ValidUntil: &until,
	}
	require.NoError(t, s.CreateMemory(ctx, m))

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ValidFrom)
	require.NotNil(t, got.ValidUntil)
	assert.Equal(t, from.Unix(), got.ValidFrom.Unix())
	assert.Equal(t, until.Unix(), got.ValidUntil.Unix())
}
