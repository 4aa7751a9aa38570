package catalog_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/gamesave/pkg/gamesave/catalog"
	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogFactory creates a catalog instance for testing.
type catalogFactory func(t *testing.T) catalog.Catalog

func entry(id, episode string, step int64, createdAt float64) catalog.Entry {
	return catalog.Entry{
		CheckpointID: id,
		EpisodeID:    episode,
		StepNumber:   step,
		GameType:     state.GameBoy,
		GameName:     "tetris",
		Timestamp:    createdAt,
		BlobKey:      id,
		FilePath:     "/tmp/checkpoints/" + id + ".blob",
		CreatedAt:    createdAt,
		FileSize:     128,
		Checksum:     "abc123",
	}
}

// catalogContractTest runs contract tests against any Catalog implementation.
func catalogContractTest(t *testing.T, name string, factory catalogFactory) {
	ctx := context.Background()

	t.Run(name+"/Put_and_Get", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		e := entry("e1_step_1_100", "e1", 1, 100.5)
		require.NoError(t, c.Put(ctx, e))

		got, err := c.Get(ctx, e.CheckpointID)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run(name+"/Put_Overwrite", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		first := entry("id", "e1", 1, 100)
		second := entry("id", "e1", 1, 101)
		second.FileSize = 999
		require.NoError(t, c.Put(ctx, first))
		require.NoError(t, c.Put(ctx, second))

		got, err := c.Get(ctx, "id")
		require.NoError(t, err)
		assert.Equal(t, int64(999), got.FileSize)

		all, err := c.List(ctx, catalog.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run(name+"/Metadata_With_Bytes", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		e := entry("id", "e1", 1, 100)
		e.Metadata = map[string]any{
			"done":  true,
			"score": int64(42),
			"info":  map[string]any{"ram": []byte{0x00, 0xFF}, "lives": int64(3)},
			"tags":  []any{"a", 1.5},
		}
		require.NoError(t, c.Put(ctx, e))

		got, err := c.Get(ctx, "id")
		require.NoError(t, err)
		assert.Equal(t, e.Metadata, got.Metadata)
	})

	t.Run(name+"/Empty_Metadata", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		e := entry("id", "e1", 1, 100)
		e.Metadata = map[string]any{}
		require.NoError(t, c.Put(ctx, e))

		got, err := c.Get(ctx, "id")
		require.NoError(t, err)
		assert.Empty(t, got.Metadata)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		entries, err := c.List(ctx, catalog.Filter{EpisodeID: "nobody"})
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run(name+"/List_NewestFirst", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		require.NoError(t, c.Put(ctx, entry("a", "e1", 10, 100)))
		require.NoError(t, c.Put(ctx, entry("c", "e1", 30, 300)))
		require.NoError(t, c.Put(ctx, entry("b", "e1", 20, 200)))

		entries, err := c.List(ctx, catalog.Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "c", entries[0].CheckpointID)
		assert.Equal(t, "b", entries[1].CheckpointID)
		assert.Equal(t, "a", entries[2].CheckpointID)
	})

	t.Run(name+"/List_TieBreak", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		require.NoError(t, c.Put(ctx, entry("x1", "e1", 1, 100)))
		require.NoError(t, c.Put(ctx, entry("x2", "e1", 2, 100)))
		require.NoError(t, c.Put(ctx, entry("x3", "e1", 2, 100)))

		entries, err := c.List(ctx, catalog.Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []string{"x3", "x2", "x1"}, ids(entries))
	})

	t.Run(name+"/List_Filter_and_Limit", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		for i := 0; i < 5; i++ {
			require.NoError(t, c.Put(ctx, entry(fmt.Sprintf("a%d", i), "alpha", int64(i), float64(100+i))))
			require.NoError(t, c.Put(ctx, entry(fmt.Sprintf("b%d", i), "beta", int64(i), float64(100+i))))
		}

		alpha, err := c.List(ctx, catalog.Filter{EpisodeID: "alpha"})
		require.NoError(t, err)
		require.Len(t, alpha, 5)
		for _, e := range alpha {
			assert.Equal(t, "alpha", e.EpisodeID)
		}

		limited, err := c.List(ctx, catalog.Filter{EpisodeID: "beta", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"b4", "b3"}, ids(limited))

		all, err := c.List(ctx, catalog.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 10)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		require.NoError(t, c.Put(ctx, entry("id", "e1", 1, 100)))

		deleted, err := c.Delete(ctx, "id")
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = c.Get(ctx, "id")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run(name+"/Delete_Nonexistent", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		deleted, err := c.Delete(ctx, "missing")
		assert.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run(name+"/Close_Idempotent", func(t *testing.T) {
		c := factory(t)

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())

		assert.ErrorIs(t, c.Put(ctx, entry("id", "e1", 1, 100)), catalog.ErrClosed)
		_, err := c.Get(ctx, "id")
		assert.ErrorIs(t, err, catalog.ErrClosed)
		_, err = c.List(ctx, catalog.Filter{})
		assert.ErrorIs(t, err, catalog.ErrClosed)
		_, err = c.Delete(ctx, "id")
		assert.ErrorIs(t, err, catalog.ErrClosed)
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		c := factory(t)
		defer c.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				e := entry(fmt.Sprintf("c%d", id), "e1", int64(id), float64(id))
				assert.NoError(t, c.Put(ctx, e))
				_, err := c.List(ctx, catalog.Filter{EpisodeID: "e1"})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		entries, err := c.List(ctx, catalog.Filter{})
		require.NoError(t, err)
		assert.Len(t, entries, 10)
	})
}

func ids(entries []catalog.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CheckpointID
	}
	return out
}

func TestCatalogs(t *testing.T) {
	catalogContractTest(t, "IndexCatalog", func(t *testing.T) catalog.Catalog {
		path := filepath.Join(t.TempDir(), "metadata", catalog.IndexFileName)
		c, err := catalog.NewIndexCatalog(context.Background(), path)
		require.NoError(t, err)
		return c
	})

	catalogContractTest(t, "SQLiteCatalog", func(t *testing.T) catalog.Catalog {
		c, err := catalog.NewSQLiteCatalog(context.Background(), ":memory:")
		require.NoError(t, err)
		return c
	})

	catalogContractTest(t, "SQLiteCatalog_File", func(t *testing.T) catalog.Catalog {
		path := filepath.Join(t.TempDir(), catalog.SQLiteFileName)
		c, err := catalog.NewSQLiteCatalog(context.Background(), path)
		require.NoError(t, err)
		return c
	})
}

func TestIndexCatalog_CreatesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata", catalog.IndexFileName)

	c, err := catalog.NewIndexCatalog(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"checkpoints"`)
	assert.Contains(t, string(data), `"created_at"`)
	assert.Equal(t, path, c.Path())
	assert.Equal(t, 0, c.Len())
}

func TestIndexCatalog_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), catalog.IndexFileName)

	c, err := catalog.NewIndexCatalog(ctx, path)
	require.NoError(t, err)
	e := entry("id", "e1", 7, 100)
	e.Metadata = map[string]any{"frame": []byte("raw")}
	require.NoError(t, c.Put(ctx, e))
	require.NoError(t, c.Close())

	reopened, err := catalog.NewIndexCatalog(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.Equal(t, 1, reopened.Len())
}

func TestIndexCatalog_OnDiskShape(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), catalog.IndexFileName)

	c, err := catalog.NewIndexCatalog(ctx, path)
	require.NoError(t, err)
	defer c.Close()

	e := entry("id", "e1", 7, 100)
	e.Metadata = map[string]any{"frame": []byte("raw")}
	require.NoError(t, c.Put(ctx, e))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"episode_id": "e1"`)
	assert.Contains(t, text, `"step_number": 7`)
	assert.Contains(t, text, `"__bytes__": "cmF3"`)
	assert.Contains(t, text, `"checksum": "abc123"`)
}

func TestIndexCatalog_CorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), catalog.IndexFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := catalog.NewIndexCatalog(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, gserrors.ErrCatalog)
}

func TestIndexCatalog_SharedRoot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), catalog.IndexFileName)

	first, err := catalog.NewIndexCatalog(ctx, path)
	require.NoError(t, err)
	defer first.Close()
	second, err := catalog.NewIndexCatalog(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := first
			if id%2 == 1 {
				c = second
			}
			e := entry(fmt.Sprintf("cp%02d", id), "shared", int64(id), float64(id))
			assert.NoError(t, c.Put(ctx, e))
		}(i)
	}
	wg.Wait()

	fromFirst, err := first.List(ctx, catalog.Filter{})
	require.NoError(t, err)
	fromSecond, err := second.List(ctx, catalog.Filter{})
	require.NoError(t, err)

	assert.Len(t, fromFirst, 20)
	assert.Equal(t, ids(fromFirst), ids(fromSecond))

	deleted, err := second.Delete(ctx, "cp00")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = first.Get(ctx, "cp00")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSQLiteCatalog_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), catalog.SQLiteFileName)

	c, err := catalog.NewSQLiteCatalog(ctx, path)
	require.NoError(t, err)
	e := entry("id", "e1", 7, 100)
	e.Metadata = map[string]any{"frame": []byte("raw")}
	require.NoError(t, c.Put(ctx, e))
	require.NoError(t, c.Close())

	reopened, err := catalog.NewSQLiteCatalog(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestSortOldestFirst_ReversesNewestFirst(t *testing.T) {
	entries := []catalog.Entry{
		entry("b", "e", 2, 100),
		entry("a", "e", 1, 100),
		entry("c", "e", 1, 50),
		entry("d", "e", 2, 100),
	}

	newest := append([]catalog.Entry(nil), entries...)
	catalog.SortNewestFirst(newest)
	oldest := append([]catalog.Entry(nil), entries...)
	catalog.SortOldestFirst(oldest)

	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(newest))
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(oldest))
}

func TestFilter_Match(t *testing.T) {
	e := entry("id", "e1", 1, 1)
	assert.True(t, catalog.Filter{}.Match(e))
	assert.True(t, catalog.Filter{EpisodeID: "e1"}.Match(e))
	assert.False(t, catalog.Filter{EpisodeID: "e2"}.Match(e))
}
