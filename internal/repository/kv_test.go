package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline-labs/gridboard/internal/entity"
)

func newTestEntity(t *testing.T, name string) *entity.Entity {
	t.Helper()
	e := entity.New(entity.Config{Type: "bar-chart", Name: name})
	require.NoError(t, e.AddDimension(entity.Dimension("region", "region", "string")))
	require.NoError(t, e.AddMeasure(entity.Measure("sales", "sales", "number", entity.AggSum)))
	return e
}

func TestKVRepositorySaveLoad(t *testing.T) {
	repo := NewKVRepository(KVConfig{})
	ctx := context.Background()

	e := newTestEntity(t, "Sales")
	require.NoError(t, repo.Save(ctx, e))

	got, err := repo.Load(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "Sales", got.Name)
	assert.Len(t, got.DataBinding.Dimensions, 1)
}

func TestKVRepositoryLoadMissing(t *testing.T) {
	repo := NewKVRepository(KVConfig{})

	got, err := repo.Load(context.Background(), "widget_0_nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKVRepositoryIndexIntegrity(t *testing.T) {
	repo := NewKVRepository(KVConfig{})
	ctx := context.Background()

	a := newTestEntity(t, "A")
	b := newTestEntity(t, "B")
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	// Re-saving must not duplicate the index entry.
	require.NoError(t, repo.Save(ctx, a))

	ids, err := repo.IndexedIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)

	require.NoError(t, repo.Delete(ctx, a.ID))
	ids, err = repo.IndexedIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)
}

func TestKVRepositoryDeleteIdempotent(t *testing.T) {
	repo := NewKVRepository(KVConfig{})
	ctx := context.Background()

	e := newTestEntity(t, "Gone")
	require.NoError(t, repo.Save(ctx, e))
	require.NoError(t, repo.Delete(ctx, e.ID))
	require.NoError(t, repo.Delete(ctx, e.ID))

	got, err := repo.Load(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKVRepositoryLoadAllSkipsCorrupt(t *testing.T) {
	kv := NewMemoryKV()
	repo := NewKVRepository(KVConfig{KV: kv})
	ctx := context.Background()

	good := newTestEntity(t, "Good")
	bad := newTestEntity(t, "Bad")
	require.NoError(t, repo.Save(ctx, good))
	require.NoError(t, repo.Save(ctx, bad))

	// Corrupt one record behind the repository's back.
	require.NoError(t, kv.Set(EntityKey(bad.ID), "{not json"))

	entities, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, good.ID, entities[0].ID)

	// The corrupt id must have been dropped from the index.
	ids, err := repo.IndexedIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{good.ID}, ids)
}

func TestKVRepositoryLoadAllDropsMissing(t *testing.T) {
	kv := NewMemoryKV()
	repo := NewKVRepository(KVConfig{KV: kv})
	ctx := context.Background()

	e := newTestEntity(t, "Vanished")
	require.NoError(t, repo.Save(ctx, e))
	require.NoError(t, kv.Delete(EntityKey(e.ID)))

	entities, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)

	ids, err := repo.IndexedIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestKVRepositoryClear(t *testing.T) {
	repo := NewKVRepository(KVConfig{})
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newTestEntity(t, "One")))
	require.NoError(t, repo.Save(ctx, newTestEntity(t, "Two")))
	require.NoError(t, repo.Clear(ctx))

	entities, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestKVRepositorySaveRejectsEmptyID(t *testing.T) {
	repo := NewKVRepository(KVConfig{})
	e := entity.New(entity.Config{Type: "table"})
	e.ID = ""
	assert.Error(t, repo.Save(context.Background(), e))
}

func TestFileKVRoundTrip(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	_, err = kv.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, kv.Set("k", "v"))
	got, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, kv.Delete("k"))
	require.NoError(t, kv.Delete("k"))
	_, err = kv.Get("k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileKVBackedRepository(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	repo := NewKVRepository(KVConfig{KV: kv})
	ctx := context.Background()

	e := newTestEntity(t, "Persisted")
	require.NoError(t, repo.Save(ctx, e))

	// A second repository over the same directory sees the data.
	repo2 := NewKVRepository(KVConfig{KV: kv})
	entities, err := repo2.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, e.ID, entities[0].ID)
}
