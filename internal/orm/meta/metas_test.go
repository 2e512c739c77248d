package meta_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/result"
	"github.com/wp-orm/wpmeta/internal/store/memory"
)

// countingStore counts the reads that reach the wrapped store
type countingStore struct {
	meta.Store
	getAll   int
	getByKey int
}

func (c *countingStore) GetAll(ctx context.Context, objectType meta.ObjectType, objectID int64) (meta.Rows, error) {
	c.getAll++
	return c.Store.GetAll(ctx, objectType, objectID)
}

func (c *countingStore) GetByKey(ctx context.Context, objectType meta.ObjectType, objectID int64, key string) ([]interface{}, error) {
	c.getByKey++
	return c.Store.GetByKey(ctx, objectType, objectID, key)
}

// owner records deferred registrations
type owner struct {
	names []string
}

func (o *owner) RegisterDeferred(name string) {
	o.names = append(o.names, name)
}

func seed(t *testing.T, store *memory.Store, objectID int64, pairs ...interface{}) {
	t.Helper()
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, store.Add(context.Background(), meta.ObjectPost, objectID, pairs[i].(string), pairs[i+1]))
	}
	store.ResetCalls()
}

func values(entries []*meta.Meta) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value())
	}
	return out
}

func ops(calls []memory.Call) []memory.Op {
	out := make([]memory.Op, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

func TestMetas_NewObjectFlushesOnceWithAssignedID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	o := &owner{}
	metas := meta.NewMetas(meta.ObjectPost, 0, store, o, nil)

	r := metas.CreateMeta("color", "red")
	require.True(t, r.IsSuccess())
	assert.Equal(t, meta.CodeMetaCreateStaged, r.Code())
	assert.Equal(t, []string{meta.PersistOperation}, o.names)
	assert.Empty(t, store.Calls())

	results := metas.PersistMetas(ctx, 42)
	require.Len(t, results, 1)
	assert.True(t, results.OK())
	assert.Equal(t, []memory.Call{
		{Op: memory.OpAdd, ObjectType: meta.ObjectPost, ObjectID: 42, Key: "color", Value: "red"},
	}, store.Calls())
	assert.Equal(t, int64(42), metas.ObjectID())
	assert.True(t, metas.Loaded())

	entry, err := metas.GetMeta(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, meta.StateClean, entry.State())
	assert.Equal(t, int64(42), entry.ObjectID())
}

func TestMetas_ReadsBeforeIdentityNeverTouchStore(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	metas := meta.NewMetas(meta.ObjectPost, 0, store, nil, nil)

	require.NoError(t, metas.Preload(context.Background()))
	entries, err := metas.GetMetas(context.Background(), "color")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, store.getAll)
	assert.Zero(t, store.getByKey)
}

func TestMetas_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	writer := meta.NewMetas(meta.ObjectPost, 5, store, nil, nil)
	writer.CreateMeta("dims", map[string]interface{}{"w": 640})
	writer.CreateMeta("title", `{"not":"decoded"}`)
	writer.CreateMeta("count", 3)
	require.True(t, writer.PersistMetas(ctx, 5).OK())

	reader := meta.NewMetas(meta.ObjectPost, 5, store, nil, nil)
	require.NoError(t, reader.Preload(ctx))

	dims, err := reader.GetMeta(ctx, "dims")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"w": float64(640)}, dims.Value())

	title, err := reader.GetMeta(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, `{"not":"decoded"}`, title.Value())

	count, err := reader.GetMeta(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, 3, count.Int())
	assert.Equal(t, []string{"dims", "title", "count"}, reader.Keys())
}

func TestMetas_PreloadIsSingleQuery(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	seed(t, mem, 7, "color", "red", "size", "xl", "tag", "a", "tag", "b")
	store := &countingStore{Store: mem}
	metas := meta.NewMetas(meta.ObjectPost, 7, store, nil, nil)

	require.NoError(t, metas.Preload(ctx))
	require.NoError(t, metas.Preload(ctx))
	for _, key := range []string{"color", "size", "tag", "missing"} {
		_, err := metas.GetMetas(ctx, key)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, store.getAll)
	assert.Zero(t, store.getByKey)
}

func TestMetas_LazyKeyRead(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	seed(t, mem, 7, "color", "red", "size", "xl")
	store := &countingStore{Store: mem}
	metas := meta.NewMetas(meta.ObjectPost, 7, store, nil, nil)

	color, err := metas.GetMeta(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, "red", color.Value())
	_, err = metas.GetMeta(ctx, "color")
	require.NoError(t, err)

	assert.Equal(t, 1, store.getByKey)
	assert.False(t, metas.Loaded())

	// A later preload keeps the entry already handed out
	require.NoError(t, metas.Preload(ctx))
	again, err := metas.GetMeta(ctx, "color")
	require.NoError(t, err)
	assert.Same(t, color, again)
	assert.Equal(t, []string{"color", "size"}, metas.Keys())
}

func TestMetas_GetMetaMissingKey(t *testing.T) {
	ctx := context.Background()
	metas := meta.NewMetas(meta.ObjectPost, 7, memory.NewStore(), nil, nil)

	entry, err := metas.GetMeta(ctx, "missing")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Empty())
	assert.Equal(t, "missing", entry.Key())

	// The placeholder is not staged
	assert.Zero(t, metas.Pending())
	assert.Empty(t, metas.PersistMetas(ctx, 7))

	_, err = metas.GetMetas(ctx, "")
	assert.ErrorIs(t, err, meta.ErrInvalidKey)
}

func TestMetas_MultiValuedKeyKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	metas := meta.NewMetas(meta.ObjectPost, 3, store, nil, nil)

	metas.CreateMeta("tag", "a")
	metas.CreateMeta("tag", "b")
	require.True(t, metas.PersistMetas(ctx, 3).OK())

	entries, err := metas.GetMetas(ctx, "tag")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, values(entries))

	fresh := meta.NewMetas(meta.ObjectPost, 3, store, nil, nil)
	entries, err = fresh.GetMetas(ctx, "tag")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, values(entries))
}

func TestMetas_StoredValuesPrecedeStagedOnes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, 3, "tag", "a")
	metas := meta.NewMetas(meta.ObjectPost, 3, store, nil, nil)

	metas.CreateMeta("tag", "b")
	entries, err := metas.GetMetas(ctx, "tag")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, values(entries))
	assert.Equal(t, meta.StateClean, entries[0].State())
	assert.Equal(t, meta.StateNew, entries[1].State())
}

func TestMetas_UpdateMeta(t *testing.T) {
	ctx := context.Background()

	t.Run("dirty entry flushes as update", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "color", "red")
		o := &owner{}
		metas := meta.NewMetas(meta.ObjectPost, 1, store, o, nil)

		r := metas.UpdateMeta(ctx, "color", "blue")
		require.True(t, r.IsSuccess())
		assert.Equal(t, meta.CodeMetaUpdateStaged, r.Code())
		assert.Equal(t, []string{meta.PersistOperation}, o.names)

		results := metas.PersistMetas(ctx, 1)
		assert.Equal(t, []result.Code{meta.CodeMetaUpdated}, results.Codes())
		assert.Equal(t, []memory.Call{
			{Op: memory.OpUpdate, ObjectType: meta.ObjectPost, ObjectID: 1, Key: "color", Value: "blue", PrevValue: "red"},
		}, store.Calls())
	})

	t.Run("same value is a no-op", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "color", "red")
		o := &owner{}
		metas := meta.NewMetas(meta.ObjectPost, 1, store, o, nil)

		r := metas.UpdateMeta(ctx, "color", "red")
		assert.Equal(t, meta.CodeMetaUnchanged, r.Code())
		assert.Empty(t, o.names)
		assert.Empty(t, metas.PersistMetas(ctx, 1))
		assert.Empty(t, store.Calls())
	})

	t.Run("idempotent", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "color", "red")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.UpdateMeta(ctx, "color", "blue")
		metas.UpdateMeta(ctx, "color", "blue")
		results := metas.PersistMetas(ctx, 1)
		assert.Len(t, results, 1)
		assert.Len(t, store.Calls(), 1)
	})

	t.Run("reverting restores clean", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "color", "red")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.UpdateMeta(ctx, "color", "blue")
		metas.UpdateMeta(ctx, "color", "red")
		assert.Zero(t, metas.Pending())
		assert.Empty(t, metas.PersistMetas(ctx, 1))
	})

	t.Run("missing key is created", func(t *testing.T) {
		store := memory.NewStore()
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		r := metas.UpdateMeta(ctx, "color", "red")
		assert.Equal(t, meta.CodeMetaCreateStaged, r.Code())
		metas.PersistMetas(ctx, 1)
		assert.Equal(t, []memory.Op{memory.OpAdd}, ops(store.Calls()))
	})

	t.Run("staged entry is rewritten in place", func(t *testing.T) {
		store := memory.NewStore()
		metas := meta.NewMetas(meta.ObjectPost, 0, store, nil, nil)

		metas.CreateMeta("color", "red")
		metas.UpdateMeta(ctx, "color", "blue")
		metas.PersistMetas(ctx, 9)

		assert.Equal(t, []memory.Call{
			{Op: memory.OpAdd, ObjectType: meta.ObjectPost, ObjectID: 9, Key: "color", Value: "blue"},
		}, store.Calls())
	})

	t.Run("several values are ambiguous", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "tag", "a", "tag", "b")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		r := metas.UpdateMeta(ctx, "tag", "c")
		assert.True(t, r.IsError())
		assert.Equal(t, meta.CodeMetaUpdateFailed, r.Code())
		assert.Zero(t, metas.Pending())
	})

	t.Run("nil value is rejected", func(t *testing.T) {
		metas := meta.NewMetas(meta.ObjectPost, 1, memory.NewStore(), nil, nil)
		r := metas.UpdateMeta(ctx, "color", nil)
		assert.Equal(t, meta.CodeInvalidMetaValue, r.Code())
	})
}

func TestMetas_ReplaceMeta(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, 1, "color", "red", "color", "green")
	metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

	r := metas.ReplaceMeta(ctx, "color", "blue")
	require.True(t, r.IsSuccess())
	assert.Equal(t, meta.CodeMetaReplaceStaged, r.Code())

	entries, err := metas.GetMetas(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"blue"}, values(entries))

	results := metas.PersistMetas(ctx, 1)
	assert.True(t, results.OK())
	assert.Equal(t, []memory.Op{memory.OpDelete, memory.OpDelete, memory.OpAdd}, ops(store.Calls()))

	entries, err = metas.GetMetas(ctx, "color")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blue", entries[0].Value())
	assert.Equal(t, meta.StateClean, entries[0].State())

	stored, err := store.GetByKey(ctx, meta.ObjectPost, 1, "color")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"blue"}, stored)
}

func TestMetas_DeleteMeta(t *testing.T) {
	ctx := context.Background()

	t.Run("by value", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "tag", "a", "tag", "b")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		r := metas.DeleteMeta(ctx, "tag", "a")
		require.True(t, r.IsSuccess())
		assert.Equal(t, meta.CodeMetaDeleteStaged, r.Code())

		entries, _ := metas.GetMetas(ctx, "tag")
		assert.Equal(t, []interface{}{"b"}, values(entries))

		assert.True(t, metas.PersistMetas(ctx, 1).OK())
		assert.Equal(t, []memory.Call{
			{Op: memory.OpDelete, ObjectType: meta.ObjectPost, ObjectID: 1, Key: "tag", Value: "a"},
		}, store.Calls())
		assert.Zero(t, metas.Pending())
	})

	t.Run("every value", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "tag", "a", "tag", "b")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.DeleteMeta(ctx, "tag", nil)
		assert.Empty(t, metas.Keys())
		assert.True(t, metas.PersistMetas(ctx, 1).OK())
		assert.Empty(t, store.Objects())
	})

	t.Run("duplicate values delete once", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "tag", "a", "tag", "a")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.DeleteMeta(ctx, "tag", "a")
		results := metas.PersistMetas(ctx, 1)
		assert.Equal(t, []result.Code{meta.CodeMetaDeleted}, results.Codes())
		assert.Zero(t, metas.Pending())
	})

	t.Run("staged entry is dropped without a store call", func(t *testing.T) {
		store := memory.NewStore()
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.CreateMeta("color", "red")
		metas.DeleteMeta(ctx, "color", "red")
		assert.Zero(t, metas.Pending())
		assert.Empty(t, metas.PersistMetas(ctx, 1))
		assert.Empty(t, store.Calls())
	})

	t.Run("no match", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "tag", "a")
		o := &owner{}
		metas := meta.NewMetas(meta.ObjectPost, 1, store, o, nil)

		r := metas.DeleteMeta(ctx, "tag", "z")
		assert.Equal(t, meta.CodeMetaDeleteFailed, r.Code())
		assert.Empty(t, o.names)
	})

	t.Run("failed delete is retried", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "color", "red")
		store.Fail = func(call memory.Call) error { return errors.New("read only") }
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.DeleteMeta(ctx, "color", nil)
		results := metas.PersistMetas(ctx, 1)
		assert.Equal(t, []result.Code{meta.CodeDeleteMetadataFailed}, results.Codes())
		assert.Equal(t, 1, metas.Pending())

		store.Fail = nil
		assert.True(t, metas.PersistMetas(ctx, 1).OK())
		assert.Zero(t, metas.Pending())
	})

	t.Run("row removed by another writer", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, 1, "color", "red")
		metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

		metas.DeleteMeta(ctx, "color", "red")
		require.NoError(t, store.Delete(ctx, meta.ObjectPost, 1, "color", nil))

		results := metas.PersistMetas(ctx, 1)
		assert.Equal(t, []result.Code{meta.CodeMetaDeleteFailed}, results.Codes())
		assert.Zero(t, metas.Pending())
		assert.Empty(t, metas.Keys())
		assert.Empty(t, metas.PersistMetas(ctx, 1))
	})
}

func TestMetas_FailedFlushRegistersAgain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Fail = func(memory.Call) error { return errors.New("read only") }
	o := &owner{}
	metas := meta.NewMetas(meta.ObjectPost, 1, store, o, nil)

	metas.CreateMeta("color", "red")
	assert.Equal(t, []string{meta.PersistOperation}, o.names)

	metas.PersistMetas(ctx, 1)
	assert.Equal(t, []string{meta.PersistOperation, meta.PersistOperation}, o.names)

	store.Fail = nil
	require.True(t, metas.PersistMetas(ctx, 1).OK())
	assert.Len(t, o.names, 2)
}

func TestMetas_PersistToAnotherObject(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	o := &owner{}
	metas := meta.NewMetas(meta.ObjectPost, 1, store, o, nil)
	metas.CreateMeta("color", "red")

	results := metas.PersistMetas(ctx, 2)
	require.Len(t, results, 1)
	assert.Equal(t, meta.CodeObjectIDMismatch, results[0].Code())
	assert.True(t, results[0].IsError())
	assert.Empty(t, store.Calls())
	assert.Equal(t, int64(1), metas.ObjectID())
	assert.Equal(t, 1, metas.Pending())
	assert.Len(t, o.names, 2)

	assert.Equal(t, []result.Code{meta.CodeMetaCreated}, metas.PersistMetas(ctx, 1).Codes())
}

func TestMetas_PartialFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Fail = func(call memory.Call) error {
		if call.Key == "b" {
			return errors.New("constraint violation")
		}
		return nil
	}
	metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

	metas.CreateMeta("a", "1")
	metas.CreateMeta("b", "2")
	metas.CreateMeta("c", "3")

	results := metas.PersistMetas(ctx, 1)
	require.Len(t, results, 3)
	assert.True(t, results.Partial())
	assert.Equal(t, []result.Code{meta.CodeMetaCreated, meta.CodeAddMetadataFailed, meta.CodeMetaCreated}, results.Codes())

	failed, ok := results[1].Data().(*meta.Meta)
	require.True(t, ok)
	assert.Equal(t, "b", failed.Key())
	assert.Equal(t, meta.StateNew, failed.State())
	assert.Equal(t, 1, metas.Pending())

	store.Fail = nil
	retry := metas.PersistMetas(ctx, 1)
	assert.Equal(t, []result.Code{meta.CodeMetaCreated}, retry.Codes())
}

func TestMetas_CreateExistingValueFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, 1, "color", "red")
	metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)

	metas.CreateMeta("color", "red")
	results := metas.PersistMetas(ctx, 1)
	assert.Equal(t, []result.Code{meta.CodeMetaExists}, results.Codes())
	assert.Empty(t, store.Calls())
}

func TestMetas_Forget(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	seed(t, mem, 1, "color", "red")
	store := &countingStore{Store: mem}
	metas := meta.NewMetas(meta.ObjectPost, 1, store, nil, nil)
	require.NoError(t, metas.Preload(ctx))

	metas.UpdateMeta(ctx, "color", "blue")
	require.NoError(t, mem.Update(ctx, meta.ObjectPost, 1, "color", "green", "red"))

	metas.Forget("color")
	assert.Zero(t, metas.Pending())

	entry, err := metas.GetMeta(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, "green", entry.Value())
	assert.Equal(t, 1, store.getByKey)
}

func TestMetas_StoreReadError(t *testing.T) {
	ctx := context.Background()
	metas := meta.NewMetas(meta.ObjectPost, 1, &failingReads{}, nil, nil)

	assert.Error(t, metas.Preload(ctx))
	_, err := metas.GetMeta(ctx, "color")
	assert.Error(t, err)

	r := metas.UpdateMeta(ctx, "color", "red")
	assert.Equal(t, meta.CodeUpdateMetadataFailed, r.Code())
	r = metas.DeleteMeta(ctx, "color", nil)
	assert.Equal(t, meta.CodeDeleteMetadataFailed, r.Code())
}

type failingReads struct {
	memory.Store
}

func (f *failingReads) GetAll(context.Context, meta.ObjectType, int64) (meta.Rows, error) {
	return nil, errors.New("connection refused")
}

func (f *failingReads) GetByKey(context.Context, meta.ObjectType, int64, string) ([]interface{}, error) {
	return nil, errors.New("connection refused")
}
