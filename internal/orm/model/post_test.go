package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/record"
	"github.com/wp-orm/wpmeta/internal/orm/result"
	"github.com/wp-orm/wpmeta/internal/store/memory"
)

var (
	_ HasMeta                = (*Post)(nil)
	_ HasMeta                = (*User)(nil)
	_ HasMeta                = (*Term)(nil)
	_ HasMeta                = (*Object)(nil)
	_ HasDeferredPersistence = (*Post)(nil)
	_ HasDeferredPersistence = (*User)(nil)
	_ HasDeferredPersistence = (*Term)(nil)
	_ HasDeferredPersistence = (*Object)(nil)
)

func TestPost_CreateFlushesMetasWithNewID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rows := memory.NewRows()

	post := NewPost(store, rows, nil)
	post.Title = "Hello"
	post.CreateMeta("color", "red")
	post.CreateMeta("tag", "a")
	post.CreateMeta("tag", "b")

	assert.Equal(t, []string{meta.PersistOperation}, post.Deferred())

	results := post.Save(ctx)
	require.True(t, results.OK(), results.Err())
	assert.Equal(t, []result.Code{CodePostCreated, meta.CodeMetaCreated, meta.CodeMetaCreated, meta.CodeMetaCreated}, results.Codes())
	assert.Equal(t, int64(1), post.ID)
	assert.Equal(t, int64(1), post.ObjectID())
	assert.Empty(t, post.Deferred())

	for _, c := range store.Calls() {
		assert.Equal(t, int64(1), c.ObjectID)
	}

	row, ok := rows.Get(record.Posts, 1)
	require.True(t, ok)
	assert.Equal(t, "Hello", row["post_title"])
	assert.Equal(t, "draft", row["post_status"])
	assert.Equal(t, "post", row["post_type"])

	stored, err := store.GetByKey(ctx, meta.ObjectPost, 1, "tag")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, stored)
}

func TestPost_UpdateFlushesStagedChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rows := memory.NewRows()

	post := NewPost(store, rows, nil)
	post.CreateMeta("color", "red")
	require.True(t, post.Save(ctx).OK())

	loaded, err := PostByID(post.ID, store, rows, nil).PreloadMetas(ctx)
	require.NoError(t, err)
	loaded.Title = "Renamed"
	loaded.UpdateMeta(ctx, "color", "blue")

	results := loaded.Save(ctx)
	assert.Equal(t, []result.Code{CodePostUpdated, meta.CodeMetaUpdated}, results.Codes())

	row, _ := rows.Get(record.Posts, post.ID)
	assert.Equal(t, "Renamed", row["post_title"])

	color, err := PostByID(post.ID, store, rows, nil).GetMeta(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, "blue", color.Value())
}

func TestPost_SaveWithoutChangesOnlyWritesRow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rows := memory.NewRows()

	post := NewPost(store, rows, nil)
	results := post.Save(ctx)
	assert.Equal(t, []result.Code{CodePostCreated}, results.Codes())

	results = post.Save(ctx)
	assert.Equal(t, []result.Code{CodePostUpdated}, results.Codes())
	assert.Empty(t, store.Calls())
}

func TestPost_FailedInsertKeepsStagedMetas(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rows := memory.NewRows()
	rows.Fail = func(table record.Table, id int64) error { return errors.New("table locked") }

	post := NewPost(store, rows, nil)
	post.CreateMeta("color", "red")

	results := post.Save(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, CodePostCreateFailed, results[0].Code())
	assert.True(t, results.Failed())
	assert.Zero(t, post.ID)
	assert.Equal(t, 1, post.Pending())
	assert.Equal(t, []string{meta.PersistOperation}, post.Deferred())
	assert.Empty(t, store.Calls())

	rows.Fail = nil
	results = post.Save(ctx)
	assert.Equal(t, []result.Code{CodePostCreated, meta.CodeMetaCreated}, results.Codes())
}

func TestPost_FailedUpdate(t *testing.T) {
	ctx := context.Background()

	post := PostByID(99, memory.NewStore(), memory.NewRows(), nil)
	results := post.Update(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, CodePostUpdateFailed, results[0].Code())
	assert.Contains(t, results[0].Message(), "row not found")
}

func TestPost_CreateTwice(t *testing.T) {
	post := PostByID(5, memory.NewStore(), memory.NewRows(), nil)
	results := post.Create(context.Background())
	assert.Equal(t, []result.Code{CodePostCreateFailed}, results.Codes())
}

func TestPost_PartialMetaFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Fail = func(call memory.Call) error {
		if call.Key == "bad" {
			return errors.New("rejected")
		}
		return nil
	}

	post := NewPost(store, memory.NewRows(), nil)
	post.CreateMeta("good", "1")
	post.CreateMeta("bad", "2")

	results := post.Save(ctx)
	assert.True(t, results.Partial())
	assert.Equal(t, []result.Code{CodePostCreated, meta.CodeMetaCreated, meta.CodeAddMetadataFailed}, results.Codes())
	assert.Equal(t, 1, post.Pending())
}

func TestPost_SaveRetriesFailedMetas(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Fail = func(call memory.Call) error {
		if call.Op == memory.OpAdd {
			return errors.New("disk full")
		}
		return nil
	}

	post := NewPost(store, memory.NewRows(), nil)
	post.CreateMeta("bad", "2")

	results := post.Save(ctx)
	assert.Equal(t, []result.Code{CodePostCreated, meta.CodeAddMetadataFailed}, results.Codes())
	assert.Equal(t, 1, post.Pending())
	assert.Equal(t, []string{meta.PersistOperation}, post.Deferred())

	store.Fail = nil
	results = post.Save(ctx)
	require.True(t, results.OK(), results.Err())
	assert.Equal(t, []result.Code{CodePostUpdated, meta.CodeMetaCreated}, results.Codes())
	assert.Zero(t, post.Pending())
	assert.Empty(t, post.Deferred())

	stored, err := store.GetByKey(ctx, meta.ObjectPost, post.ID, "bad")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"2"}, stored)
}

func TestTerm_Save(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rows := memory.NewRows()

	term := NewTerm(store, rows, nil)
	term.Name = "News"
	term.Slug = "news"
	term.CreateMeta("order", 3)

	results := term.Save(ctx)
	assert.Equal(t, []result.Code{CodeTermCreated, meta.CodeMetaCreated}, results.Codes())

	row, ok := rows.Get(record.Terms, term.ID)
	require.True(t, ok)
	assert.Equal(t, term.ID, row["term_id"])
	assert.Equal(t, "news", row["slug"])

	term.Slug = "latest"
	assert.Equal(t, []result.Code{CodeTermUpdated}, term.Save(ctx).Codes())
}

func TestObject_Save(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	obj := ObjectByID(meta.ObjectComment, 12, store, nil)
	obj.CreateMeta("rating", 5)
	results := obj.Save(ctx)
	assert.Equal(t, []result.Code{meta.CodeMetaCreated}, results.Codes())

	values, err := store.GetByKey(ctx, meta.ObjectComment, 12, "rating")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"5"}, values)

	missing := ObjectByID(meta.ObjectComment, 0, store, nil)
	assert.Equal(t, []result.Code{CodeObjectMissingID}, missing.Save(ctx).Codes())
}
