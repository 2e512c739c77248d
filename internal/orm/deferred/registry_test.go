package deferred

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wp-orm/wpmeta/internal/orm/result"
)

func recordingOp(calls *[]string, name string, rs ...result.Result) Operation {
	return func(ctx context.Context, objectID int64) result.Results {
		*calls = append(*calls, name)
		return rs
	}
}

func TestRegistry_RegisterDeferred_SetSemantics(t *testing.T) {
	r := NewRegistry(nil)

	r.RegisterDeferred("persistMetas")
	r.RegisterDeferred("persistRole")
	r.RegisterDeferred("persistMetas")

	assert.Equal(t, []string{"persistMetas", "persistRole"}, r.Pending())
}

func TestRegistry_PersistDeferred_RunsInRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string

	r.Handle("persistMetas", recordingOp(&calls, "persistMetas",
		result.NewSuccess("meta_created", "", nil),
		result.NewError("add_metadata_failed", "", nil),
	))
	r.Handle("persistRole", recordingOp(&calls, "persistRole",
		result.NewSuccess("role_assigned", "", nil),
	))

	r.RegisterDeferred("persistRole")
	r.RegisterDeferred("persistMetas")
	r.RegisterDeferred("persistRole")

	results := r.PersistDeferred(context.Background(), 42)

	assert.Equal(t, []string{"persistRole", "persistMetas"}, calls)
	assert.Equal(t, []result.Code{"role_assigned", "meta_created", "add_metadata_failed"}, results.Codes())
	assert.True(t, results.Partial())
	assert.Empty(t, r.Pending())
}

func TestRegistry_PersistDeferred_PassesObjectID(t *testing.T) {
	r := NewRegistry(nil)
	var got int64
	r.Handle("op", func(ctx context.Context, objectID int64) result.Results {
		got = objectID
		return nil
	})
	r.RegisterDeferred("op")

	r.PersistDeferred(context.Background(), 7)
	assert.Equal(t, int64(7), got)
}

func TestRegistry_PersistDeferred_ClearsQueue(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string
	r.Handle("op", recordingOp(&calls, "op"))
	r.RegisterDeferred("op")

	r.PersistDeferred(context.Background(), 1)
	r.PersistDeferred(context.Background(), 1)

	assert.Equal(t, []string{"op"}, calls)
}

func TestRegistry_PersistDeferred_UnknownOperation(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string
	r.Handle("known", recordingOp(&calls, "known", result.NewSuccess("ok", "", nil)))

	r.RegisterDeferred("missing")
	r.RegisterDeferred("known")

	results := r.PersistDeferred(context.Background(), 1)
	require.Len(t, results, 2)
	assert.Equal(t, CodeUnknownOperation, results[0].Code())
	assert.True(t, results[1].IsSuccess())
	assert.Equal(t, []string{"known"}, calls)
}

func TestRegistry_PersistDeferred_ReRegistrationSurvives(t *testing.T) {
	r := NewRegistry(nil)
	attempts := 0
	r.Handle("retry", func(ctx context.Context, objectID int64) result.Results {
		attempts++
		if attempts == 1 {
			r.RegisterDeferred("retry")
			return result.Results{result.NewError("add_metadata_failed", "", nil)}
		}
		return result.Results{result.NewSuccess("meta_created", "", nil)}
	})
	r.RegisterDeferred("retry")

	first := r.PersistDeferred(context.Background(), 1)
	assert.True(t, first.Failed())
	assert.Equal(t, []string{"retry"}, r.Pending())

	second := r.PersistDeferred(context.Background(), 1)
	assert.True(t, second.OK())
	assert.Equal(t, 2, attempts)
}

func TestRegistry_PersistDeferred_Empty(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRegistry(zap.New(core))

	assert.Nil(t, r.PersistDeferred(context.Background(), 1))
	assert.Zero(t, logs.Len())
}

func TestRegistry_PersistDeferred_LogsFlush(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRegistry(zap.New(core))
	r.Handle("op", func(ctx context.Context, objectID int64) result.Results {
		return result.Results{result.NewError("boom", "", nil)}
	})
	r.RegisterDeferred("op")

	r.PersistDeferred(context.Background(), 9)

	entries := logs.FilterMessage("deferred operations persisted").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(9), fields["object_id"])
	assert.Equal(t, int64(1), fields["errors"])
	assert.NotEmpty(t, fields["flush_id"])
}
