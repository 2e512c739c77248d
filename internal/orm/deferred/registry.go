// Package deferred coordinates work an entity postpones until it is saved.
// Operations are bound to names once, registered by name whenever they
// become necessary, and run in first-registration order by PersistDeferred.
package deferred

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// CodeUnknownOperation is returned when a registered name has no bound operation
const CodeUnknownOperation result.Code = "deferred_operation_unknown"

// Operation runs postponed work for the object once its ID is known
type Operation func(ctx context.Context, objectID int64) result.Results

// Registry holds the bound operations of one entity and the names pending
// for its next save. It is not safe for concurrent use.
type Registry struct {
	ops     map[string]Operation
	pending []string
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ops:    make(map[string]Operation),
		logger: logger,
	}
}

// Handle binds an operation to a name, replacing any earlier binding
func (r *Registry) Handle(name string, op Operation) {
	r.ops[name] = op
}

// RegisterDeferred queues a name for the next save. A name already queued
// keeps its position and runs once.
func (r *Registry) RegisterDeferred(name string) {
	for _, p := range r.pending {
		if p == name {
			return
		}
	}
	r.pending = append(r.pending, name)
}

// Pending returns the queued names in run order
func (r *Registry) Pending() []string {
	out := make([]string, len(r.pending))
	copy(out, r.pending)
	return out
}

// PersistDeferred runs every queued operation in order and returns all of
// their results. The queue is emptied before the first operation runs, so an
// operation that registers itself again is kept for the following save.
func (r *Registry) PersistDeferred(ctx context.Context, objectID int64) result.Results {
	names := r.pending
	r.pending = nil
	if len(names) == 0 {
		return nil
	}

	flushID := uuid.New().String()
	start := time.Now()

	var results result.Results
	for _, name := range names {
		op, ok := r.ops[name]
		if !ok {
			results = append(results, result.NewError(CodeUnknownOperation, fmt.Sprintf("no deferred operation named %q", name), name))
			continue
		}
		results = append(results, op(ctx, objectID)...)
	}

	r.logger.Info("deferred operations persisted",
		zap.String("flush_id", flushID),
		zap.Int64("object_id", objectID),
		zap.Strings("operations", names),
		zap.Int("results", len(results)),
		zap.Int("errors", len(results.Errors())),
		zap.Duration("duration", time.Since(start)),
	)
	return results
}
