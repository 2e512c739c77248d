// Package model provides the host entities that own metadata: posts, users
// and terms. Each entity carries a meta cache and a deferred registry; saving
// the entity writes its row first and then runs whatever was deferred.
package model

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/deferred"
	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/record"
	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// HasMeta is implemented by entities exposing a meta cache
type HasMeta interface {
	GetMeta(ctx context.Context, key string) (*meta.Meta, error)
	GetMetas(ctx context.Context, key string) ([]*meta.Meta, error)
	CreateMeta(key string, value interface{}) result.Result
	UpdateMeta(ctx context.Context, key string, value interface{}) result.Result
	ReplaceMeta(ctx context.Context, key string, value interface{}) result.Result
	DeleteMeta(ctx context.Context, key string, value interface{}) result.Result
	PersistMetas(ctx context.Context, objectID int64) result.Results
}

// HasDeferredPersistence is implemented by entities postponing work until saved
type HasDeferredPersistence interface {
	RegisterDeferred(name string)
	PersistDeferred(ctx context.Context, objectID int64) result.Results
}

// entity is the part every owning entity shares
type entity struct {
	*meta.Metas
	deferred  *deferred.Registry
	metaStore meta.Store
	rows      record.Rows
	logger    *zap.Logger
}

func newEntity(objectType meta.ObjectType, id int64, store meta.Store, rows record.Rows, logger *zap.Logger) entity {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deferred.NewRegistry(logger)
	metas := meta.NewMetas(objectType, id, store, registry, logger)
	registry.Handle(meta.PersistOperation, metas.PersistMetas)

	return entity{
		Metas:     metas,
		deferred:  registry,
		metaStore: store,
		rows:      rows,
		logger:    logger,
	}
}

// RegisterDeferred queues a named operation for the next save
func (e *entity) RegisterDeferred(name string) {
	e.deferred.RegisterDeferred(name)
}

// PersistDeferred runs the queued operations against objectID
func (e *entity) PersistDeferred(ctx context.Context, objectID int64) result.Results {
	return e.deferred.PersistDeferred(ctx, objectID)
}

// Deferred returns the names queued for the next save
func (e *entity) Deferred() []string {
	return e.deferred.Pending()
}

// insert writes a new row, then flushes deferred work with the new ID
func (e *entity) insert(ctx context.Context, kind string, table record.Table, columns []record.Column, setID func(int64)) result.Results {
	id, err := e.rows.Insert(ctx, table, columns)
	if err != nil {
		e.logger.Warn("entity create failed", zap.String("kind", kind), zap.Error(err))
		return result.Results{result.Errorf(code(kind, "create_failed"), nil, "failed to create %s: %v", kind, err)}
	}
	setID(id)
	e.Bind(id)

	results := result.Results{result.NewSuccess(code(kind, "created"), fmt.Sprintf("%s %d created", kind, id), id)}
	return append(results, e.PersistDeferred(ctx, id)...)
}

// update rewrites an existing row, then flushes deferred work
func (e *entity) update(ctx context.Context, kind string, table record.Table, id int64, columns []record.Column) result.Results {
	if id == 0 {
		return result.Results{result.Errorf(code(kind, "update_failed"), nil, "%s has no ID, create it first", kind)}
	}
	if err := e.rows.Update(ctx, table, id, columns); err != nil {
		e.logger.Warn("entity update failed", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		return result.Results{result.Errorf(code(kind, "update_failed"), id, "failed to update %s %d: %v", kind, id, err)}
	}

	results := result.Results{result.NewSuccess(code(kind, "updated"), fmt.Sprintf("%s %d updated", kind, id), id)}
	return append(results, e.PersistDeferred(ctx, id)...)
}

func code(kind, suffix string) result.Code {
	return result.Code(kind + "_" + suffix)
}
