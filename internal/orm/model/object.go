package model

import (
	"context"

	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/result"
)

const CodeObjectMissingID result.Code = "object_missing_id"

// Object references a stored host object of any type by ID, for callers
// that only work with its metadata
type Object struct {
	entity

	Type meta.ObjectType
	ID   int64
}

// ObjectByID references an existing object
func ObjectByID(objectType meta.ObjectType, id int64, store meta.Store, logger *zap.Logger) *Object {
	return &Object{
		entity: newEntity(objectType, id, store, nil, logger),
		Type:   objectType,
		ID:     id,
	}
}

// Save persists the deferred operations of the object. The object row
// itself is never written.
func (o *Object) Save(ctx context.Context) result.Results {
	if o.ID == 0 {
		return result.Results{result.Errorf(CodeObjectMissingID, nil, "%s has no ID", o.Type)}
	}
	return o.PersistDeferred(ctx, o.ID)
}
