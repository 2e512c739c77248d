package model

import (
	"context"

	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/record"
	"github.com/wp-orm/wpmeta/internal/orm/result"
)

const (
	CodeTermCreated      result.Code = "term_created"
	CodeTermCreateFailed result.Code = "term_create_failed"
	CodeTermUpdated      result.Code = "term_updated"
	CodeTermUpdateFailed result.Code = "term_update_failed"
)

// Term is a row of the terms table with its metadata
type Term struct {
	entity

	ID    int64
	Name  string
	Slug  string
	Group int64
}

func NewTerm(store meta.Store, rows record.Rows, logger *zap.Logger) *Term {
	return TermByID(0, store, rows, logger)
}

func TermByID(id int64, store meta.Store, rows record.Rows, logger *zap.Logger) *Term {
	return &Term{
		entity: newEntity(meta.ObjectTerm, id, store, rows, logger),
		ID:     id,
	}
}

func (t *Term) PreloadMetas(ctx context.Context) (*Term, error) {
	if err := t.Preload(ctx); err != nil {
		return t, err
	}
	return t, nil
}

func (t *Term) Save(ctx context.Context) result.Results {
	if t.ID == 0 {
		return t.Create(ctx)
	}
	return t.Update(ctx)
}

func (t *Term) Create(ctx context.Context) result.Results {
	if t.ID != 0 {
		return result.Results{result.Errorf(CodeTermCreateFailed, t.ID, "term %d already exists", t.ID)}
	}
	return t.insert(ctx, "term", record.Terms, t.columns(), func(id int64) { t.ID = id })
}

func (t *Term) Update(ctx context.Context) result.Results {
	return t.update(ctx, "term", record.Terms, t.ID, t.columns())
}

func (t *Term) columns() []record.Column {
	return []record.Column{
		{Name: "name", Value: t.Name},
		{Name: "slug", Value: t.Slug},
		{Name: "term_group", Value: t.Group},
	}
}
