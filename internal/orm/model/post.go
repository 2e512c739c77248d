package model

import (
	"context"

	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/record"
	"github.com/wp-orm/wpmeta/internal/orm/result"
)

const (
	// Post codes
	CodePostCreated      result.Code = "post_created"
	CodePostCreateFailed result.Code = "post_create_failed"
	CodePostUpdated      result.Code = "post_updated"
	CodePostUpdateFailed result.Code = "post_update_failed"
)

// Post is a row of the posts table with its metadata
type Post struct {
	entity

	ID        int64
	Author    int64
	Title     string
	Content   string
	Excerpt   string
	Status    string
	Type      string
	Name      string
	Parent    int64
	MenuOrder int
}

// NewPost creates an unsaved post. Metas staged on it are written once
// the post is created and has an ID.
func NewPost(store meta.Store, rows record.Rows, logger *zap.Logger) *Post {
	return PostByID(0, store, rows, logger)
}

// PostByID references an existing post. Its metas are read lazily.
func PostByID(id int64, store meta.Store, rows record.Rows, logger *zap.Logger) *Post {
	return &Post{
		entity: newEntity(meta.ObjectPost, id, store, rows, logger),
		ID:     id,
		Status: "draft",
		Type:   "post",
	}
}

// PreloadMetas reads every meta of the post at once
func (p *Post) PreloadMetas(ctx context.Context) (*Post, error) {
	if err := p.Preload(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Save creates the post when it has no ID and updates it otherwise
func (p *Post) Save(ctx context.Context) result.Results {
	if p.ID == 0 {
		return p.Create(ctx)
	}
	return p.Update(ctx)
}

// Create inserts the post and then persists deferred operations with its new ID
func (p *Post) Create(ctx context.Context) result.Results {
	if p.ID != 0 {
		return result.Results{result.Errorf(CodePostCreateFailed, p.ID, "post %d already exists", p.ID)}
	}
	return p.insert(ctx, "post", record.Posts, p.columns(), func(id int64) { p.ID = id })
}

// Update writes the post row and then persists deferred operations
func (p *Post) Update(ctx context.Context) result.Results {
	return p.update(ctx, "post", record.Posts, p.ID, p.columns())
}

func (p *Post) columns() []record.Column {
	return []record.Column{
		{Name: "post_author", Value: p.Author},
		{Name: "post_title", Value: p.Title},
		{Name: "post_content", Value: p.Content},
		{Name: "post_excerpt", Value: p.Excerpt},
		{Name: "post_status", Value: p.Status},
		{Name: "post_type", Value: p.Type},
		{Name: "post_name", Value: p.Name},
		{Name: "post_parent", Value: p.Parent},
		{Name: "menu_order", Value: p.MenuOrder},
	}
}
