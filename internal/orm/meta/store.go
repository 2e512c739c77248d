package meta

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store when a write matched no rows
	ErrNotFound = errors.New("metadata not found")

	// ErrInvalidKey is returned for an empty meta key
	ErrInvalidKey = errors.New("meta key must not be empty")

	// ErrUnknownObjectType is returned for an object type the store has no table for
	ErrUnknownObjectType = errors.New("unknown object type")
)

// ObjectType discriminates which kind of host object a meta belongs to
type ObjectType string

const (
	ObjectPost    ObjectType = "post"
	ObjectTerm    ObjectType = "term"
	ObjectUser    ObjectType = "user"
	ObjectComment ObjectType = "comment"
)

// Valid reports whether the object type is one the host platform stores meta for
func (t ObjectType) Valid() bool {
	switch t {
	case ObjectPost, ObjectTerm, ObjectUser, ObjectComment:
		return true
	default:
		return false
	}
}

// ParseObjectType converts a string to an ObjectType
func ParseObjectType(s string) (ObjectType, error) {
	t := ObjectType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownObjectType, s)
	}
	return t, nil
}

// Row is one stored (key, value) pair of an object
type Row struct {
	Key   string
	Value interface{}
}

// Rows is every stored pair of an object, in storage order
type Rows []Row

// Keys returns the distinct keys in order of first appearance
func (rs Rows) Keys() []string {
	seen := make(map[string]bool, len(rs))
	var keys []string
	for _, r := range rs {
		if !seen[r.Key] {
			seen[r.Key] = true
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Grouped returns the values of every key, in storage order
func (rs Rows) Grouped() map[string][]interface{} {
	out := make(map[string][]interface{})
	for _, r := range rs {
		out[r.Key] = append(out[r.Key], r.Value)
	}
	return out
}

// Store is the key/value metadata table of the host platform.
// Writes return nil on success. A nil value filter on Update or Delete
// matches every value stored under the key.
type Store interface {
	Add(ctx context.Context, objectType ObjectType, objectID int64, key string, value interface{}) error
	Update(ctx context.Context, objectType ObjectType, objectID int64, key string, value, prevValue interface{}) error
	Delete(ctx context.Context, objectType ObjectType, objectID int64, key string, value interface{}) error
	GetAll(ctx context.Context, objectType ObjectType, objectID int64) (Rows, error)
	GetByKey(ctx context.Context, objectType ObjectType, objectID int64, key string) ([]interface{}, error)
}
