// Package meta implements metadata entities attached to host objects and the
// per-object cache that stages changes to them until the owner is saved.
//
// A Meta moves through a small state machine:
//
//	New     -> Clean    successful store add
//	Clean   -> Dirty    value changed
//	Dirty   -> Clean    successful store update, or value set back
//	any     -> Deleted  delete requested
//	Deleted -> removed  successful store delete
//
// A failed store write leaves the state unchanged so the write can be retried.
package meta

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"

	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// State is the persistence state of a Meta
type State int

const (
	// StateClean means the value matches the store
	StateClean State = iota
	// StateNew means the value has never been written
	StateNew
	// StateDirty means the stored value must be updated
	StateDirty
	// StateDeleted means the stored value must be removed
	StateDeleted
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateNew:
		return "new"
	case StateDirty:
		return "dirty"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Meta is one value stored under a key of one host object
type Meta struct {
	objectType ObjectType
	objectID   int64
	key        string
	value      interface{}
	original   interface{}
	state      State

	// stored is true while a row for original exists in the store
	stored bool
}

// NewMeta creates a meta that has not been written yet.
// A nil value makes a placeholder for a key that holds nothing.
func NewMeta(objectType ObjectType, objectID int64, key string, value interface{}) *Meta {
	return &Meta{
		objectType: objectType,
		objectID:   objectID,
		key:        key,
		value:      value,
		state:      StateNew,
	}
}

// LoadedMeta creates a meta for a value read from the store
func LoadedMeta(objectType ObjectType, objectID int64, key string, value interface{}) *Meta {
	if objectID == 0 {
		return NewMeta(objectType, objectID, key, value)
	}
	return &Meta{
		objectType: objectType,
		objectID:   objectID,
		key:        key,
		value:      value,
		original:   value,
		state:      StateClean,
		stored:     true,
	}
}

func (m *Meta) ObjectType() ObjectType { return m.objectType }
func (m *Meta) ObjectID() int64 { return m.objectID }
func (m *Meta) Key() string { return m.key }
func (m *Meta) Value() interface{} { return m.value }
func (m *Meta) State() State { return m.state }

// Original returns the value as it was last read from or written to the store
func (m *Meta) Original() interface{} { return m.original }

// Empty reports whether the meta holds no value
func (m *Meta) Empty() bool { return m.value == nil }

// HasChanged reports whether the value differs from its snapshot
func (m *Meta) HasChanged() bool {
	return !ValuesEqual(m.value, m.original)
}

// SetValue changes the value and moves the state accordingly
func (m *Meta) SetValue(value interface{}) {
	switch m.state {
	case StateDeleted:
		return
	case StateNew:
		m.value = value
		return
	}

	m.value = value
	if ValuesEqual(value, m.original) {
		m.state = StateClean
	} else {
		m.state = StateDirty
	}
}

// MarkDeleted flags the meta for removal on the next flush
func (m *Meta) MarkDeleted() {
	m.state = StateDeleted
}

func (m *Meta) String() string { return cast.ToString(m.value) }
func (m *Meta) Int() int { return cast.ToInt(m.value) }
func (m *Meta) Int64() int64 { return cast.ToInt64(m.value) }
func (m *Meta) Bool() bool { return cast.ToBool(m.value) }
func (m *Meta) Float() float64 { return cast.ToFloat64(m.value) }
func (m *Meta) Strings() []string { return cast.ToStringSlice(m.value) }

// Unserialize decodes the value into dst through its JSON form
func (m *Meta) Unserialize(dst interface{}) error {
	if m.value == nil {
		return nil
	}
	b, err := json.Marshal(m.value)
	if err != nil {
		return fmt.Errorf("failed to encode meta %q: %w", m.key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("failed to decode meta %q: %w", m.key, err)
	}
	return nil
}

func (m *Meta) checkWritable() (result.Result, bool) {
	if m.key == "" {
		return result.NewError(CodeInvalidMetaKey, ErrInvalidKey.Error(), m), false
	}
	if m.objectID == 0 {
		return result.Errorf(CodeMissingObjectID, m, "%s has no ID yet, cannot write meta %q", m.objectType, m.key), false
	}
	return result.Result{}, true
}

// Create adds the value to the store. It fails with CodeMetaExists if the
// exact value is already stored under the key.
func (m *Meta) Create(ctx context.Context, store Store) result.Result {
	if r, ok := m.checkWritable(); !ok {
		return r
	}

	existing, err := store.GetByKey(ctx, m.objectType, m.objectID, m.key)
	if err != nil {
		return result.Errorf(CodeAddMetadataFailed, m, "failed to look up meta %q on %s %d: %v", m.key, m.objectType, m.objectID, err)
	}
	for _, v := range existing {
		if ValuesEqual(v, m.value) {
			return result.Errorf(CodeMetaExists, m, "meta %q already holds this value on %s %d", m.key, m.objectType, m.objectID)
		}
	}

	if err := store.Add(ctx, m.objectType, m.objectID, m.key, m.value); err != nil {
		return result.Errorf(CodeAddMetadataFailed, m, "failed to add meta %q to %s %d: %v", m.key, m.objectType, m.objectID, err)
	}

	m.original = m.value
	m.state = StateClean
	m.stored = true
	return result.NewSuccess(CodeMetaCreated, fmt.Sprintf("added meta %q to %s %d", m.key, m.objectType, m.objectID), m)
}

// Update rewrites the stored snapshot value with the current one. The
// snapshot scopes the write so sibling values under the same key are left alone.
func (m *Meta) Update(ctx context.Context, store Store) result.Result {
	if r, ok := m.checkWritable(); !ok {
		return r
	}

	existing, err := store.GetByKey(ctx, m.objectType, m.objectID, m.key)
	if err != nil {
		return result.Errorf(CodeUpdateMetadataFailed, m, "failed to look up meta %q on %s %d: %v", m.key, m.objectType, m.objectID, err)
	}
	if len(existing) == 0 {
		return result.Errorf(CodeMetaUpdateFailed, m, "meta %q does not exist on %s %d, create it instead", m.key, m.objectType, m.objectID)
	}

	if err := store.Update(ctx, m.objectType, m.objectID, m.key, m.value, m.original); err != nil {
		return result.Errorf(CodeUpdateMetadataFailed, m, "failed to update meta %q on %s %d: %v", m.key, m.objectType, m.objectID, err)
	}

	m.original = m.value
	m.state = StateClean
	m.stored = true
	return result.NewSuccess(CodeMetaUpdated, fmt.Sprintf("updated meta %q on %s %d", m.key, m.objectType, m.objectID), m)
}

// Delete removes stored values of the key. A nil value removes every value
// under the key; otherwise only rows holding exactly that value go.
func (m *Meta) Delete(ctx context.Context, store Store, value interface{}) result.Result {
	if r, ok := m.checkWritable(); !ok {
		return r
	}

	existing, err := store.GetByKey(ctx, m.objectType, m.objectID, m.key)
	if err != nil {
		return result.Errorf(CodeDeleteMetadataFailed, m, "failed to look up meta %q on %s %d: %v", m.key, m.objectType, m.objectID, err)
	}
	if !containsValue(existing, value) {
		return result.Errorf(CodeMetaDeleteFailed, m, "no matching meta %q on %s %d to delete", m.key, m.objectType, m.objectID)
	}

	if err := store.Delete(ctx, m.objectType, m.objectID, m.key, value); err != nil {
		return result.Errorf(CodeDeleteMetadataFailed, m, "failed to delete meta %q from %s %d: %v", m.key, m.objectType, m.objectID, err)
	}

	m.state = StateDeleted
	m.stored = false
	return result.NewSuccess(CodeMetaDeleted, fmt.Sprintf("deleted meta %q from %s %d", m.key, m.objectType, m.objectID), m)
}

// containsValue reports whether values holds value; nil matches any non-empty list
func containsValue(values []interface{}, value interface{}) bool {
	if value == nil {
		return len(values) > 0
	}
	for _, v := range values {
		if ValuesEqual(v, value) {
			return true
		}
	}
	return false
}
