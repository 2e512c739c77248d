// Package memory provides in-process implementations of the metadata store
// and the row store. Values are kept in their serialized text form so reads
// behave exactly like the SQL store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
)

// Op names a store write
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call records one write issued against the store, failed or not
type Call struct {
	Op         Op
	ObjectType meta.ObjectType
	ObjectID   int64
	Key        string
	Value      interface{}
	PrevValue  interface{}
}

type row struct {
	id    int64
	key   string
	value string
}

type object struct {
	objectType meta.ObjectType
	objectID   int64
	rows       []row
}

// ObjectRef identifies an object holding meta
type ObjectRef struct {
	Type meta.ObjectType
	ID   int64
}

// Store is an in-memory meta.Store.
// Objects are indexed in a B-tree so listings come back ordered by type and ID.
type Store struct {
	mu      sync.RWMutex
	objects *btree.Map[string, *object]
	nextID  int64
	calls   []Call

	// Fail, when set, is consulted before every write; a non-nil error
	// aborts the write and is returned to the caller
	Fail func(call Call) error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		objects: btree.NewMap[string, *object](0),
	}
}

func objectKey(objectType meta.ObjectType, objectID int64) string {
	return fmt.Sprintf("%s/%020d", objectType, objectID)
}

// Add implements meta.Store
func (s *Store) Add(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(Call{Op: OpAdd, ObjectType: objectType, ObjectID: objectID, Key: key, Value: value}); err != nil {
		return err
	}
	if key == "" {
		return meta.ErrInvalidKey
	}

	text, err := meta.MaybeSerialize(value)
	if err != nil {
		return fmt.Errorf("failed to serialize meta %q: %w", key, err)
	}

	s.nextID++
	obj := s.object(objectType, objectID, true)
	obj.rows = append(obj.rows, row{id: s.nextID, key: key, value: text})
	return nil
}

// Update implements meta.Store
func (s *Store) Update(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value, prevValue interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(Call{Op: OpUpdate, ObjectType: objectType, ObjectID: objectID, Key: key, Value: value, PrevValue: prevValue}); err != nil {
		return err
	}

	text, err := meta.MaybeSerialize(value)
	if err != nil {
		return fmt.Errorf("failed to serialize meta %q: %w", key, err)
	}

	obj := s.object(objectType, objectID, false)
	if obj == nil {
		return meta.ErrNotFound
	}

	updated := 0
	for i, r := range obj.rows {
		if r.key != key || !matches(r, prevValue) {
			continue
		}
		obj.rows[i].value = text
		updated++
	}
	if updated == 0 {
		return meta.ErrNotFound
	}
	return nil
}

// Delete implements meta.Store
func (s *Store) Delete(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(Call{Op: OpDelete, ObjectType: objectType, ObjectID: objectID, Key: key, Value: value}); err != nil {
		return err
	}

	obj := s.object(objectType, objectID, false)
	if obj == nil {
		return meta.ErrNotFound
	}

	kept := obj.rows[:0]
	deleted := 0
	for _, r := range obj.rows {
		if r.key == key && matches(r, value) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	obj.rows = kept
	if len(kept) == 0 {
		s.objects.Delete(objectKey(objectType, objectID))
	}
	if deleted == 0 {
		return meta.ErrNotFound
	}
	return nil
}

// GetAll implements meta.Store
func (s *Store) GetAll(ctx context.Context, objectType meta.ObjectType, objectID int64) (meta.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := s.object(objectType, objectID, false)
	if obj == nil {
		return nil, nil
	}
	rows := make(meta.Rows, 0, len(obj.rows))
	for _, r := range obj.rows {
		rows = append(rows, meta.Row{Key: r.key, Value: meta.MaybeUnserialize(r.value)})
	}
	return rows, nil
}

// GetByKey implements meta.Store
func (s *Store) GetByKey(ctx context.Context, objectType meta.ObjectType, objectID int64, key string) ([]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := s.object(objectType, objectID, false)
	if obj == nil {
		return nil, nil
	}
	var values []interface{}
	for _, r := range obj.rows {
		if r.key == key {
			values = append(values, meta.MaybeUnserialize(r.value))
		}
	}
	return values, nil
}

// Objects returns the type and ID of every object holding meta, ordered
func (s *Store) Objects() []ObjectRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ObjectRef
	s.objects.Scan(func(_ string, obj *object) bool {
		out = append(out, ObjectRef{Type: obj.objectType, ID: obj.objectID})
		return true
	})
	return out
}

// Calls returns every write issued so far
func (s *Store) Calls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the write log
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Store) record(call Call) error {
	s.calls = append(s.calls, call)
	if s.Fail != nil {
		return s.Fail(call)
	}
	return nil
}

func (s *Store) object(objectType meta.ObjectType, objectID int64, create bool) *object {
	k := objectKey(objectType, objectID)
	obj, ok := s.objects.Get(k)
	if !ok && create {
		obj = &object{objectType: objectType, objectID: objectID}
		s.objects.Set(k, obj)
	}
	return obj
}

// matches reports whether a row holds value; nil matches every row
func matches(r row, value interface{}) bool {
	if value == nil {
		return true
	}
	return meta.ValuesEqual(meta.MaybeUnserialize(r.value), value)
}
