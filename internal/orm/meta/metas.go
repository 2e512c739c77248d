package meta

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// PersistOperation is the deferred operation name the cache registers on its owner
const PersistOperation = "persistMetas"

// Deferrer receives the names of operations to run when the owner is saved
type Deferrer interface {
	RegisterDeferred(name string)
}

// Metas is the metadata cache of one host object. It loads lazily, stages
// every write in memory and writes them all when PersistMetas runs.
// A Metas belongs to a single request and is not safe for concurrent use.
type Metas struct {
	objectType ObjectType
	objectID   int64
	store      Store
	owner      Deferrer
	logger     *zap.Logger

	// loaded is set once every key of the object is in the cache
	loaded bool
	// fetched marks keys read individually or by preload
	fetched map[string]bool
	// stale marks keys dropped by Forget that must be read again
	stale map[string]bool

	byKey map[string][]*Meta
	keys  []string
	order []*Meta
}

// NewMetas creates an empty cache for an object. objectID is 0 when the
// object has not been saved yet. owner and logger may be nil.
func NewMetas(objectType ObjectType, objectID int64, store Store, owner Deferrer, logger *zap.Logger) *Metas {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metas{
		objectType: objectType,
		objectID:   objectID,
		store:      store,
		owner:      owner,
		logger:     logger,
		fetched:    make(map[string]bool),
		stale:      make(map[string]bool),
		byKey:      make(map[string][]*Meta),
	}
}

// ObjectType returns the type of the owning object
func (m *Metas) ObjectType() ObjectType { return m.objectType }

// ObjectID returns the ID of the owning object, 0 until it is saved
func (m *Metas) ObjectID() int64 { return m.objectID }

// Loaded reports whether every stored key is in the cache
func (m *Metas) Loaded() bool { return m.loaded }

// Keys returns the keys that currently hold at least one value, in insertion order
func (m *Metas) Keys() []string {
	var keys []string
	for _, k := range m.keys {
		if len(m.live(k)) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// Pending returns the number of entries waiting to be written
func (m *Metas) Pending() int {
	n := 0
	for _, e := range m.order {
		if e.state != StateClean {
			n++
		}
	}
	return n
}

// Preload reads every meta of the object with a single store query.
// It does nothing once the cache is loaded.
func (m *Metas) Preload(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	if m.objectID == 0 {
		m.loaded = true
		return nil
	}

	rows, err := m.store.GetAll(ctx, m.objectType, m.objectID)
	if err != nil {
		return fmt.Errorf("failed to preload metas of %s %d: %w", m.objectType, m.objectID, err)
	}

	grouped := rows.Grouped()
	for _, key := range rows.Keys() {
		if m.fetched[key] {
			continue
		}
		m.merge(key, grouped[key])
	}
	m.loaded = true
	m.stale = make(map[string]bool)

	m.logger.Debug("metas preloaded",
		zap.String("object_type", string(m.objectType)),
		zap.Int64("object_id", m.objectID),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// GetMeta returns the first value of a key. A key with no value yields a
// detached placeholder holding nil, so the result is never nil on success.
func (m *Metas) GetMeta(ctx context.Context, key string) (*Meta, error) {
	entries, err := m.GetMetas(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return NewMeta(m.objectType, m.objectID, key, nil), nil
	}
	return entries[0], nil
}

// GetMetas returns every value of a key in insertion order. A key not in
// the cache is read from the store on its own.
func (m *Metas) GetMetas(ctx context.Context, key string) ([]*Meta, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if err := m.ensureKey(ctx, key); err != nil {
		return nil, err
	}
	return m.live(key), nil
}

// CreateMeta stages a new value under key, next to any values already there
func (m *Metas) CreateMeta(key string, value interface{}) result.Result {
	if r, ok := validateWrite(key, value); !ok {
		return r
	}

	entry := NewMeta(m.objectType, m.objectID, key, value)
	m.add(entry)
	m.register()
	return result.NewSuccess(CodeMetaCreateStaged, fmt.Sprintf("meta %q staged for creation", key), entry)
}

// UpdateMeta stages a new value for a key holding at most one value. A key
// with no value is created; a key with several values is ambiguous and fails.
func (m *Metas) UpdateMeta(ctx context.Context, key string, value interface{}) result.Result {
	if r, ok := validateWrite(key, value); !ok {
		return r
	}
	if err := m.ensureKey(ctx, key); err != nil {
		return result.Errorf(CodeUpdateMetadataFailed, nil, "failed to load meta %q: %v", key, err)
	}

	live := m.live(key)
	switch len(live) {
	case 0:
		return m.CreateMeta(key, value)
	case 1:
		entry := live[0]
		if ValuesEqual(entry.value, value) {
			return result.NewSuccess(CodeMetaUnchanged, fmt.Sprintf("meta %q already holds this value", key), entry)
		}
		entry.SetValue(value)
		if entry.state != StateClean {
			m.register()
		}
		return result.NewSuccess(CodeMetaUpdateStaged, fmt.Sprintf("meta %q staged for update", key), entry)
	default:
		return result.Errorf(CodeMetaUpdateFailed, live, "meta %q holds %d values, replace it or delete a value instead", key, len(live))
	}
}

// ReplaceMeta stages the removal of every value of key and the creation of value
func (m *Metas) ReplaceMeta(ctx context.Context, key string, value interface{}) result.Result {
	if r, ok := validateWrite(key, value); !ok {
		return r
	}
	if err := m.ensureKey(ctx, key); err != nil {
		return result.Errorf(CodeUpdateMetadataFailed, nil, "failed to load meta %q: %v", key, err)
	}

	for _, e := range m.live(key) {
		m.discard(e)
	}

	entry := NewMeta(m.objectType, m.objectID, key, value)
	m.add(entry)
	m.register()
	return result.NewSuccess(CodeMetaReplaceStaged, fmt.Sprintf("meta %q staged for replacement", key), entry)
}

// DeleteMeta stages the removal of the values of key matching value, or of
// every value when value is nil. Entries stay in the cache until the flush.
func (m *Metas) DeleteMeta(ctx context.Context, key string, value interface{}) result.Result {
	if key == "" {
		return result.NewError(CodeInvalidMetaKey, ErrInvalidKey.Error(), nil)
	}
	if err := m.ensureKey(ctx, key); err != nil {
		return result.Errorf(CodeDeleteMetadataFailed, nil, "failed to load meta %q: %v", key, err)
	}

	var matched []*Meta
	for _, e := range m.live(key) {
		if value == nil || ValuesEqual(e.value, value) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return result.Errorf(CodeMetaDeleteFailed, nil, "no matching meta %q to delete", key)
	}

	for _, e := range matched {
		m.discard(e)
	}
	m.register()
	return result.NewSuccess(CodeMetaDeleteStaged, fmt.Sprintf("%d value(s) of meta %q staged for deletion", len(matched), key), matched)
}

// Forget drops a key from the cache, staged changes included, so the next
// read goes back to the store
func (m *Metas) Forget(key string) {
	for _, e := range m.byKey[key] {
		m.order = without(m.order, e)
	}
	delete(m.byKey, key)
	m.dropKey(key)
	delete(m.fetched, key)
	m.stale[key] = true
}

// Bind gives an unsaved object its ID. The cache of an object that had no
// ID holds every meta it can have, so it counts as loaded from then on.
func (m *Metas) Bind(objectID int64) {
	if m.objectID != 0 || objectID == 0 {
		return
	}
	m.objectID = objectID
	m.loaded = true
}

// PersistMetas writes every staged entry in insertion order and returns one
// result per store operation attempted. A failure never stops the batch;
// failed entries keep their state and the cache registers itself again on
// its owner, so the owner's next save retries them.
func (m *Metas) PersistMetas(ctx context.Context, objectID int64) result.Results {
	if m.objectID != 0 && objectID != 0 && objectID != m.objectID {
		m.logger.Warn("metas persisted to another object",
			zap.String("object_type", string(m.objectType)),
			zap.Int64("object_id", m.objectID),
			zap.Int64("requested_id", objectID),
		)
		if m.Pending() > 0 {
			m.register()
		}
		return result.Results{result.Errorf(CodeObjectIDMismatch, objectID,
			"metas of %s %d cannot be persisted to %s %d", m.objectType, m.objectID, m.objectType, objectID)}
	}
	m.Bind(objectID)

	pending := make([]*Meta, len(m.order))
	copy(pending, m.order)

	var results result.Results
	for _, e := range pending {
		if e.objectID == 0 {
			e.objectID = m.objectID
		}

		var r result.Result
		switch e.state {
		case StateClean:
			continue
		case StateNew:
			r = e.Create(ctx, m.store)
		case StateDirty:
			r = e.Update(ctx, m.store)
		case StateDeleted:
			if !e.stored {
				m.unlink(e)
				continue
			}
			r = e.Delete(ctx, m.store, e.original)
			// a row already gone elsewhere settles the entry as well
			if r.IsSuccess() || r.Code() == CodeMetaDeleteFailed {
				m.unlink(e)
				m.settle(e)
			}
		}

		results = append(results, r)
		m.logger.Debug("meta persisted",
			zap.String("object_type", string(m.objectType)),
			zap.Int64("object_id", m.objectID),
			zap.String("key", e.key),
			zap.String("status", r.Status().String()),
			zap.String("code", string(r.Code())),
		)
	}

	if m.Pending() > 0 {
		m.register()
	}
	return results
}

func validateWrite(key string, value interface{}) (result.Result, bool) {
	if key == "" {
		return result.NewError(CodeInvalidMetaKey, ErrInvalidKey.Error(), nil), false
	}
	if value == nil {
		return result.Errorf(CodeInvalidMetaValue, nil, "meta %q cannot be set to nil, delete it instead", key), false
	}
	return result.Result{}, true
}

func (m *Metas) register() {
	if m.owner != nil {
		m.owner.RegisterDeferred(PersistOperation)
	}
}

// ensureKey reads a single key from the store unless the cache already knows it
func (m *Metas) ensureKey(ctx context.Context, key string) error {
	if m.objectID == 0 || m.fetched[key] {
		return nil
	}
	if m.loaded && !m.stale[key] {
		return nil
	}

	values, err := m.store.GetByKey(ctx, m.objectType, m.objectID, key)
	if err != nil {
		return fmt.Errorf("failed to read meta %q of %s %d: %w", key, m.objectType, m.objectID, err)
	}
	m.merge(key, values)
	return nil
}

// merge puts stored values of a key ahead of anything staged for it
func (m *Metas) merge(key string, values []interface{}) {
	loaded := make([]*Meta, 0, len(values))
	for _, v := range values {
		loaded = append(loaded, LoadedMeta(m.objectType, m.objectID, key, v))
	}
	if len(loaded) > 0 {
		if len(m.byKey[key]) == 0 {
			m.keys = append(m.keys, key)
		}
		m.byKey[key] = append(loaded, m.byKey[key]...)
		m.order = append(m.order, loaded...)
	}
	m.fetched[key] = true
	delete(m.stale, key)
}

func (m *Metas) add(e *Meta) {
	if len(m.byKey[e.key]) == 0 {
		m.keys = append(m.keys, e.key)
	}
	m.byKey[e.key] = append(m.byKey[e.key], e)
	m.order = append(m.order, e)
}

// discard drops entries that never reached the store and marks the rest deleted
func (m *Metas) discard(e *Meta) {
	if !e.stored {
		m.unlink(e)
		return
	}
	e.MarkDeleted()
}

// settle releases deleted siblings whose rows went with e, since a store
// delete by value removes every row holding that value
func (m *Metas) settle(e *Meta) {
	for _, s := range m.byKey[e.key] {
		if s.state == StateDeleted && s.stored && ValuesEqual(s.original, e.original) {
			s.stored = false
		}
	}
}

func (m *Metas) live(key string) []*Meta {
	var out []*Meta
	for _, e := range m.byKey[key] {
		if e.state != StateDeleted {
			out = append(out, e)
		}
	}
	return out
}

func (m *Metas) unlink(e *Meta) {
	m.order = without(m.order, e)
	entries := without(m.byKey[e.key], e)
	if len(entries) == 0 {
		delete(m.byKey, e.key)
		m.dropKey(e.key)
		return
	}
	m.byKey[e.key] = entries
}

func (m *Metas) dropKey(key string) {
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			return
		}
	}
}

func without(entries []*Meta, e *Meta) []*Meta {
	out := entries[:0]
	for _, x := range entries {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}
