package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/wp-orm/wpmeta/internal/orm/record"
)

// ErrRowNotFound is returned when updating a row that does not exist
var ErrRowNotFound = errors.New("row not found")

// Rows is an in-memory record.Rows with one auto-increment sequence per table
type Rows struct {
	mu     sync.RWMutex
	tables map[string]*btree.Map[int64, map[string]interface{}]
	seq    map[string]int64

	// Fail, when set, is consulted before every write
	Fail func(table record.Table, id int64) error
}

// NewRows creates an empty row store
func NewRows() *Rows {
	return &Rows{
		tables: make(map[string]*btree.Map[int64, map[string]interface{}]),
		seq:    make(map[string]int64),
	}
}

// Insert implements record.Rows
func (r *Rows) Insert(ctx context.Context, table record.Table, columns []record.Column) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Fail != nil {
		if err := r.Fail(table, 0); err != nil {
			return 0, err
		}
	}

	r.seq[table.Name]++
	id := r.seq[table.Name]

	row := make(map[string]interface{}, len(columns)+1)
	for _, c := range columns {
		row[c.Name] = c.Value
	}
	row[table.IDColumn] = id
	r.table(table.Name).Set(id, row)
	return id, nil
}

// Update implements record.Rows
func (r *Rows) Update(ctx context.Context, table record.Table, id int64, columns []record.Column) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Fail != nil {
		if err := r.Fail(table, id); err != nil {
			return err
		}
	}

	row, ok := r.table(table.Name).Get(id)
	if !ok {
		return fmt.Errorf("%w: %s %d", ErrRowNotFound, table.Name, id)
	}
	for _, c := range columns {
		row[c.Name] = c.Value
	}
	return nil
}

// Get returns a copy of a row
func (r *Rows) Get(table record.Table, id int64) (map[string]interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[table.Name]
	if !ok {
		return nil, false
	}
	row, ok := t.Get(id)
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true
}

// Len returns the number of rows in a table
func (r *Rows) Len(table record.Table) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tables[table.Name]; ok {
		return t.Len()
	}
	return 0
}

func (r *Rows) table(name string) *btree.Map[int64, map[string]interface{}] {
	t, ok := r.tables[name]
	if !ok {
		t = btree.NewMap[int64, map[string]interface{}](0)
		r.tables[name] = t
	}
	return t
}
