// Package record describes the host platform tables owning entities are
// written to, and the contract a row store fulfils for them.
package record

import "context"

// Table names a host table and its primary key column
type Table struct {
	Name     string
	IDColumn string
}

var (
	Posts = Table{Name: "posts", IDColumn: "ID"}
	Users = Table{Name: "users", IDColumn: "ID"}
	Terms = Table{Name: "terms", IDColumn: "term_id"}
)

// Column is one named value of a row
type Column struct {
	Name  string
	Value interface{}
}

// Names returns the column names in order
func Names(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// Values returns the column values in order
func Values(columns []Column) []interface{} {
	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = c.Value
	}
	return values
}

// Rows writes owning entity rows
type Rows interface {
	// Insert adds a row and returns its generated ID
	Insert(ctx context.Context, table Table, columns []Column) (int64, error)
	// Update rewrites the given columns of an existing row
	Update(ctx context.Context, table Table, id int64, columns []Column) error
}
