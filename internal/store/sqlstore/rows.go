package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wp-orm/wpmeta/internal/orm/record"
)

// Rows is a record.Rows over the {prefix}posts, users and terms tables
type Rows struct {
	db      *sql.DB
	dialect Dialect
	prefix  string
}

// NewRows creates a row store for tables named with prefix
func NewRows(db *sql.DB, dialect Dialect, prefix string) (*Rows, error) {
	if !ValidPrefix(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &Rows{db: db, dialect: dialect, prefix: prefix}, nil
}

// Insert implements record.Rows
func (r *Rows) Insert(ctx context.Context, table record.Table, columns []record.Column) (int64, error) {
	name := r.prefix + table.Name

	var query string
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", name)
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			name, strings.Join(record.Names(columns), ", "), placeholders(r.dialect, 1, len(columns)))
	}
	args := record.Values(columns)

	if r.dialect.Returning {
		var id int64
		query += " RETURNING " + table.IDColumn
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", name, ConvertDBError(err))
		}
		return id, nil
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", name, ConvertDBError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read id of %s row: %w", name, err)
	}
	return id, nil
}

// Update implements record.Rows
func (r *Rows) Update(ctx context.Context, table record.Table, id int64, columns []record.Column) error {
	if len(columns) == 0 {
		return nil
	}
	name := r.prefix + table.Name

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c.Name + " = " + r.dialect.Placeholder(i+1)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		name, strings.Join(sets, ", "), table.IDColumn, r.dialect.Placeholder(len(columns)+1))
	args := append(record.Values(columns), id)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", name, id, ConvertDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", name, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", ErrNotFound, name, id)
	}
	return nil
}
