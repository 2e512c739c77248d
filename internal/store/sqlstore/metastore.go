package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
)

// MetaStore is a meta.Store over the {prefix}{type}meta tables. Values are
// stored in their serialized text form, and value filters compare that form.
type MetaStore struct {
	db      *sql.DB
	dialect Dialect
	prefix  string
}

// NewMetaStore creates a store for tables named with prefix
func NewMetaStore(db *sql.DB, dialect Dialect, prefix string) (*MetaStore, error) {
	if !ValidPrefix(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &MetaStore{db: db, dialect: dialect, prefix: prefix}, nil
}

func (s *MetaStore) table(objectType meta.ObjectType) (metaTable, string, error) {
	t, err := metaTableFor(objectType)
	if err != nil {
		return metaTable{}, "", err
	}
	return t, s.prefix + t.name, nil
}

// Add implements meta.Store
func (s *MetaStore) Add(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	if key == "" {
		return meta.ErrInvalidKey
	}
	t, name, err := s.table(objectType)
	if err != nil {
		return err
	}
	text, err := meta.MaybeSerialize(value)
	if err != nil {
		return fmt.Errorf("failed to serialize meta %q: %w", key, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s, meta_key, meta_value) VALUES (%s)",
		name, t.objectID, placeholders(s.dialect, 1, 3))
	if _, err := s.db.ExecContext(ctx, query, objectID, key, text); err != nil {
		return fmt.Errorf("failed to add meta %q: %w", key, ConvertDBError(err))
	}
	return nil
}

// Update implements meta.Store. A nil prevValue updates every value of the key.
func (s *MetaStore) Update(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value, prevValue interface{}) error {
	t, name, err := s.table(objectType)
	if err != nil {
		return err
	}
	text, err := meta.MaybeSerialize(value)
	if err != nil {
		return fmt.Errorf("failed to serialize meta %q: %w", key, err)
	}

	query := fmt.Sprintf("UPDATE %s SET meta_value = %s WHERE %s = %s AND meta_key = %s",
		name, s.dialect.Placeholder(1), t.objectID, s.dialect.Placeholder(2), s.dialect.Placeholder(3))
	args := []interface{}{text, objectID, key}
	if prevValue != nil {
		prev, err := meta.MaybeSerialize(prevValue)
		if err != nil {
			return fmt.Errorf("failed to serialize meta %q: %w", key, err)
		}
		query += " AND meta_value = " + s.dialect.Placeholder(4)
		args = append(args, prev)
	}

	return s.exec(ctx, "update", key, query, args...)
}

// Delete implements meta.Store. A nil value deletes every value of the key.
func (s *MetaStore) Delete(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	t, name, err := s.table(objectType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND meta_key = %s",
		name, t.objectID, s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	args := []interface{}{objectID, key}
	if value != nil {
		text, err := meta.MaybeSerialize(value)
		if err != nil {
			return fmt.Errorf("failed to serialize meta %q: %w", key, err)
		}
		query += " AND meta_value = " + s.dialect.Placeholder(3)
		args = append(args, text)
	}

	return s.exec(ctx, "delete", key, query, args...)
}

// GetAll implements meta.Store
func (s *MetaStore) GetAll(ctx context.Context, objectType meta.ObjectType, objectID int64) (meta.Rows, error) {
	t, name, err := s.table(objectType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT meta_key, meta_value FROM %s WHERE %s = %s ORDER BY %s",
		name, t.objectID, s.dialect.Placeholder(1), t.metaID)
	rows, err := s.db.QueryContext(ctx, query, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read metas: %w", ConvertDBError(err))
	}
	defer rows.Close()

	var out meta.Rows
	for rows.Next() {
		var key string
		var text sql.NullString
		if err := rows.Scan(&key, &text); err != nil {
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		out = append(out, meta.Row{Key: key, Value: meta.MaybeUnserialize(text.String)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metas: %w", ConvertDBError(err))
	}
	return out, nil
}

// GetByKey implements meta.Store
func (s *MetaStore) GetByKey(ctx context.Context, objectType meta.ObjectType, objectID int64, key string) ([]interface{}, error) {
	t, name, err := s.table(objectType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT meta_value FROM %s WHERE %s = %s AND meta_key = %s ORDER BY %s",
		name, t.objectID, s.dialect.Placeholder(1), s.dialect.Placeholder(2), t.metaID)
	rows, err := s.db.QueryContext(ctx, query, objectID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read meta %q: %w", key, ConvertDBError(err))
	}
	defer rows.Close()

	var values []interface{}
	for rows.Next() {
		var text sql.NullString
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan meta %q: %w", key, err)
		}
		values = append(values, meta.MaybeUnserialize(text.String))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meta %q: %w", key, ConvertDBError(err))
	}
	return values, nil
}

func (s *MetaStore) exec(ctx context.Context, op, key, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s meta %q: %w", op, key, ConvertDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s meta %q: %w", op, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: meta %q", ErrNotFound, key)
	}
	return nil
}
