package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
)

// metaTable describes the meta table of one object type
type metaTable struct {
	name     string
	objectID string
	metaID   string
}

func metaTableFor(objectType meta.ObjectType) (metaTable, error) {
	switch objectType {
	case meta.ObjectPost:
		return metaTable{name: "postmeta", objectID: "post_id", metaID: "meta_id"}, nil
	case meta.ObjectUser:
		return metaTable{name: "usermeta", objectID: "user_id", metaID: "umeta_id"}, nil
	case meta.ObjectTerm:
		return metaTable{name: "termmeta", objectID: "term_id", metaID: "meta_id"}, nil
	case meta.ObjectComment:
		return metaTable{name: "commentmeta", objectID: "comment_id", metaID: "meta_id"}, nil
	default:
		return metaTable{}, fmt.Errorf("%w: %q", meta.ErrUnknownObjectType, objectType)
	}
}

// Tables lists the tables Init creates, without prefix
func Tables() []string {
	return []string{"posts", "postmeta", "users", "usermeta", "terms", "termmeta", "commentmeta"}
}

// Init creates the tables and indexes if they do not exist
func Init(ctx context.Context, db *sql.DB, dialect Dialect, prefix string) error {
	if !ValidPrefix(prefix) {
		return fmt.Errorf("invalid table prefix %q", prefix)
	}

	for _, stmt := range schema(dialect, prefix) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", ConvertDBError(err))
		}
	}
	return nil
}

func schema(d Dialect, p string) []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sposts (
	ID %s,
	post_author BIGINT NOT NULL DEFAULT 0,
	post_title TEXT NOT NULL DEFAULT '',
	post_content TEXT NOT NULL DEFAULT '',
	post_excerpt TEXT NOT NULL DEFAULT '',
	post_status VARCHAR(20) NOT NULL DEFAULT 'publish',
	post_type VARCHAR(20) NOT NULL DEFAULT 'post',
	post_name VARCHAR(200) NOT NULL DEFAULT '',
	post_parent BIGINT NOT NULL DEFAULT 0,
	menu_order INTEGER NOT NULL DEFAULT 0
)`, p, d.Serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %susers (
	ID %s,
	user_login VARCHAR(60) NOT NULL DEFAULT '',
	user_email VARCHAR(100) NOT NULL DEFAULT '',
	display_name VARCHAR(250) NOT NULL DEFAULT '',
	user_nicename VARCHAR(50) NOT NULL DEFAULT ''
)`, p, d.Serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sterms (
	term_id %s,
	name VARCHAR(200) NOT NULL DEFAULT '',
	slug VARCHAR(200) NOT NULL DEFAULT '',
	term_group BIGINT NOT NULL DEFAULT 0
)`, p, d.Serial),
	}

	for _, objectType := range []meta.ObjectType{meta.ObjectPost, meta.ObjectUser, meta.ObjectTerm, meta.ObjectComment} {
		t, _ := metaTableFor(objectType)
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s%s (
	%s %s,
	%s BIGINT NOT NULL DEFAULT 0,
	meta_key VARCHAR(255),
	meta_value TEXT
)`, p, t.name, t.metaID, d.Serial, t.objectID),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s%s_%s ON %s%s (%s)`, p, t.name, t.objectID, p, t.name, t.objectID),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s%s_meta_key ON %s%s (meta_key)`, p, t.name, p, t.name),
		)
	}
	return stmts
}

// placeholders returns n bind parameters starting at position from
func placeholders(d Dialect, from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}
