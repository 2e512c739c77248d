package model

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/record"
	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// PersistRoleOperation is the deferred operation writing a staged role
const PersistRoleOperation = "persistRole"

const (
	CodeUserCreated      result.Code = "user_created"
	CodeUserCreateFailed result.Code = "user_create_failed"
	CodeUserUpdated      result.Code = "user_updated"
	CodeUserUpdateFailed result.Code = "user_update_failed"

	CodeRoleStaged       result.Code = "role_staged"
	CodeRoleAssigned     result.Code = "role_assigned"
	CodeRoleNotFound     result.Code = "role_not_found"
	CodeRoleAssignFailed result.Code = "role_assign_failed"
)

// User is a row of the users table with its metadata and role
type User struct {
	entity

	ID          int64
	Login       string
	Email       string
	DisplayName string
	Nicename    string

	roles       *Roles
	tablePrefix string
	stagedRole  string
}

// UserOption configures a User
type UserOption func(*User)

// WithRoles sets the registry roles are validated against
func WithRoles(roles *Roles) UserOption {
	return func(u *User) { u.roles = roles }
}

// WithTablePrefix sets the prefix of the capabilities meta key
func WithTablePrefix(prefix string) UserOption {
	return func(u *User) { u.tablePrefix = prefix }
}

func NewUser(store meta.Store, rows record.Rows, logger *zap.Logger, opts ...UserOption) *User {
	return UserByID(0, store, rows, logger, opts...)
}

// UserByID references an existing user
func UserByID(id int64, store meta.Store, rows record.Rows, logger *zap.Logger, opts ...UserOption) *User {
	u := &User{
		entity:      newEntity(meta.ObjectUser, id, store, rows, logger),
		ID:          id,
		tablePrefix: "wp_",
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.roles == nil {
		u.roles = DefaultRoles()
	}
	u.deferred.Handle(PersistRoleOperation, u.persistRole)
	return u
}

func (u *User) PreloadMetas(ctx context.Context) (*User, error) {
	if err := u.Preload(ctx); err != nil {
		return u, err
	}
	return u, nil
}

// CapabilitiesKey is the meta key holding the user's roles
func (u *User) CapabilitiesKey() string {
	return u.tablePrefix + "capabilities"
}

// SetRole stages name as the user's only role. It is written when the user
// is saved, replacing every role the user held.
func (u *User) SetRole(name string) result.Result {
	if name == "" {
		return result.NewError(CodeRoleNotFound, "role name cannot be empty", nil)
	}
	u.stagedRole = name
	u.RegisterDeferred(PersistRoleOperation)
	return result.NewSuccess(CodeRoleStaged, fmt.Sprintf("role %q staged", name), name)
}

// StagedRole returns the role waiting to be written, if any
func (u *User) StagedRole() string {
	return u.stagedRole
}

// Roles returns the names of the roles the user holds, sorted
func (u *User) Roles(ctx context.Context) ([]string, error) {
	entry, err := u.GetMeta(ctx, u.CapabilitiesKey())
	if err != nil {
		return nil, err
	}
	granted, ok := entry.Value().(map[string]interface{})
	if !ok {
		return nil, nil
	}

	var names []string
	for name, v := range granted {
		if b, ok := v.(bool); ok && b {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Can reports whether any role the user holds grants capability
func (u *User) Can(ctx context.Context, capability string) (bool, error) {
	names, err := u.Roles(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		role, err := u.roles.Get(name)
		if errors.Is(err, ErrRoleNotFound) {
			continue
		}
		if role.Can(capability) {
			return true, nil
		}
	}
	return false, nil
}

func (u *User) Save(ctx context.Context) result.Results {
	if u.ID == 0 {
		return u.Create(ctx)
	}
	return u.Update(ctx)
}

func (u *User) Create(ctx context.Context) result.Results {
	if u.ID != 0 {
		return result.Results{result.Errorf(CodeUserCreateFailed, u.ID, "user %d already exists", u.ID)}
	}
	return u.insert(ctx, "user", record.Users, u.columns(), func(id int64) { u.ID = id })
}

func (u *User) Update(ctx context.Context) result.Results {
	return u.update(ctx, "user", record.Users, u.ID, u.columns())
}

func (u *User) columns() []record.Column {
	return []record.Column{
		{Name: "user_login", Value: u.Login},
		{Name: "user_email", Value: u.Email},
		{Name: "display_name", Value: u.DisplayName},
		{Name: "user_nicename", Value: u.Nicename},
	}
}

// persistRole writes the staged role straight to the store, bypassing the
// meta cache. The new row is added before the old ones are removed, so a
// failure never leaves the user without a role. A failed write keeps the
// role staged for the next save.
func (u *User) persistRole(ctx context.Context, objectID int64) result.Results {
	name := u.stagedRole
	if name == "" {
		return nil
	}
	if !u.roles.Has(name) {
		return u.roleFailed(result.Errorf(CodeRoleNotFound, name, "role %q is not registered", name))
	}

	store := u.metaStore
	key := u.CapabilitiesKey()
	granted := map[string]bool{name: true}

	existing, err := store.GetByKey(ctx, meta.ObjectUser, objectID, key)
	if err != nil {
		return u.roleFailed(result.Errorf(CodeRoleAssignFailed, name, "failed to read roles of user %d: %v", objectID, err))
	}

	held := false
	for _, v := range existing {
		if meta.ValuesEqual(v, granted) {
			held = true
			break
		}
	}
	if !held {
		if err := store.Add(ctx, meta.ObjectUser, objectID, key, granted); err != nil {
			return u.roleFailed(result.Errorf(CodeRoleAssignFailed, name, "failed to assign role %q to user %d: %v", name, objectID, err))
		}
	}

	// the store has changed from here on
	u.Forget(key)
	for _, v := range existing {
		if meta.ValuesEqual(v, granted) {
			continue
		}
		err := store.Delete(ctx, meta.ObjectUser, objectID, key, v)
		if err != nil && !errors.Is(err, meta.ErrNotFound) {
			return u.roleFailed(result.Errorf(CodeRoleAssignFailed, name, "failed to clear previous roles of user %d: %v", objectID, err))
		}
	}

	u.stagedRole = ""
	u.logger.Debug("role assigned", zap.Int64("user_id", objectID), zap.String("role", name))
	return result.Results{result.NewSuccess(CodeRoleAssigned, fmt.Sprintf("role %q assigned to user %d", name, objectID), name)}
}

// roleFailed queues the staged role again for the next save
func (u *User) roleFailed(r result.Result) result.Results {
	u.RegisterDeferred(PersistRoleOperation)
	u.logger.Warn("role not assigned", zap.String("role", u.stagedRole), zap.String("code", string(r.Code())))
	return result.Results{r}
}
