package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/btree"
)

// ErrRoleNotFound is returned for a role name that is not registered
var ErrRoleNotFound = errors.New("role not found")

// Role is a named set of capabilities
type Role struct {
	Name         string
	DisplayName  string
	Capabilities map[string]bool
}

// Can reports whether the role grants a capability
func (r Role) Can(capability string) bool {
	return r.Capabilities[capability]
}

// Roles is the registry of roles users may hold. It is safe for concurrent use.
type Roles struct {
	mu    sync.RWMutex
	roles *btree.Map[string, Role]
}

// NewRoles creates an empty registry
func NewRoles() *Roles {
	return &Roles{roles: btree.NewMap[string, Role](0)}
}

// DefaultRoles creates a registry seeded with the host platform's roles
func DefaultRoles() *Roles {
	r := NewRoles()

	subscriber := caps("read")
	contributor := with(subscriber, "edit_posts", "delete_posts")
	author := with(contributor, "upload_files", "publish_posts", "edit_published_posts", "delete_published_posts")
	editor := with(author,
		"moderate_comments", "manage_categories", "manage_links", "unfiltered_html",
		"edit_others_posts", "delete_others_posts", "edit_pages", "edit_others_pages",
		"edit_published_pages", "publish_pages", "delete_pages", "delete_others_pages",
		"delete_published_pages", "read_private_posts", "read_private_pages",
		"edit_private_posts", "edit_private_pages", "delete_private_posts", "delete_private_pages",
	)
	administrator := with(editor,
		"switch_themes", "edit_themes", "edit_theme_options", "activate_plugins", "edit_plugins",
		"install_plugins", "update_plugins", "delete_plugins", "manage_options", "import", "export",
		"list_users", "create_users", "edit_users", "delete_users", "promote_users", "remove_users",
		"edit_dashboard", "update_core", "install_themes", "update_themes", "delete_themes",
	)

	// Errors are impossible on an empty registry
	_ = r.Add("administrator", "Administrator", administrator)
	_ = r.Add("editor", "Editor", editor)
	_ = r.Add("author", "Author", author)
	_ = r.Add("contributor", "Contributor", contributor)
	_ = r.Add("subscriber", "Subscriber", subscriber)
	return r
}

// Add registers a role. It fails if the name is empty or already taken.
func (r *Roles) Add(name, displayName string, capabilities map[string]bool) error {
	if name == "" {
		return errors.New("role name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles.Get(name); ok {
		return fmt.Errorf("role %q already exists", name)
	}
	r.roles.Set(name, Role{Name: name, DisplayName: displayName, Capabilities: copyCaps(capabilities)})
	return nil
}

// Remove unregisters a role
func (r *Roles) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles.Delete(name); !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	return nil
}

// Get returns a copy of a role
func (r *Roles) Get(name string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles.Get(name)
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	role.Capabilities = copyCaps(role.Capabilities)
	return role, nil
}

// Has reports whether a role is registered
func (r *Roles) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.roles.Get(name)
	return ok
}

// Capabilities returns the capabilities granted by a role
func (r *Roles) Capabilities(name string) (map[string]bool, error) {
	role, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return role.Capabilities, nil
}

// Names returns every role name in sorted order
func (r *Roles) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.roles.Keys()
}

func caps(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func with(base map[string]bool, names ...string) map[string]bool {
	out := copyCaps(base)
	for _, n := range names {
		out[n] = true
	}
	return out
}

func copyCaps(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
