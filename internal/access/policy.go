package access

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/session"
)

//go:embed roles.toml
var defaultRoles []byte

var (
	// ErrForbidden is returned by Authorize when the session's role lacks the key.
	ErrForbidden = errors.New("forbidden")
	// ErrAdminLocked is returned for edits that would shrink the Admin role.
	ErrAdminLocked = errors.New("admin role always holds the full catalog")
	// ErrBuiltinRole is returned when deleting a predefined role.
	ErrBuiltinRole = errors.New("predefined roles cannot be deleted")
	// ErrUnknownPermission is returned for keys outside the catalog.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrRoleNotFound is returned for roles the policy does not know.
	ErrRoleNotFound = errors.New("role not found")
)

// RoleStore persists custom roles and edits to predefined ones.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]model.Role, error)
	UpsertRole(ctx context.Context, role model.Role) error
	DeleteRole(ctx context.Context, name string) error
}

type rolesFile struct {
	Role []struct {
		Name        string   `toml:"name"`
		Permissions []string `toml:"permissions"`
	} `toml:"role"`
}

// Policy holds the role to permission-set mapping. Reads are concurrent;
// writes are serialized and go through the RoleStore first.
type Policy struct {
	store RoleStore
	now   func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	roles   map[string]map[string]bool
	builtin map[string][]string
	updated map[string]time.Time
}

// New returns a policy seeded with the embedded predefined roles. A nil
// store keeps custom roles in memory only.
func New(store RoleStore) (*Policy, error) {
	return NewFromTOML(defaultRoles, store)
}

// NewFromFile seeds the predefined roles from a TOML file instead of the
// embedded defaults.
func NewFromFile(path string, store RoleStore) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roles file: %w", err)
	}
	return NewFromTOML(data, store)
}

// NewFromTOML seeds the predefined roles from TOML data.
func NewFromTOML(data []byte, store RoleStore) (*Policy, error) {
	var f rolesFile
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding roles: %w", err)
	}

	p := &Policy{
		store:   store,
		now:     time.Now,
		roles:   make(map[string]map[string]bool),
		builtin: make(map[string][]string),
		updated: make(map[string]time.Time),
	}
	p.builtin[AdminRole] = CatalogKeys()
	p.roles[AdminRole] = toSet(CatalogKeys())

	for _, r := range f.Role {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("decoding roles: role without name")
		}
		if name == AdminRole {
			return nil, fmt.Errorf("decoding roles: %w", ErrAdminLocked)
		}
		if err := checkKeys(r.Permissions); err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}
		p.builtin[name] = append([]string(nil), r.Permissions...)
		p.roles[name] = toSet(r.Permissions)
	}
	return p, nil
}

// Load overlays the roles persisted in the store. Stored rows for Admin are ignored.
func (p *Policy) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	stored, err := p.store.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range stored {
		if r.Name == AdminRole {
			continue
		}
		if err := checkKeys(r.Permissions); err != nil {
			return fmt.Errorf("role %s: %w", r.Name, err)
		}
		p.roles[r.Name] = toSet(r.Permissions)
		p.updated[r.Name] = r.UpdatedAt
	}
	return nil
}

// Exists reports whether a role with the given name is defined.
func (p *Policy) Exists(role string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.roles[role]
	return ok
}

// IsPermitted reports whether role holds key.
func (p *Policy) IsPermitted(role, key string) bool {
	if role == AdminRole {
		return Known(key)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles[role][key]
}

// VisibleScreens returns the screens on which role holds at least one key,
// in navigation order.
func (p *Policy) VisibleScreens(role string) []string {
	var screens []string
	seen := make(map[string]bool)
	for _, perm := range catalog {
		if seen[perm.Screen] || !p.IsPermitted(role, perm.Key) {
			continue
		}
		seen[perm.Screen] = true
		screens = append(screens, perm.Screen)
	}
	return screens
}

// Authorize returns an error wrapping ErrForbidden unless the session's role holds key.
func (p *Policy) Authorize(sess *session.Session, key string) error {
	if sess == nil {
		return fmt.Errorf("%w: no session", ErrForbidden)
	}
	if !p.IsPermitted(sess.Role, key) {
		return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, sess.Role, key)
	}
	return nil
}

// Role returns the named role.
func (p *Policy) Role(name string) (model.Role, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.roles[name]
	if !ok {
		return model.Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	return p.roleLocked(name, set), nil
}

// Roles returns every role: predefined ones first, then custom roles by name.
func (p *Policy) Roles() []model.Role {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.Role, 0, len(p.roles))
	for name, set := range p.roles {
		out = append(out, p.roleLocked(name, set))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Builtin != out[j].Builtin {
			return out[i].Builtin
		}
		if (out[i].Name == AdminRole) != (out[j].Name == AdminRole) {
			return out[i].Name == AdminRole
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (p *Policy) roleLocked(name string, set map[string]bool) model.Role {
	_, builtin := p.builtin[name]
	keys := make([]string, 0, len(set))
	for _, perm := range catalog {
		if set[perm.Key] {
			keys = append(keys, perm.Key)
		}
	}
	return model.Role{Name: name, Permissions: keys, Builtin: builtin, UpdatedAt: p.updated[name]}
}

// SetRole creates or replaces a role's permission set. Any edit that would
// leave Admin short of the full catalog fails with ErrAdminLocked.
func (p *Policy) SetRole(ctx context.Context, name string, keys []string) (model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Role{}, fmt.Errorf("role name is required")
	}
	if err := checkKeys(keys); err != nil {
		return model.Role{}, err
	}
	set := toSet(keys)
	if name == AdminRole {
		if len(set) != len(catalog) {
			return model.Role{}, ErrAdminLocked
		}
		return p.Role(AdminRole)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	role := model.Role{Name: name, Permissions: keys, UpdatedAt: p.now().UTC()}
	if p.store != nil {
		if err := p.store.UpsertRole(ctx, role); err != nil {
			return model.Role{}, fmt.Errorf("saving role %s: %w", name, err)
		}
	}

	p.mu.Lock()
	p.roles[name] = set
	p.updated[name] = role.UpdatedAt
	out := p.roleLocked(name, set)
	p.mu.Unlock()
	return out, nil
}

// DeleteRole removes a custom role. Predefined roles cannot be deleted.
func (p *Policy) DeleteRole(ctx context.Context, name string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.RLock()
	_, builtin := p.builtin[name]
	_, exists := p.roles[name]
	p.mu.RUnlock()
	if builtin {
		return fmt.Errorf("%w: %s", ErrBuiltinRole, name)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}

	if p.store != nil {
		if err := p.store.DeleteRole(ctx, name); err != nil {
			return fmt.Errorf("deleting role %s: %w", name, err)
		}
	}

	p.mu.Lock()
	delete(p.roles, name)
	delete(p.updated, name)
	p.mu.Unlock()
	return nil
}

func checkKeys(keys []string) error {
	var unknown []string
	for _, k := range keys {
		if !Known(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, strings.Join(unknown, ", "))
	}
	return nil
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
