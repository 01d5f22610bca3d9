package access

import (
	"context"
	"errors"
	"testing"

	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/session"
)

// memRoleStore is an in-memory RoleStore.
type memRoleStore struct {
	roles   map[string]model.Role
	failErr error
}

func newMemRoleStore() *memRoleStore {
	return &memRoleStore{roles: make(map[string]model.Role)}
}

func (s *memRoleStore) ListRoles(_ context.Context) ([]model.Role, error) {
	var out []model.Role
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *memRoleStore) UpsertRole(_ context.Context, r model.Role) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.roles[r.Name] = r
	return nil
}

func (s *memRoleStore) DeleteRole(_ context.Context, name string) error {
	delete(s.roles, name)
	return nil
}

func newTestPolicy(t *testing.T, store RoleStore) *Policy {
	t.Helper()
	p, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestVisibleScreens_AdminSupersetOfPredefined(t *testing.T) {
	p := newTestPolicy(t, nil)
	admin := make(map[string]bool)
	for _, s := range p.VisibleScreens(AdminRole) {
		admin[s] = true
	}
	if len(admin) != len(Screens()) {
		t.Fatalf("admin sees %d screens, want all %d", len(admin), len(Screens()))
	}

	for _, r := range p.Roles() {
		if !r.Builtin {
			continue
		}
		for _, s := range p.VisibleScreens(r.Name) {
			if !admin[s] {
				t.Errorf("role %s sees screen %s that Admin does not", r.Name, s)
			}
		}
	}
}

func TestVisibleScreens_Security(t *testing.T) {
	p := newTestPolicy(t, nil)
	got := p.VisibleScreens("Security")
	want := []string{
		ScreenInwardPO, ScreenInwardSubcontract, ScreenInwardManual,
		ScreenOutwardBilling, ScreenOutwardRGP, ScreenOutwardNRGP,
		ScreenExit, ScreenDisplay, ScreenPrint,
	}
	if len(got) != len(want) {
		t.Fatalf("screens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("screens[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsPermitted(t *testing.T) {
	p := newTestPolicy(t, nil)
	tests := []struct {
		role string
		key  string
		want bool
	}{
		{AdminRole, KeySettingsRoles, true},
		{AdminRole, "nonsense.key", false},
		{"Security", KeyExitExecute, true},
		{"Security", KeyCancelExecute, false},
		{"Finance", KeyCancelExecute, true},
		{"Viewer", SaveKey(model.KindInwardPO), false},
		{"Nobody", KeyDisplayView, false},
	}
	for _, tt := range tests {
		if got := p.IsPermitted(tt.role, tt.key); got != tt.want {
			t.Errorf("IsPermitted(%q, %q) = %v, want %v", tt.role, tt.key, got, tt.want)
		}
	}
}

func TestAuthorize(t *testing.T) {
	p := newTestPolicy(t, nil)
	if err := p.Authorize(&session.Session{Role: "Viewer"}, KeyDisplayView); err != nil {
		t.Errorf("Viewer display: %v", err)
	}
	if err := p.Authorize(&session.Session{Role: "Viewer"}, KeyCancelExecute); !errors.Is(err, ErrForbidden) {
		t.Errorf("Viewer cancel: got %v, want ErrForbidden", err)
	}
	if err := p.Authorize(nil, KeyDisplayView); !errors.Is(err, ErrForbidden) {
		t.Errorf("nil session: got %v, want ErrForbidden", err)
	}
}

func TestSetRole_AdminLocked(t *testing.T) {
	p := newTestPolicy(t, nil)
	_, err := p.SetRole(context.Background(), AdminRole, []string{KeyDisplayView})
	if !errors.Is(err, ErrAdminLocked) {
		t.Fatalf("got %v, want ErrAdminLocked", err)
	}
	if !p.IsPermitted(AdminRole, KeySettingsRoles) {
		t.Error("Admin lost settings.roles")
	}

	if _, err := p.SetRole(context.Background(), AdminRole, CatalogKeys()); err != nil {
		t.Errorf("full catalog edit of Admin should be accepted: %v", err)
	}
}

func TestSetRole_UnknownKey(t *testing.T) {
	p := newTestPolicy(t, nil)
	_, err := p.SetRole(context.Background(), "Auditor", []string{KeyDisplayView, "payroll.view"})
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("got %v, want ErrUnknownPermission", err)
	}
	if p.Exists("Auditor") {
		t.Error("role created despite unknown key")
	}
}

func TestSetRole_CustomPersistsAndLoads(t *testing.T) {
	store := newMemRoleStore()
	p := newTestPolicy(t, store)
	ctx := context.Background()

	role, err := p.SetRole(ctx, "Auditor", []string{KeyPrintView, KeyDisplayView})
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if role.Builtin {
		t.Error("custom role reported as builtin")
	}
	if len(role.Permissions) != 2 || role.Permissions[0] != KeyDisplayView {
		t.Errorf("permissions = %v, want catalog order", role.Permissions)
	}
	if _, ok := store.roles["Auditor"]; !ok {
		t.Fatal("role not persisted")
	}

	fresh := newTestPolicy(t, store)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !fresh.IsPermitted("Auditor", KeyPrintView) {
		t.Error("loaded policy missing Auditor print.view")
	}
}

func TestSetRole_StoreFailureLeavesPolicy(t *testing.T) {
	store := newMemRoleStore()
	store.failErr = errors.New("db down")
	p := newTestPolicy(t, store)

	if _, err := p.SetRole(context.Background(), "Viewer", []string{KeyDisplayView}); err == nil {
		t.Fatal("expected error")
	}
	if !p.IsPermitted("Viewer", KeyPrintView) {
		t.Error("in-memory role changed despite store failure")
	}
}

func TestDeleteRole(t *testing.T) {
	p := newTestPolicy(t, newMemRoleStore())
	ctx := context.Background()

	if err := p.DeleteRole(ctx, "Security"); !errors.Is(err, ErrBuiltinRole) {
		t.Errorf("delete builtin: got %v, want ErrBuiltinRole", err)
	}
	if err := p.DeleteRole(ctx, AdminRole); !errors.Is(err, ErrBuiltinRole) {
		t.Errorf("delete Admin: got %v, want ErrBuiltinRole", err)
	}
	if err := p.DeleteRole(ctx, "Ghost"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("delete unknown: got %v, want ErrRoleNotFound", err)
	}

	if _, err := p.SetRole(ctx, "Temp", []string{KeyDisplayView}); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if err := p.DeleteRole(ctx, "Temp"); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if p.Exists("Temp") {
		t.Error("role still exists after delete")
	}
}

func TestNewFromTOML_Rejects(t *testing.T) {
	tests := map[string]string{
		"admin redefined": "[[role]]\nname = \"Admin\"\npermissions = [\"display.view\"]\n",
		"unknown key":     "[[role]]\nname = \"Gate\"\npermissions = [\"gate.fly\"]\n",
		"missing name":    "[[role]]\npermissions = [\"display.view\"]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewFromTOML([]byte(data), nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRoles_Order(t *testing.T) {
	p := newTestPolicy(t, nil)
	if _, err := p.SetRole(context.Background(), "Auditor", []string{KeyDisplayView}); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	roles := p.Roles()
	if roles[0].Name != AdminRole {
		t.Errorf("first role = %q, want Admin", roles[0].Name)
	}
	if last := roles[len(roles)-1]; last.Name != "Auditor" || last.Builtin {
		t.Errorf("last role = %+v, want custom Auditor", last)
	}
}
