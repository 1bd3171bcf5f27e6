package authz

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/scullers68/sprint-reports/internal/audit"
	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/storage/sqlite"
	"github.com/scullers68/sprint-reports/internal/types"
)

func setupAuthz(t *testing.T) (*Authorizer, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "authz.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func seedUser(t *testing.T, store storage.Storage, u *types.User) {
	t.Helper()
	if err := store.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
}

func seedRole(t *testing.T, store storage.Storage, name string, perms ...string) {
	t.Helper()
	err := store.UpsertRole(context.Background(), &types.Role{
		Name:        name,
		Permissions: perms,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("UpsertRole failed: %v", err)
	}
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		path   string
		method string
		want   string
	}{
		{"/sprints", "GET", "sprint.read"},
		{"/sprints", "POST", "sprint.write"},
		{"/sprints/42", "PUT", "sprint.write"},
		{"/sprints/42", "DELETE", "sprint.delete"},
		{"/sprints/42/", "GET", "sprint.read"},
		{"/reports", "POST", "report.create"},
		{"/admin/roles", "DELETE", "admin.roles"},
		{"/users/u-7/roles", "POST", "user.roles"},
		// Unknown admin paths stay gated.
		{"/admin/retention", "POST", "admin.system"},
		{"/admin", "GET", "admin.system"},
		// Everything else passes through.
		{"/health", "GET", ""},
		{"/webhooks/tracker", "POST", ""},
	}
	for _, tt := range tests {
		if got := RequiredPermission(tt.path, tt.method); got != tt.want {
			t.Errorf("RequiredPermission(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestAuthorizeGrantsByRolePermission(t *testing.T) {
	a, store := setupAuthz(t)
	ctx := context.Background()
	seedRole(t, store, "viewer", "sprint.read", "report.read")
	seedUser(t, store, &types.User{ID: "u-1", Email: "u1@example.com", Active: true, Roles: []string{"viewer"}})

	if err := a.Authorize(ctx, "u-1", "/sprints", "GET", "corr-1"); err != nil {
		t.Errorf("viewer denied sprint.read: %v", err)
	}
	err := a.Authorize(ctx, "u-1", "/sprints", "POST", "corr-2")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("viewer allowed sprint.write: %v", err)
	}
}

func TestAuthorizeUnionsPermissionsAcrossRoles(t *testing.T) {
	a, store := setupAuthz(t)
	ctx := context.Background()
	seedRole(t, store, "viewer", "sprint.read")
	seedRole(t, store, "editor", "sprint.write")
	seedUser(t, store, &types.User{ID: "u-2", Active: true, Roles: []string{"viewer", "editor"}})

	if err := a.Authorize(ctx, "u-2", "/sprints", "GET", ""); err != nil {
		t.Errorf("read denied: %v", err)
	}
	if err := a.Authorize(ctx, "u-2", "/sprints", "POST", ""); err != nil {
		t.Errorf("write denied: %v", err)
	}
	if err := a.Authorize(ctx, "u-2", "/sprints/3", "DELETE", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete allowed without sprint.delete: %v", err)
	}
}

func TestAuthorizeSuperuserBypassesRoles(t *testing.T) {
	a, store := setupAuthz(t)
	seedUser(t, store, &types.User{ID: "root", Active: true, Superuser: true})

	if err := a.Authorize(context.Background(), "root", "/admin/retention", "POST", ""); err != nil {
		t.Errorf("superuser denied: %v", err)
	}
}

func TestAuthorizeInactiveUser(t *testing.T) {
	a, store := setupAuthz(t)
	seedRole(t, store, "viewer", "sprint.read")
	seedUser(t, store, &types.User{ID: "u-3", Active: false, Superuser: true, Roles: []string{"viewer"}})

	err := a.Authorize(context.Background(), "u-3", "/sprints", "GET", "")
	if !errors.Is(err, ErrInactiveUser) {
		t.Errorf("inactive user error = %v, want ErrInactiveUser", err)
	}
}

func TestAuthorizeUnknownUser(t *testing.T) {
	a, _ := setupAuthz(t)
	err := a.Authorize(context.Background(), "ghost", "/sprints", "GET", "")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("unknown user error = %v, want ErrForbidden", err)
	}
}

func TestAuthorizeUngatedPathSkipsLookup(t *testing.T) {
	a, _ := setupAuthz(t)
	// No user seeded; an ungated path never consults the store.
	if err := a.Authorize(context.Background(), "ghost", "/health", "GET", ""); err != nil {
		t.Errorf("ungated path denied: %v", err)
	}
}

func TestAuthorizeRecordsAuditDecisions(t *testing.T) {
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "authz.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	log := audit.New(store)
	a := New(store, log)
	ctx := context.Background()

	seedRole(t, store, "viewer", "sprint.read")
	seedUser(t, store, &types.User{ID: "u-4", Active: true, Roles: []string{"viewer"}})

	if err := a.Authorize(ctx, "u-4", "/sprints", "GET", "corr-9"); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := a.Authorize(ctx, "u-4", "/sprints/3", "DELETE", "corr-9"); err == nil {
		t.Fatal("expected denial")
	}

	events, err := store.ListSecurityEvents(ctx, storage.SecurityEventFilter{})
	if err != nil {
		t.Fatalf("ListSecurityEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].EventType != types.EventAccessGranted || !events[0].Success {
		t.Errorf("first decision = %+v, want granted", events[0])
	}
	if events[1].EventType != types.EventAccessDenied || events[1].Success {
		t.Errorf("second decision = %+v, want denied", events[1])
	}
	if events[1].CorrelationID != "corr-9" {
		t.Errorf("correlation id = %q", events[1].CorrelationID)
	}
}
