// Package authz implements the authorization gate: an explicit mapping
// from (path, method) to a required permission, checked against the
// union of a user's role permissions.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scullers68/sprint-reports/internal/audit"
	"github.com/scullers68/sprint-reports/internal/storage"
)

// ErrForbidden is returned when an active user lacks the required
// permission.
var ErrForbidden = errors.New("forbidden")

// ErrInactiveUser is returned for disabled accounts regardless of roles.
var ErrInactiveUser = errors.New("user inactive")

// permissionRule maps one path template to its per-method permissions.
// Templates use {id}-style placeholders matching one path segment.
type permissionRule struct {
	template string
	methods  map[string]string
}

// permissionTable is the exposed permission catalogue. Unknown admin
// paths fall back to admin.system; unknown paths elsewhere require no
// permission and pass through.
var permissionTable = []permissionRule{
	{"/sprints", map[string]string{
		"GET":  "sprint.read",
		"POST": "sprint.write",
	}},
	{"/sprints/{id}", map[string]string{
		"GET":    "sprint.read",
		"PUT":    "sprint.write",
		"DELETE": "sprint.delete",
	}},
	{"/reports", map[string]string{
		"GET":  "report.read",
		"POST": "report.create",
	}},
	{"/admin/roles", map[string]string{
		"GET":    "admin.roles",
		"POST":   "admin.roles",
		"PUT":    "admin.roles",
		"DELETE": "admin.roles",
	}},
	{"/users/{id}/roles", map[string]string{
		"GET":    "user.roles",
		"POST":   "user.roles",
		"PUT":    "user.roles",
		"DELETE": "user.roles",
	}},
}

// RequiredPermission resolves the permission string guarding a request.
// An empty result means the path is not gated.
func RequiredPermission(path, method string) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	for _, rule := range permissionTable {
		if matchTemplate(rule.template, path) {
			return rule.methods[strings.ToUpper(method)]
		}
	}
	if strings.HasPrefix(path, "/admin/") || path == "/admin" {
		return "admin.system"
	}
	return ""
}

func matchTemplate(template, path string) bool {
	tparts := strings.Split(strings.Trim(template, "/"), "/")
	pparts := strings.Split(strings.Trim(path, "/"), "/")
	if len(tparts) != len(pparts) {
		return false
	}
	for i, tp := range tparts {
		if strings.HasPrefix(tp, "{") && strings.HasSuffix(tp, "}") {
			continue
		}
		if tp != pparts[i] {
			return false
		}
	}
	return true
}

// Authorizer checks permissions against stored users and roles, emitting
// an audit event per decision.
type Authorizer struct {
	store storage.Storage
	log   *audit.Log
}

// New creates an Authorizer.
func New(store storage.Storage, log *audit.Log) *Authorizer {
	return &Authorizer{store: store, log: log}
}

// Permissions computes the union of permissions across a user's active
// roles.
func (a *Authorizer) Permissions(ctx context.Context, roleNames []string) (map[string]bool, error) {
	roles, err := a.store.GetRoles(ctx, roleNames)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	perms := map[string]bool{}
	for _, r := range roles {
		for _, p := range r.Permissions {
			perms[p] = true
		}
	}
	return perms, nil
}

// Authorize decides whether userID may perform method on path. The
// decision (granted or denied) is recorded in the audit chain.
func (a *Authorizer) Authorize(ctx context.Context, userID, path, method, correlationID string) error {
	required := RequiredPermission(path, method)
	if required == "" {
		return nil
	}

	decide := func(granted bool) {
		if a.log != nil {
			a.log.Authorization(ctx, userID, "endpoint", method+" "+path, required, granted, correlationID)
		}
	}

	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		decide(false)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user %s: %w", userID, ErrForbidden)
		}
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if !user.Active {
		decide(false)
		return fmt.Errorf("user %s: %w", userID, ErrInactiveUser)
	}
	if user.Superuser {
		decide(true)
		return nil
	}

	perms, err := a.Permissions(ctx, user.Roles)
	if err != nil {
		decide(false)
		return err
	}
	if !perms[required] {
		decide(false)
		return fmt.Errorf("permission %s: %w", required, ErrForbidden)
	}
	decide(true)
	return nil
}
