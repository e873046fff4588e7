// Package trust implements the DGC protocol's two orthogonal HTTP gates:
// shared-secret service authentication and governance role/actor RBAC.
package trust

import (
	"net/http"
	"strings"
)

// ServiceGate checks x-service-token against a configured shared
// secret. When token is empty the gate is disabled and permits every
// request, matching the protocol's "unset token means open" rule.
type ServiceGate struct {
	Token string
}

// NewServiceGate constructs a ServiceGate from the configured token
// (which may be empty).
func NewServiceGate(token string) ServiceGate {
	return ServiceGate{Token: token}
}

// Check returns true when the request is authorized to proceed.
func (g ServiceGate) Check(r *http.Request) bool {
	if g.Token == "" {
		return true
	}
	return r.Header.Get("x-service-token") == g.Token
}

// RoleSet is a governance-role allow-set: a comma-separated list of
// lowercase role names, or "*" to allow any role.
type RoleSet struct {
	allowAny bool
	allowed  map[string]struct{}
}

// ParseRoleSet parses a comma-separated allow-set. "*" anywhere in the
// list allows any role.
func ParseRoleSet(spec string) RoleSet {
	rs := RoleSet{allowed: map[string]struct{}{}}
	for _, part := range strings.Split(spec, ",") {
		role := strings.ToLower(strings.TrimSpace(part))
		if role == "" {
			continue
		}
		if role == "*" {
			rs.allowAny = true
			continue
		}
		rs.allowed[role] = struct{}{}
	}
	return rs
}

// Allows reports whether role (normalized) is permitted.
func (rs RoleSet) Allows(role string) bool {
	if rs.allowAny {
		return true
	}
	role = strings.ToLower(strings.TrimSpace(role))
	_, ok := rs.allowed[role]
	return ok
}

// GovernanceCheck evaluates the governance RBAC gate for a request: the
// caller's x-governance-role must be in allowed, and if x-governance-actor
// is present it must equal bodyActor. Returns ("", true) on success, or
// a machine error code and false on rejection.
func GovernanceCheck(r *http.Request, allowed RoleSet, bodyActor string) (code string, ok bool) {
	role := r.Header.Get("x-governance-role")
	if !allowed.Allows(role) {
		return "forbidden", false
	}
	actor := r.Header.Get("x-governance-actor")
	if actor != "" && actor != bodyActor {
		return "forbidden", false
	}
	return "", true
}
