package trust

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceGateOpenWhenUnset(t *testing.T) {
	g := NewServiceGate("")
	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	if !g.Check(r) {
		t.Error("expected open gate when token unset")
	}
}

func TestServiceGateExactMatch(t *testing.T) {
	g := NewServiceGate("s3cr3t")
	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	if g.Check(r) {
		t.Error("expected rejection with missing header")
	}
	r.Header.Set("x-service-token", "S3CR3T")
	if g.Check(r) {
		t.Error("expected case-sensitive rejection")
	}
	r.Header.Set("x-service-token", "s3cr3t")
	if !g.Check(r) {
		t.Error("expected acceptance on exact match")
	}
}

func TestRoleSetWildcard(t *testing.T) {
	rs := ParseRoleSet("*")
	if !rs.Allows("anything") {
		t.Error("expected wildcard to allow any role")
	}
}

func TestRoleSetNormalizesCase(t *testing.T) {
	rs := ParseRoleSet("ops_admin, Admin")
	if !rs.Allows("ADMIN") {
		t.Error("expected case-insensitive match")
	}
	if !rs.Allows(" ops_admin ") {
		t.Error("expected whitespace-trimmed match")
	}
	if rs.Allows("ops_agent") {
		t.Error("expected non-member role to be denied")
	}
}

func TestGovernanceCheckActorMismatch(t *testing.T) {
	allowed := ParseRoleSet("ops_admin")
	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	r.Header.Set("x-governance-role", "ops_admin")
	r.Header.Set("x-governance-actor", "alice")

	if _, ok := GovernanceCheck(r, allowed, "bob"); ok {
		t.Error("expected actor mismatch to be rejected")
	}
	if _, ok := GovernanceCheck(r, allowed, "alice"); !ok {
		t.Error("expected matching actor to be accepted")
	}
}

func TestGovernanceCheckRoleDenied(t *testing.T) {
	allowed := ParseRoleSet("ops_admin")
	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	r.Header.Set("x-governance-role", "ops_agent")
	if _, ok := GovernanceCheck(r, allowed, ""); ok {
		t.Error("expected role not in allow-set to be rejected")
	}
}
