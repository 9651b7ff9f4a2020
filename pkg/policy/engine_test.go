package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/metrics"
)

func identity(roles, perms []string) *claims.Identity {
	return &claims.Identity{
		Subject:     "user-1",
		Username:    "alice",
		Roles:       claims.NewSet(roles...),
		Permissions: claims.NewSet(perms...),
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		id       *claims.Identity
		req      Requirement
		expected bool
	}{
		{
			name:     "permission held",
			id:       identity(nil, []string{"CreateRole"}),
			req:      Requirement{Kind: KindPermission, Name: "CreateRole"},
			expected: true,
		},
		{
			name:     "permission missing",
			id:       identity(nil, []string{"read"}),
			req:      Requirement{Kind: KindPermission, Name: "CreateRole"},
			expected: false,
		},
		{
			name:     "permission case sensitive",
			id:       identity(nil, []string{"createrole"}),
			req:      Requirement{Kind: KindPermission, Name: "CreateRole"},
			expected: false,
		},
		{
			name:     "role held",
			id:       identity([]string{"admin"}, nil),
			req:      Requirement{Kind: KindRole, Name: "admin"},
			expected: true,
		},
		{
			name:     "role does not satisfy permission",
			id:       identity([]string{"CreateRole"}, nil),
			req:      Requirement{Kind: KindPermission, Name: "CreateRole"},
			expected: false,
		},
		{
			name:     "permission does not satisfy role",
			id:       identity(nil, []string{"admin"}),
			req:      Requirement{Kind: KindRole, Name: "admin"},
			expected: false,
		},
		{
			name:     "no prefix matching",
			id:       identity([]string{"admin"}, []string{"Create"}),
			req:      Requirement{Kind: KindPermission, Name: "CreateRole"},
			expected: false,
		},
		{
			name:     "nil identity",
			id:       nil,
			req:      Requirement{Kind: KindRole, Name: "admin"},
			expected: false,
		},
		{
			name:     "unknown kind",
			id:       identity([]string{"admin"}, []string{"admin"}),
			req:      Requirement{Kind: "group", Name: "admin"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.id, tt.req)
			if d.Allowed != tt.expected {
				t.Errorf("Evaluate(%v) = %v, expected %v", tt.req, d.Allowed, tt.expected)
			}
			if d.Requirement != tt.req {
				t.Errorf("decision carries %v, expected %v", d.Requirement, tt.req)
			}
		})
	}
}

func TestEngineAuthorize(t *testing.T) {
	registry := NewRegistryBuilder().
		Permission("POST", "/api/roles", "CreateRole").
		Role("get", "/api/roles", "viewer").
		Build()
	engine := NewEngine(registry, metrics.New())
	ctx := context.Background()

	d, registered := engine.Authorize(ctx, identity(nil, []string{"CreateRole"}), "POST", "/api/roles")
	if !registered || !d.Allowed {
		t.Errorf("expected registered allow, got registered=%v allowed=%v", registered, d.Allowed)
	}

	d, registered = engine.Authorize(ctx, identity(nil, nil), "POST", "/api/roles")
	if !registered || d.Allowed {
		t.Errorf("expected registered deny, got registered=%v allowed=%v", registered, d.Allowed)
	}

	d, registered = engine.Authorize(ctx, identity([]string{"viewer"}, nil), "GET", "/api/roles")
	if !registered || !d.Allowed {
		t.Error("method should be matched case-insensitively at registration")
	}

	d, registered = engine.Authorize(ctx, identity(nil, nil), "DELETE", "/api/roles/{roleName}")
	if registered || !d.Allowed {
		t.Error("unregistered operation should be open")
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	b := NewRegistryBuilder().Permission("POST", "/api/users", "CreateUser")
	r := b.Build()

	b.Permission("POST", "/api/users", "SomethingElse").Role("GET", "/api/users", "admin")

	req, ok := r.Lookup("POST", "/api/users")
	if !ok || req.Name != "CreateUser" {
		t.Errorf("built registry changed after builder mutation: %v", req)
	}
	if _, ok := r.Lookup("GET", "/api/users"); ok {
		t.Error("built registry gained an entry after builder mutation")
	}

	entries := r.Requirements()
	entries[0].Requirement.Name = "tampered"
	if req, _ := r.Lookup("POST", "/api/users"); req.Name != "CreateUser" {
		t.Error("Requirements must return a copy")
	}
}

func TestRegistryRequirementsOrdered(t *testing.T) {
	r := NewRegistryBuilder().
		Permission("PUT", "/api/users/{userID}", "UpdateUser").
		Permission("POST", "/api/roles", "CreateRole").
		Permission("DELETE", "/api/users/{userID}", "DeleteUser").
		Build()

	var got []string
	for _, e := range r.Requirements() {
		got = append(got, e.Operation())
	}
	expected := []string{"POST /api/roles", "DELETE /api/users/{userID}", "PUT /api/users/{userID}"}
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, got)
	}
	if r.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", r.Len())
	}
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		builder *RegistryBuilder
		valid   bool
	}{
		{"valid", NewRegistryBuilder().Permission("POST", "/api/users", "CreateUser"), true},
		{"empty name", NewRegistryBuilder().Permission("POST", "/api/users", ""), false},
		{"padded name", NewRegistryBuilder().Role("POST", "/api/users", " admin"), false},
		{"relative route", NewRegistryBuilder().Role("POST", "api/users", "admin"), false},
		{"bad method", NewRegistryBuilder().Role("FETCH", "/api/users", "admin"), false},
		{"bad kind", NewRegistryBuilder().Require("GET", "/api/users", Requirement{Kind: "group", Name: "x"}), false},
		{"unbalanced braces", NewRegistryBuilder().Role("GET", "/api/users/{id", "admin"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder.Validate()
			if result.IsValid() != tt.valid {
				t.Errorf("expected valid=%v, got %v (%v)", tt.valid, result.IsValid(), result.Err())
			}
			_, err := tt.builder.BuildValidated()
			if (err == nil) != tt.valid {
				t.Errorf("BuildValidated error = %v, expected valid=%v", err, tt.valid)
			}
		})
	}
}

func TestGenerateMarkdown(t *testing.T) {
	r := NewRegistryBuilder().
		Permission("POST", "/api/users", "CreateUser").
		Role("GET", "/api/me", "viewer").
		Build()

	doc, err := GenerateMarkdown(r, "built-in")
	if err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	for _, want := range []string{"| POST | `/api/users` | permission | CreateUser |", "| GET | `/api/me` | role | viewer |", "built-in"} {
		if !strings.Contains(doc, want) {
			t.Errorf("markdown missing %q:\n%s", want, doc)
		}
	}
}
