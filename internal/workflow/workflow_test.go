package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAuthorizeFourRoleSequence(t *testing.T) {
	def := FourRole()
	order := []Role{RoleHSEOfficer, RoleOperations, RoleProjectManager, RoleHead}
	roles := append([]Role{RoleAdditional, RoleClient}, order...)

	for stage, expected := range order {
		for _, role := range roles {
			step, err := def.Authorize(stage, role)
			if role == expected {
				if err != nil {
					t.Fatalf("stage %d: Authorize(%q) error = %v", stage, role, err)
				}
				if step.Role != expected {
					t.Fatalf("stage %d: step role = %q, want %q", stage, step.Role, expected)
				}
				continue
			}
			var outOfTurn *OutOfTurnError
			if !errors.As(err, &outOfTurn) {
				t.Fatalf("stage %d: Authorize(%q) error = %v, want OutOfTurnError", stage, role, err)
			}
			if outOfTurn.Expected != expected {
				t.Fatalf("stage %d: expected role = %q, want %q", stage, outOfTurn.Expected, expected)
			}
		}
	}

	if _, err := def.Authorize(len(order), RoleHead); !errors.Is(err, ErrComplete) {
		t.Fatalf("Authorize past terminal stage error = %v, want ErrComplete", err)
	}
}

func TestOutOfTurnMessage(t *testing.T) {
	_, err := ThreeRole().Authorize(1, RoleHSEOfficer)
	if err == nil || err.Error() != "Only ProjectManager can proceed" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]Role{
		"hseofficer":        RoleHSEOfficer,
		" ProjectManager ":  RoleProjectManager,
		"HEAD":              RoleHead,
		"Freight Forwarder": Role("Freight Forwarder"),
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		def  Definition
		ok   bool
	}{
		{name: "four role", def: FourRole(), ok: true},
		{name: "three role", def: ThreeRole(), ok: true},
		{name: "no steps", def: Definition{Name: "empty"}},
		{name: "unknown role", def: Definition{Name: "x", Steps: []Step{{Role: "Janitor", StageLabel: "Approved"}}}},
		{name: "missing label", def: Definition{Name: "x", Steps: []Step{{Role: RoleHead}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected Validate() to fail")
			}
		})
	}
}

func TestLoadBuiltin(t *testing.T) {
	def, err := Load("", "three-role")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Len() != 3 || def.ScopeByFileType {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if _, err := Load("", "missing"); err == nil {
		t.Fatal("expected unknown workflow to fail")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	content := []byte(`workflows:
  - name: two-role
    scope_by_file_type: true
    steps:
      - role: hseofficer
        stage_label: Cleared - HSE
      - role: Head
        stage_label: Cleared - Head
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write workflow file: %v", err)
	}

	def, err := Load(path, "two-role")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !def.ScopeByFileType || def.Len() != 2 {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.Steps[0].Role != RoleHSEOfficer || def.Steps[1].StageLabel != "Cleared - Head" {
		t.Fatalf("unexpected steps: %+v", def.Steps)
	}

	if _, err := Load(path, "four-role"); err != nil {
		t.Fatalf("built-in definitions should remain available: %v", err)
	}
}
