// Package workflow defines stakeholder roles and the ordered approval
// sequences a project moves through.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleHSEOfficer     Role = "HSEOfficer"
	RoleOperations     Role = "Operations"
	RoleProjectManager Role = "ProjectManager"
	RoleHead           Role = "Head"
	RoleAdditional     Role = "Additional"
	RoleClient         Role = "Client"
	RoleContractor     Role = "Contractor"
	RoleVendor         Role = "Vendor"
)

var knownRoles = []Role{
	RoleHSEOfficer,
	RoleOperations,
	RoleProjectManager,
	RoleHead,
	RoleAdditional,
	RoleClient,
	RoleContractor,
	RoleVendor,
}

// Normalize maps a stored role onto its canonical spelling. Unknown roles are
// returned trimmed but otherwise untouched.
func Normalize(role string) Role {
	trimmed := strings.TrimSpace(role)
	for _, known := range knownRoles {
		if strings.EqualFold(trimmed, string(known)) {
			return known
		}
	}
	return Role(trimmed)
}

func Known(role Role) bool {
	for _, known := range knownRoles {
		if role == known {
			return true
		}
	}
	return false
}

// Step is one slot in an approval sequence.
type Step struct {
	Role       Role   `mapstructure:"role"`
	StageLabel string `mapstructure:"stage_label"`
}

// Definition is an ordered approval sequence. When ScopeByFileType is set,
// each document type (MS, RA) advances through the sequence independently.
type Definition struct {
	Name            string `mapstructure:"name"`
	ScopeByFileType bool   `mapstructure:"scope_by_file_type"`
	Steps           []Step `mapstructure:"steps"`
}

var (
	ErrComplete = errors.New("approval workflow already complete")
	ErrNoSteps  = errors.New("workflow has no steps")
)

// OutOfTurnError reports a submission by a role other than the one the
// current stage waits for.
type OutOfTurnError struct {
	Expected Role
	Actual   Role
}

func (e *OutOfTurnError) Error() string {
	return fmt.Sprintf("Only %s can proceed", e.Expected)
}

func (d Definition) Len() int {
	return len(d.Steps)
}

func (d Definition) Complete(stage int) bool {
	return stage >= len(d.Steps)
}

// Next returns the step the given stage index waits for.
func (d Definition) Next(stage int) (Step, bool) {
	if stage < 0 || stage >= len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[stage], true
}

// Authorize checks that role may record a decision at stage and returns the
// step being decided.
func (d Definition) Authorize(stage int, role Role) (Step, error) {
	if d.Complete(stage) {
		return Step{}, ErrComplete
	}
	step := d.Steps[stage]
	if Normalize(string(role)) != step.Role {
		return Step{}, &OutOfTurnError{Expected: step.Role, Actual: role}
	}
	return step, nil
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("workflow name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%s: %w", d.Name, ErrNoSteps)
	}
	for i, step := range d.Steps {
		if !Known(step.Role) {
			return fmt.Errorf("%s: step %d has unknown role %q", d.Name, i, step.Role)
		}
		if strings.TrimSpace(step.StageLabel) == "" {
			return fmt.Errorf("%s: step %d has no stage label", d.Name, i)
		}
	}
	return nil
}

// FourRole gates MS and RA documents separately through HSE, operations,
// project management and the head of department.
func FourRole() Definition {
	return Definition{
		Name:            "four-role",
		ScopeByFileType: true,
		Steps: []Step{
			{Role: RoleHSEOfficer, StageLabel: "Approved - HSE"},
			{Role: RoleOperations, StageLabel: "Approved - Operations"},
			{Role: RoleProjectManager, StageLabel: "Approved - PM"},
			{Role: RoleHead, StageLabel: "Approved - Mr. Jeong"},
		},
	}
}

// ThreeRole approves the project as a whole.
func ThreeRole() Definition {
	return Definition{
		Name: "three-role",
		Steps: []Step{
			{Role: RoleHSEOfficer, StageLabel: "Approved - HSE"},
			{Role: RoleProjectManager, StageLabel: "Approved - PM"},
			{Role: RoleHead, StageLabel: "Approved - Mr. Jeong"},
		},
	}
}

func Builtin() map[string]Definition {
	four := FourRole()
	three := ThreeRole()
	return map[string]Definition{
		four.Name:  four,
		three.Name: three,
	}
}
