package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Project struct {
	ID                 int64
	Name               string
	Client             string
	EmailSubjectHeader string
	StartDestination   string
	EndDestination     string
	Stage              string
	StartDate          time.Time
	CreatedAt          time.Time
}

type Stakeholder struct {
	ProjectID int64
	UserID    int64
	Role      string
	Username  string
	Comments  string
}

type Cargo struct {
	ID        int64
	ProjectID int64
	Name      string
	Length    float64
	Breadth   float64
	Height    float64
	Weight    float64
	Quantity  int
	OOG       string
}

type ScopeItem struct {
	ID        int64
	ProjectID int64
	Start     string
	End       string
	Work      string
	Equipment string
}

// NewProject is everything inserted when a project is initiated.
type NewProject struct {
	Project      Project
	Stakeholders []Stakeholder
	Cargo        []Cargo
}

type DocumentVersion struct {
	ID         int64
	ProjectID  int64
	FileType   string
	BlobURL    string
	Version    int
	UploadedBy int64
	CreatedAt  time.Time
}

const (
	DecisionApproved = "Approved"
	DecisionRejected = "Rejected"
)

type ApprovalDecision struct {
	ID         int64
	ProjectID  int64
	UserID     int64
	FileType   string
	Status     string
	Comments   string
	StageIndex int
	CreatedAt  time.Time
}

// ApprovalScope is the unit an approval sequence advances over. FileType is
// empty when the workflow approves the project as a whole.
type ApprovalScope struct {
	ProjectID int64
	FileType  string
}

// DecisionPlan is what an approval callback asks the store to write. When
// the decision is an approval the project stage becomes StageLabel.
type DecisionPlan struct {
	Decision   ApprovalDecision
	StageLabel string
}

type ApprovalCounts struct {
	Approved int
	Rejected int
}

type RejectionDetail struct {
	UserID   int64
	Role     string
	Comments string
}

type ChecklistTask struct {
	ID            int64
	ProjectID     int64
	Type          string
	Subtype       string
	Completed     bool
	HasComments   bool
	HasAttachment bool
}

type TaskComment struct {
	ID        int64
	TaskID    int64
	ProjectID int64
	UserID    int64
	Username  string
	Comments  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TaskAttachment struct {
	TaskID    int64
	BlobName  string
	UpdatedAt time.Time
}

type MSReaderEntry struct {
	Scope     string
	Equipment string
	Procedure json.RawMessage
}

// ProjectSearchRow feeds the database-backed project search.
type ProjectSearchRow struct {
	ID     int64
	Name   string
	Client string
	Stage  string
}
