package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"logiflow/api/internal/export"
	"logiflow/api/internal/store"
	"logiflow/api/internal/workflow"
)

const (
	FileTypeMS = "MS"
	FileTypeRA = "RA"
)

type DecisionInput struct {
	ProjectID int64
	UserID    int64
	FileType  string
	Status    string
	Comments  string
}

type DecisionResult struct {
	Decision     DecisionView  `json:"decision"`
	Stage        int           `json:"stage"`
	StageLabel   string        `json:"stage_label,omitempty"`
	NextRole     workflow.Role `json:"next_role,omitempty"`
	WorkflowDone bool          `json:"complete"`
}

type RejectionSummary struct {
	Role     string `json:"role"`
	Comments string `json:"comments"`
}

type ApprovalSummary struct {
	Approvals        int                `json:"approvals"`
	Rejections       int                `json:"rejections"`
	RejectionDetails []RejectionSummary `json:"rejectionDetails"`
	MSVersions       int                `json:"msVersions"`
	RAVersions       int                `json:"raVersions"`
	CurrentStage     int                `json:"currentStage"`
	NextRole         workflow.Role      `json:"nextRole"`

	// Scopes is set when the summary spans both file types.
	Scopes map[string]ScopeSummary `json:"scopes,omitempty"`
}

type ScopeSummary struct {
	Approvals    int           `json:"approvals"`
	Rejections   int           `json:"rejections"`
	CurrentStage int           `json:"currentStage"`
	NextRole     workflow.Role `json:"nextRole"`
}

func validFileType(fileType string) bool {
	return fileType == FileTypeMS || fileType == FileTypeRA
}

// approvalScope resolves which sequence a decision advances. A project-scoped
// workflow ignores the file type.
func (s *Service) approvalScope(projectID int64, fileType string) (store.ApprovalScope, error) {
	if !s.workflow.ScopeByFileType {
		return store.ApprovalScope{ProjectID: projectID}, nil
	}
	fileType = strings.TrimSpace(fileType)
	if !validFileType(fileType) {
		return store.ApprovalScope{}, validationError("filetype must be MS or RA")
	}
	return store.ApprovalScope{ProjectID: projectID, FileType: fileType}, nil
}

func (s *Service) SubmitDecision(ctx context.Context, input DecisionInput) (DecisionResult, error) {
	if input.ProjectID <= 0 {
		return DecisionResult{}, validationError("projectid is required")
	}
	if input.Status != store.DecisionApproved && input.Status != store.DecisionRejected {
		return DecisionResult{}, validationError("status must be Approved or Rejected")
	}
	comments := strings.TrimSpace(input.Comments)
	if input.Status == store.DecisionRejected && comments == "" {
		return DecisionResult{}, validationError("comments are required when rejecting")
	}
	scope, err := s.approvalScope(input.ProjectID, input.FileType)
	if err != nil {
		return DecisionResult{}, err
	}

	role, found, err := s.ResolveRole(ctx, input.ProjectID, input.UserID)
	if err != nil {
		return DecisionResult{}, err
	}
	if !found {
		return DecisionResult{}, forbiddenError("You are not a stakeholder for this project.")
	}

	var decided workflow.Step
	decision, err := s.store.RecordDecision(ctx, scope, func(approved int) (store.DecisionPlan, error) {
		step, err := s.workflow.Authorize(approved, role)
		if err != nil {
			return store.DecisionPlan{}, err
		}
		decided = step
		return store.DecisionPlan{
			Decision: store.ApprovalDecision{
				UserID:   input.UserID,
				Status:   input.Status,
				Comments: comments,
			},
			StageLabel: step.StageLabel,
		}, nil
	})
	if err != nil {
		var outOfTurn *workflow.OutOfTurnError
		switch {
		case errors.Is(err, workflow.ErrComplete):
			return DecisionResult{}, forbiddenError("Approval workflow already complete")
		case errors.As(err, &outOfTurn):
			return DecisionResult{}, forbiddenError(outOfTurn.Error())
		case errors.Is(err, sql.ErrNoRows):
			return DecisionResult{}, notFoundError("Project not found")
		default:
			return DecisionResult{}, infraError("Failed to record decision", err)
		}
	}

	if s.search != nil {
		s.search.IndexDecision(decision.ID, decision.ProjectID, decision.FileType, decision.Status, string(role), decision.Comments)
	}
	if decision.Status == store.DecisionApproved {
		s.reindexProject(ctx, decision.ProjectID)
	}

	stage := decision.StageIndex
	result := DecisionResult{Decision: decisionView(decision), Stage: stage}
	if decision.Status == store.DecisionApproved {
		stage++
		result.Stage = stage
		result.StageLabel = decided.StageLabel
	}
	if next, ok := s.workflow.Next(stage); ok {
		result.NextRole = next.Role
	}
	result.WorkflowDone = s.workflow.Complete(stage)
	return result, nil
}

// GetApprovalSummary reports ledger counts for one scope. On a workflow
// scoped by file type an empty fileType summarizes every file type: the
// totals add up across scopes and the stage is that of the least advanced
// document.
func (s *Service) GetApprovalSummary(ctx context.Context, projectID int64, fileType string) (ApprovalSummary, error) {
	if projectID <= 0 {
		return ApprovalSummary{}, validationError("projectid is required")
	}
	var scopes []store.ApprovalScope
	if s.workflow.ScopeByFileType && strings.TrimSpace(fileType) == "" {
		scopes = []store.ApprovalScope{
			{ProjectID: projectID, FileType: FileTypeMS},
			{ProjectID: projectID, FileType: FileTypeRA},
		}
	} else {
		scope, err := s.approvalScope(projectID, fileType)
		if err != nil {
			return ApprovalSummary{}, err
		}
		scopes = []store.ApprovalScope{scope}
	}

	versions, err := s.store.CountDocumentVersions(ctx, projectID)
	if err != nil {
		return ApprovalSummary{}, infraError("Failed to count document versions", err)
	}
	summary := ApprovalSummary{
		RejectionDetails: []RejectionSummary{},
		MSVersions:       versions[FileTypeMS],
		RAVersions:       versions[FileTypeRA],
	}

	for i, scope := range scopes {
		part, details, err := s.scopeSummary(ctx, scope)
		if err != nil {
			return ApprovalSummary{}, err
		}
		summary.Approvals += part.Approvals
		summary.Rejections += part.Rejections
		summary.RejectionDetails = append(summary.RejectionDetails, details...)
		if i == 0 || part.CurrentStage < summary.CurrentStage {
			summary.CurrentStage = part.CurrentStage
			summary.NextRole = part.NextRole
		}
		if len(scopes) > 1 {
			if summary.Scopes == nil {
				summary.Scopes = make(map[string]ScopeSummary, len(scopes))
			}
			summary.Scopes[scope.FileType] = part
		}
	}
	return summary, nil
}

func (s *Service) scopeSummary(ctx context.Context, scope store.ApprovalScope) (ScopeSummary, []RejectionSummary, error) {
	counts, err := s.store.CountDecisions(ctx, scope)
	if err != nil {
		return ScopeSummary{}, nil, infraError("Failed to count decisions", err)
	}
	rejections, err := s.store.ListRejections(ctx, scope)
	if err != nil {
		return ScopeSummary{}, nil, infraError("Failed to list rejections", err)
	}

	details := make([]RejectionSummary, 0, len(rejections))
	for _, rejection := range rejections {
		role := rejection.Role
		if role == "" {
			role = "Unknown"
		}
		details = append(details, RejectionSummary{Role: role, Comments: rejection.Comments})
	}

	part := ScopeSummary{
		Approvals:    counts.Approved,
		Rejections:   counts.Rejected,
		CurrentStage: counts.Approved,
	}
	if next, ok := s.workflow.Next(counts.Approved); ok {
		part.NextRole = next.Role
	}
	return part, details, nil
}

func (s *Service) ExportApprovalReport(ctx context.Context, projectID int64, format string) (*export.Result, error) {
	if projectID <= 0 {
		return nil, validationError("projectid is required")
	}
	if format == "" {
		format = string(export.FormatHTML)
	}
	if s.exporter == nil {
		return nil, unavailableError("EXPORT_UNAVAILABLE", "Report export is not configured")
	}
	if _, err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	result, err := s.exporter.Export(ctx, export.Request{ProjectID: projectID, Format: export.Format(format)})
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			return nil, validationError("format must be html or pdf")
		case errors.Is(err, export.ErrPDFDependencyMissing):
			return nil, unavailableError("EXPORT_UNAVAILABLE", "PDF export requires a chromium binary")
		case errors.Is(err, sql.ErrNoRows):
			return nil, notFoundError("Project not found")
		default:
			return nil, infraError("Failed to export report", err)
		}
	}
	return result, nil
}
