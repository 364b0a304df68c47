package app

import (
	"context"
	"fmt"
	"strings"

	"logiflow/api/internal/workflow"
)

type FeedbackInput struct {
	ProjectID int64
	UserID    int64
	Role      string
	Comments  string
}

type StakeholderComment struct {
	UserID   int64  `json:"userid"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Comments string `json:"comments"`
}

// SubmitFeedback stores the caller's comments on the project, provided they
// hold the role the feedback slot is for.
func (s *Service) SubmitFeedback(ctx context.Context, input FeedbackInput) error {
	comments := strings.TrimSpace(input.Comments)
	requested := strings.TrimSpace(input.Role)
	if input.ProjectID <= 0 || comments == "" || requested == "" {
		return validationError("All fields are required")
	}

	role, found, err := s.ResolveRole(ctx, input.ProjectID, input.UserID)
	if err != nil {
		return err
	}
	if !found {
		return forbiddenError("You are not a stakeholder for this project.")
	}
	if role != workflow.Normalize(requested) {
		return forbiddenError(fmt.Sprintf("Only %s can submit feedback here but %s provided", requested, role))
	}

	updated, err := s.store.UpdateStakeholderComments(ctx, input.ProjectID, input.UserID, comments)
	if err != nil {
		return infraError("Failed to save feedback", err)
	}
	if !updated {
		return forbiddenError("You are not a stakeholder for this project.")
	}
	return nil
}

func (s *Service) StakeholderComments(ctx context.Context, projectID int64) ([]StakeholderComment, error) {
	if projectID <= 0 {
		return nil, validationError("All fields are required")
	}
	stakeholders, err := s.store.ListStakeholders(ctx, projectID)
	if err != nil {
		return nil, infraError("Error fetching stakeholders", err)
	}
	out := make([]StakeholderComment, 0, len(stakeholders))
	for _, stakeholder := range stakeholders {
		out = append(out, StakeholderComment{
			UserID:   stakeholder.UserID,
			Role:     stakeholder.Role,
			Name:     stakeholder.Username,
			Comments: stakeholder.Comments,
		})
	}
	return out, nil
}
