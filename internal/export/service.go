package export

import (
	"context"
	"fmt"
	"time"

	"logiflow/api/internal/store"
)

// DataStore is the read side the report is assembled from.
type DataStore interface {
	GetProject(ctx context.Context, projectID int64) (store.Project, error)
	ListStakeholders(ctx context.Context, projectID int64) ([]store.Stakeholder, error)
	ListDecisions(ctx context.Context, projectID int64) ([]store.ApprovalDecision, error)
	ListDocumentVersions(ctx context.Context, projectID int64, fileType string) ([]store.DocumentVersion, error)
}

type Service struct {
	store      DataStore
	pdfTimeout time.Duration
	now        func() time.Time
}

func NewService(store DataStore, pdfTimeout time.Duration) *Service {
	if pdfTimeout <= 0 {
		pdfTimeout = 30 * time.Second
	}
	return &Service{store: store, pdfTimeout: pdfTimeout, now: time.Now}
}

// Export builds the approval report for a project in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Format != FormatHTML && req.Format != FormatPDF {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	stakeholders, err := s.store.ListStakeholders(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list stakeholders: %w", err)
	}
	decisions, err := s.store.ListDecisions(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	versions, err := s.store.ListDocumentVersions(ctx, req.ProjectID, "")
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	html, err := RenderReportHTML(buildTemplateData(project, stakeholders, decisions, versions, s.now()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := project.Name + " approvals"
	switch req.Format {
	case FormatPDF:
		return exportPDF(ctx, html, title, s.pdfTimeout)
	default:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	}
}

func buildTemplateData(project store.Project, stakeholders []store.Stakeholder, decisions []store.ApprovalDecision, versions []store.DocumentVersion, generatedAt time.Time) TemplateData {
	type person struct{ role, name string }
	people := make(map[int64]person, len(stakeholders))
	for _, s := range stakeholders {
		people[s.UserID] = person{role: s.Role, name: s.Username}
	}

	data := TemplateData{
		Project:     project,
		GeneratedAt: generatedAt,
		Decisions:   make([]Decision, 0, len(decisions)),
		Versions:    make([]Version, 0, len(versions)),
	}
	for _, s := range stakeholders {
		data.Stakeholders = append(data.Stakeholders, TemplateStakeholder{Name: s.Username, Role: s.Role, Comments: s.Comments})
	}
	for _, d := range decisions {
		p, ok := people[d.UserID]
		if !ok {
			p = person{role: "Unknown", name: fmt.Sprintf("user %d", d.UserID)}
		}
		data.Decisions = append(data.Decisions, Decision{
			Role:      p.role,
			UserName:  p.name,
			FileType:  d.FileType,
			Status:    d.Status,
			Stage:     d.StageIndex,
			Comments:  d.Comments,
			CreatedAt: d.CreatedAt,
		})
		if d.Status == store.DecisionApproved {
			data.Approvals++
		} else {
			data.Rejections++
		}
	}
	for _, v := range versions {
		uploader := fmt.Sprintf("user %d", v.UploadedBy)
		if p, ok := people[v.UploadedBy]; ok {
			uploader = p.name
		}
		data.Versions = append(data.Versions, Version{
			FileType:   v.FileType,
			Version:    v.Version,
			UploadedBy: uploader,
			CreatedAt:  v.CreatedAt,
		})
	}
	return data
}
