package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"logiflow/api/internal/checklist"
	"logiflow/api/internal/docgen"
	"logiflow/api/internal/search"
	"logiflow/api/internal/store"
	"logiflow/api/internal/workflow"
)

const (
	initialStage           = "seller"
	defaultVendorEquipment = "300 ton mobile crane"
)

// Cargo above any of these limits is out of gauge.
const (
	oogWeightLimit  = 4000
	oogLengthLimit  = 3
	oogBreadthLimit = 3
	oogHeightLimit  = 1
)

type StakeholderInput struct {
	UserID int64  `json:"userid"`
	Role   string `json:"role"`
}

type CargoInput struct {
	CargoName string  `json:"cargoname"`
	Length    float64 `json:"length"`
	Breadth   float64 `json:"breadth"`
	Height    float64 `json:"height"`
	Weight    float64 `json:"weight"`
	Quantity  int     `json:"quantity"`
}

type NewProjectInput struct {
	ProjectName        string             `json:"projectname"`
	Client             string             `json:"client"`
	EmailSubjectHeader string             `json:"emailsubjectheader"`
	Stakeholders       []StakeholderInput `json:"stakeholders"`
	Cargo              []CargoInput       `json:"cargo"`
}

type NewProjectResult struct {
	ProjectID int64       `json:"projectid"`
	Cargo     []CargoView `json:"cargo"`
}

type ScopeInput struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Work      string `json:"work"`
	Equipment string `json:"equipment"`
}

type SaveScopeInput struct {
	ProjectID int64
	Scope     []ScopeInput
	VendorMS  *UploadedFile
	VendorRA  *UploadedFile
}

type GeneratedDocuments struct {
	FirstAPIResponse  json.RawMessage `json:"first_api_response"`
	SecondAPIResponse json.RawMessage `json:"second_api_response"`
}

// IsOOG reports whether cargo exceeds the in-gauge limits.
func IsOOG(c CargoInput) bool {
	return c.Weight > oogWeightLimit || c.Length > oogLengthLimit || c.Breadth > oogBreadthLimit || c.Height > oogHeightLimit
}

func oogFlag(c CargoInput) string {
	if IsOOG(c) {
		return "Yes"
	}
	return "No"
}

func (s *Service) NewProject(ctx context.Context, input NewProjectInput) (NewProjectResult, error) {
	name := strings.TrimSpace(input.ProjectName)
	if name == "" || strings.TrimSpace(input.Client) == "" {
		return NewProjectResult{}, validationError("projectname and client are required")
	}
	stakeholders := make([]store.Stakeholder, 0, len(input.Stakeholders))
	for _, item := range input.Stakeholders {
		role := workflow.Normalize(item.Role)
		if item.UserID <= 0 || role == "" {
			return NewProjectResult{}, validationError("each stakeholder needs a userid and role")
		}
		stakeholders = append(stakeholders, store.Stakeholder{UserID: item.UserID, Role: string(role)})
	}
	cargo := make([]store.Cargo, 0, len(input.Cargo))
	for _, item := range input.Cargo {
		cargo = append(cargo, store.Cargo{
			Name:     item.CargoName,
			Length:   item.Length,
			Breadth:  item.Breadth,
			Height:   item.Height,
			Weight:   item.Weight,
			Quantity: item.Quantity,
			OOG:      oogFlag(item),
		})
	}

	project, stored, err := s.store.CreateProject(ctx, store.NewProject{
		Project: store.Project{
			Name:               name,
			Client:             strings.TrimSpace(input.Client),
			EmailSubjectHeader: input.EmailSubjectHeader,
			Stage:              initialStage,
		},
		Stakeholders: stakeholders,
		Cargo:        cargo,
	})
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return NewProjectResult{}, validationError("Unknown stakeholder user")
		}
		return NewProjectResult{}, infraError("Failed to create project", err)
	}

	if s.search != nil {
		s.search.IndexProject(project.ID, project.Name, project.Client, project.Stage)
	}
	return NewProjectResult{ProjectID: project.ID, Cargo: cargoViews(stored)}, nil
}

func (s *Service) ChangeProjectStage(ctx context.Context, projectID int64, stage string) error {
	stage = strings.TrimSpace(stage)
	if projectID <= 0 || stage == "" {
		return validationError("projectid and stage are required")
	}
	found, err := s.store.UpdateProjectStage(ctx, projectID, stage)
	if err != nil {
		return infraError("Failed to update project stage", err)
	}
	if !found {
		return notFoundError("Project not found")
	}
	s.reindexProject(ctx, projectID)
	return nil
}

// reindexProject pushes the stored project, including its current stage, to
// the search index. Lookup failures leave the index as it was.
func (s *Service) reindexProject(ctx context.Context, projectID int64) {
	if s.search == nil {
		return
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		log.Printf("search: reload project %d for indexing: %v", projectID, err)
		return
	}
	s.search.IndexProject(project.ID, project.Name, project.Client, project.Stage)
}

// SaveProjectScope replaces the project's scope and hands any vendor
// documents to the readers in the background.
func (s *Service) SaveProjectScope(ctx context.Context, input SaveScopeInput) error {
	if input.ProjectID <= 0 || len(input.Scope) == 0 {
		return validationError("Invalid request format")
	}
	items := make([]store.ScopeItem, 0, len(input.Scope))
	for _, item := range input.Scope {
		items = append(items, store.ScopeItem{
			Start:     item.Start,
			End:       item.End,
			Work:      item.Work,
			Equipment: item.Equipment,
		})
	}
	start := input.Scope[0].Start
	end := input.Scope[len(input.Scope)-1].End

	if err := s.store.ReplaceScope(ctx, input.ProjectID, start, end, items); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("Project not found")
		}
		return infraError("Failed to save project scope", err)
	}

	if s.docgen == nil {
		return nil
	}
	if vendorMS := input.VendorMS; vendorMS != nil && len(vendorMS.Data) > 0 {
		equipment := craneEquipment(input.Scope)
		s.runDetached("docgen: vendor MS", s.config.DocGenTimeout, func(ctx context.Context) error {
			return s.docgen.ReadVendorMS(ctx, bytes.NewReader(vendorMS.Data), "Lifting", equipment)
		})
	}
	if vendorRA := input.VendorRA; vendorRA != nil && len(vendorRA.Data) > 0 {
		s.runDetached("docgen: vendor RA", s.config.DocGenTimeout, func(ctx context.Context) error {
			return s.docgen.ReadVendorRA(ctx, bytes.NewReader(vendorRA.Data))
		})
	}
	return nil
}

// craneEquipment returns the first crane in the scope, or the default one.
func craneEquipment(scope []ScopeInput) string {
	for _, item := range scope {
		if strings.Contains(strings.ToLower(item.Equipment), "crane") {
			return item.Equipment
		}
	}
	return defaultVendorEquipment
}

func (s *Service) GetScopeCategories(ctx context.Context, projectID int64) ([]string, error) {
	if projectID <= 0 {
		return nil, validationError("Project ID is required")
	}
	items, err := s.store.ListScope(ctx, projectID)
	if err != nil {
		return nil, infraError("Failed to load project scope", err)
	}
	works := make([]string, 0, len(items))
	for _, item := range items {
		works = append(works, item.Work)
	}
	return checklist.ApplicableCategories(works), nil
}

func (s *Service) ListProjectsForUser(ctx context.Context, userID int64) ([]ProjectView, error) {
	projects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, infraError("Error fetching project data", err)
	}
	if len(projects) == 0 {
		return nil, notFoundError("No projects found for this user")
	}
	out := make([]ProjectView, 0, len(projects))
	for _, project := range projects {
		out = append(out, projectView(project))
	}
	return out, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, infraError("Error fetching data", err)
	}
	out := make([]UserView, 0, len(users))
	for _, user := range users {
		out = append(out, UserView{UserID: user.ID, Username: user.Username})
	}
	return out, nil
}

// CategorizeScope names the document family for the scope's work types.
func CategorizeScope(works []string) string {
	var lifting, transportation bool
	for _, work := range works {
		lower := strings.ToLower(work)
		if strings.Contains(lower, "lifting") {
			lifting = true
		}
		if strings.Contains(lower, "transportation") {
			transportation = true
		}
	}
	switch {
	case lifting && transportation:
		return "LiftingandTransportation"
	case lifting:
		return "Lifting"
	case transportation:
		return "Transportation"
	default:
		return "Other"
	}
}

func (s *Service) projectSnapshot(ctx context.Context, projectID int64) (docgen.Snapshot, []string, error) {
	project, err := s.requireProject(ctx, projectID)
	if err != nil {
		return docgen.Snapshot{}, nil, err
	}
	cargo, err := s.store.ListCargo(ctx, projectID)
	if err != nil {
		return docgen.Snapshot{}, nil, infraError("Failed to load cargo", err)
	}
	scope, err := s.store.ListScope(ctx, projectID)
	if err != nil {
		return docgen.Snapshot{}, nil, infraError("Failed to load project scope", err)
	}

	snapshot := docgen.Snapshot{
		ProjectID:     project.ID,
		ClientName:    project.Client,
		ProjectName:   project.Name,
		StartLocation: project.StartDestination,
		EndLocation:   project.EndDestination,
		Cargos:        make([]docgen.SnapshotCargo, 0, len(cargo)),
		Scopes:        make([]docgen.SnapshotScope, 0, len(scope)),
	}
	for _, item := range cargo {
		snapshot.Cargos = append(snapshot.Cargos, docgen.SnapshotCargo{
			CargoName: item.Name,
			Dimensions: docgen.Dimensions{
				Length:  item.Length,
				Breadth: item.Breadth,
				Height:  item.Height,
				Weight:  item.Weight,
			},
			Quantity: item.Quantity,
		})
	}
	works := make([]string, 0, len(scope))
	for _, item := range scope {
		snapshot.Scopes = append(snapshot.Scopes, docgen.SnapshotScope{
			Start:       item.Start,
			Description: item.Work,
			Equipment:   item.Equipment,
		})
		works = append(works, item.Work)
	}
	return snapshot, works, nil
}

func (s *Service) GenerateDocuments(ctx context.Context, projectID int64) (GeneratedDocuments, error) {
	if projectID <= 0 {
		return GeneratedDocuments{}, validationError("Project ID is required")
	}
	if s.docgen == nil {
		return GeneratedDocuments{}, unavailableError("DOCGEN_UNAVAILABLE", "Document generation is not configured")
	}
	snapshot, works, err := s.projectSnapshot(ctx, projectID)
	if err != nil {
		return GeneratedDocuments{}, err
	}

	ms, err := s.docgen.GenerateMS(ctx, snapshot)
	if err != nil {
		return GeneratedDocuments{}, upstreamError("Method statement generation failed", err)
	}
	ra, err := s.docgen.GenerateRA(ctx, docgen.RARequest{Scope: CategorizeScope(works), ProjectID: projectID})
	if err != nil {
		return GeneratedDocuments{}, upstreamError("Risk assessment generation failed", err)
	}
	return GeneratedDocuments{FirstAPIResponse: ms, SecondAPIResponse: ra}, nil
}

// RecommendEquipment forwards cargo dimensions to the equipment service. The
// fields arrive as decoded JSON so strings and nulls can be rejected.
func (s *Service) RecommendEquipment(ctx context.Context, fields map[string]any) (json.RawMessage, error) {
	values := make(map[string]float64, 4)
	for _, key := range []string{"width", "length", "height", "weight"} {
		number, ok := fields[key].(float64)
		if !ok {
			return nil, validationError("Invalid input. width, length, height, and weight must be numbers.")
		}
		values[key] = number
	}
	if s.docgen == nil {
		return nil, unavailableError("DOCGEN_UNAVAILABLE", "Equipment service is not configured")
	}

	reply, err := s.docgen.RecommendEquipment(ctx, docgen.EquipmentRequest{
		Width:  values["width"],
		Length: values["length"],
		Height: values["height"],
		Weight: values["weight"],
	})
	if err != nil {
		if errors.Is(err, docgen.ErrEmptyResponse) {
			return nil, upstreamError("No data returned from equipment service.", nil)
		}
		return nil, infraError("Internal server error", err)
	}
	return reply, nil
}

func (s *Service) SearchProjects(ctx context.Context, query string, limit int) (search.Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	if s.search == nil {
		return search.Response{}, unavailableError("SEARCH_UNAVAILABLE", "Search is not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.search.Search(ctx, search.Query{Text: query, Limit: limit}), nil
}
