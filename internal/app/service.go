package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"logiflow/api/internal/auth"
	"logiflow/api/internal/authpw"
	"logiflow/api/internal/blob"
	"logiflow/api/internal/config"
	"logiflow/api/internal/docgen"
	"logiflow/api/internal/export"
	"logiflow/api/internal/search"
	"logiflow/api/internal/store"
	"logiflow/api/internal/workflow"
)

type Session struct {
	UserID    int64
	Email     string
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(context.Context) error

	CreateUser(context.Context, store.User) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, int64) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)

	CreateProject(context.Context, store.NewProject) (store.Project, []store.Cargo, error)
	GetProject(context.Context, int64) (store.Project, error)
	ListProjectsForUser(context.Context, int64) ([]store.Project, error)
	UpdateProjectStage(context.Context, int64, string) (bool, error)
	ReplaceScope(context.Context, int64, string, string, []store.ScopeItem) error
	ListScope(context.Context, int64) ([]store.ScopeItem, error)
	ListCargo(context.Context, int64) ([]store.Cargo, error)
	GetStakeholderRole(context.Context, int64, int64) (string, bool, error)
	ListStakeholders(context.Context, int64) ([]store.Stakeholder, error)
	UpdateStakeholderComments(context.Context, int64, int64, string) (bool, error)

	RecordDecision(context.Context, store.ApprovalScope, func(int) (store.DecisionPlan, error)) (store.ApprovalDecision, error)
	CountDecisions(context.Context, store.ApprovalScope) (store.ApprovalCounts, error)
	ListRejections(context.Context, store.ApprovalScope) ([]store.RejectionDetail, error)

	InsertDocumentVersion(context.Context, store.DocumentVersion) (store.DocumentVersion, error)
	GetDocumentVersion(context.Context, int64, string, int) (store.DocumentVersion, error)
	ListDocumentVersions(context.Context, int64, string) ([]store.DocumentVersion, error)
	CountDocumentVersions(context.Context, int64) (map[string]int, error)
	UpsertMSReader(context.Context, store.MSReaderEntry) error

	GetChecklistTemplate(context.Context, string) ([]byte, error)
	InsertChecklistTasks(context.Context, int64, []store.ChecklistTask) (int, error)
	ListChecklistTasks(context.Context, int64) ([]store.ChecklistTask, error)
	GetChecklistTask(context.Context, int64) (store.ChecklistTask, error)
	ToggleChecklistTask(context.Context, int64) (store.ChecklistTask, error)
	SetTaskHasComments(context.Context, int64, bool) error
	SetTaskHasAttachment(context.Context, int64, bool) error
	InsertTaskComment(context.Context, store.TaskComment) (store.TaskComment, error)
	GetTaskComment(context.Context, int64) (store.TaskComment, error)
	ListTaskComments(context.Context, int64) ([]store.TaskComment, error)
	UpdateTaskComment(context.Context, int64, int64, string) (store.TaskComment, error)
	DeleteTaskComment(context.Context, int64, int64) (store.TaskComment, int, error)
	UpsertTaskAttachment(context.Context, int64, string) (store.TaskAttachment, error)
	GetTaskAttachment(context.Context, int64) (store.TaskAttachment, error)
}

type blobStore interface {
	Upload(ctx context.Context, container, name string, body io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, blobURL string) (blob.Object, error)
	PresignedURL(ctx context.Context, container, name string, ttl time.Duration) (string, error)
}

type templateCache interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, body []byte) error
}

type docGenerator interface {
	GenerateMS(ctx context.Context, snapshot docgen.Snapshot) (json.RawMessage, error)
	GenerateRA(ctx context.Context, req docgen.RARequest) (json.RawMessage, error)
	RecommendEquipment(ctx context.Context, req docgen.EquipmentRequest) (json.RawMessage, error)
	ReadVendorMS(ctx context.Context, file io.Reader, scope, equipment string) error
	ReadVendorRA(ctx context.Context, file io.Reader) error
	SelfLearn(ctx context.Context, file io.Reader, filename, contentType string) (docgen.SelfLearnResult, error)
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexProject(id int64, name, client, stage string)
	IndexDecision(id, projectID int64, fileType, status, role, comments string)
}

type reportExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Dependencies are the optional collaborators. Any of them may be nil; the
// operations that need a missing one fail with 503 or skip the side call.
type Dependencies struct {
	Workflow workflow.Definition
	Blob     blobStore
	Cache    templateCache
	DocGen   docGenerator
	Search   searchIndex
	Exporter reportExporter
}

type Service struct {
	store    dataStore
	config   config.Config
	workflow workflow.Definition
	accounts *authpw.Service

	blob     blobStore
	cache    templateCache
	docgen   docGenerator
	search   searchIndex
	exporter reportExporter

	background sync.WaitGroup
	// runDetached starts best-effort side work; tests swap it for a
	// synchronous runner.
	runDetached func(name string, timeout time.Duration, fn func(context.Context) error)
}

func New(cfg config.Config, st dataStore, deps Dependencies) *Service {
	wf := deps.Workflow
	if len(wf.Steps) == 0 {
		wf = workflow.FourRole()
	}
	s := &Service{
		store:    st,
		config:   cfg,
		workflow: wf,
		accounts: authpw.NewService(st, cfg.JWTSecret, cfg.AccessTTL),
		blob:     deps.Blob,
		cache:    deps.Cache,
		docgen:   deps.DocGen,
		search:   deps.Search,
		exporter: deps.Exporter,
	}
	s.runDetached = s.goDetached
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Workflow() workflow.Definition {
	return s.workflow
}

// Close waits for in-flight side calls or until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) goDetached(name string, timeout time.Duration, fn func(context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("%s: %v", name, err)
		}
	}()
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.config.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.UserID, Email: claims.Email, ExpiresAt: claims.ExpiresAt}, nil
}

// ResolveRole returns the caller's role on a project. Not being a stakeholder
// is reported through found, not as an error.
func (s *Service) ResolveRole(ctx context.Context, projectID, userID int64) (workflow.Role, bool, error) {
	role, found, err := s.store.GetStakeholderRole(ctx, projectID, userID)
	if err != nil {
		return "", false, infraError("Failed to resolve stakeholder role", err)
	}
	if !found {
		return "", false, nil
	}
	return workflow.Normalize(role), true, nil
}

func (s *Service) requireProject(ctx context.Context, projectID int64) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Project{}, notFoundError("Project not found")
		}
		return store.Project{}, infraError("Failed to load project", err)
	}
	return project, nil
}
