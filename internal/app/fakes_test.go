package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"logiflow/api/internal/blob"
	"logiflow/api/internal/config"
	"logiflow/api/internal/docgen"
	"logiflow/api/internal/export"
	"logiflow/api/internal/search"
	"logiflow/api/internal/store"
	"logiflow/api/internal/workflow"
)

type fakeStore struct {
	pingFn                      func(context.Context) error
	createUserFn                func(context.Context, store.User) (store.User, error)
	getUserByEmailFn            func(context.Context, string) (store.User, error)
	getUserByIDFn               func(context.Context, int64) (store.User, error)
	listUsersFn                 func(context.Context) ([]store.User, error)
	createProjectFn             func(context.Context, store.NewProject) (store.Project, []store.Cargo, error)
	getProjectFn                func(context.Context, int64) (store.Project, error)
	listProjectsForUserFn       func(context.Context, int64) ([]store.Project, error)
	updateProjectStageFn        func(context.Context, int64, string) (bool, error)
	replaceScopeFn              func(context.Context, int64, string, string, []store.ScopeItem) error
	listScopeFn                 func(context.Context, int64) ([]store.ScopeItem, error)
	listCargoFn                 func(context.Context, int64) ([]store.Cargo, error)
	getStakeholderRoleFn        func(context.Context, int64, int64) (string, bool, error)
	listStakeholdersFn          func(context.Context, int64) ([]store.Stakeholder, error)
	updateStakeholderCommentsFn func(context.Context, int64, int64, string) (bool, error)
	recordDecisionFn            func(context.Context, store.ApprovalScope, func(int) (store.DecisionPlan, error)) (store.ApprovalDecision, error)
	countDecisionsFn            func(context.Context, store.ApprovalScope) (store.ApprovalCounts, error)
	listRejectionsFn            func(context.Context, store.ApprovalScope) ([]store.RejectionDetail, error)
	insertDocumentVersionFn     func(context.Context, store.DocumentVersion) (store.DocumentVersion, error)
	getDocumentVersionFn        func(context.Context, int64, string, int) (store.DocumentVersion, error)
	listDocumentVersionsFn      func(context.Context, int64, string) ([]store.DocumentVersion, error)
	countDocumentVersionsFn     func(context.Context, int64) (map[string]int, error)
	upsertMSReaderFn            func(context.Context, store.MSReaderEntry) error
	getChecklistTemplateFn      func(context.Context, string) ([]byte, error)
	insertChecklistTasksFn      func(context.Context, int64, []store.ChecklistTask) (int, error)
	listChecklistTasksFn        func(context.Context, int64) ([]store.ChecklistTask, error)
	getChecklistTaskFn          func(context.Context, int64) (store.ChecklistTask, error)
	toggleChecklistTaskFn       func(context.Context, int64) (store.ChecklistTask, error)
	setTaskHasCommentsFn        func(context.Context, int64, bool) error
	setTaskHasAttachmentFn      func(context.Context, int64, bool) error
	insertTaskCommentFn         func(context.Context, store.TaskComment) (store.TaskComment, error)
	getTaskCommentFn            func(context.Context, int64) (store.TaskComment, error)
	listTaskCommentsFn          func(context.Context, int64) ([]store.TaskComment, error)
	updateTaskCommentFn         func(context.Context, int64, int64, string) (store.TaskComment, error)
	deleteTaskCommentFn         func(context.Context, int64, int64) (store.TaskComment, int, error)
	upsertTaskAttachmentFn      func(context.Context, int64, string) (store.TaskAttachment, error)
	getTaskAttachmentFn         func(context.Context, int64) (store.TaskAttachment, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return user, nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, Username: "user"}, nil
}
func (f *fakeStore) ListUsers(ctx context.Context) ([]store.User, error) {
	if f.listUsersFn != nil {
		return f.listUsersFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) CreateProject(ctx context.Context, input store.NewProject) (store.Project, []store.Cargo, error) {
	if f.createProjectFn != nil {
		return f.createProjectFn(ctx, input)
	}
	project := input.Project
	project.ID = 1
	return project, input.Cargo, nil
}
func (f *fakeStore) GetProject(ctx context.Context, id int64) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, id)
	}
	return store.Project{ID: id, Name: "Project", Client: "Client", Stage: "seller"}, nil
}
func (f *fakeStore) ListProjectsForUser(ctx context.Context, userID int64) ([]store.Project, error) {
	if f.listProjectsForUserFn != nil {
		return f.listProjectsForUserFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateProjectStage(ctx context.Context, id int64, stage string) (bool, error) {
	if f.updateProjectStageFn != nil {
		return f.updateProjectStageFn(ctx, id, stage)
	}
	return true, nil
}
func (f *fakeStore) ReplaceScope(ctx context.Context, id int64, start, end string, items []store.ScopeItem) error {
	if f.replaceScopeFn != nil {
		return f.replaceScopeFn(ctx, id, start, end, items)
	}
	return nil
}
func (f *fakeStore) ListScope(ctx context.Context, id int64) ([]store.ScopeItem, error) {
	if f.listScopeFn != nil {
		return f.listScopeFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeStore) ListCargo(ctx context.Context, id int64) ([]store.Cargo, error) {
	if f.listCargoFn != nil {
		return f.listCargoFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeStore) GetStakeholderRole(ctx context.Context, projectID, userID int64) (string, bool, error) {
	if f.getStakeholderRoleFn != nil {
		return f.getStakeholderRoleFn(ctx, projectID, userID)
	}
	return "", false, nil
}
func (f *fakeStore) ListStakeholders(ctx context.Context, id int64) ([]store.Stakeholder, error) {
	if f.listStakeholdersFn != nil {
		return f.listStakeholdersFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeStore) UpdateStakeholderComments(ctx context.Context, projectID, userID int64, comments string) (bool, error) {
	if f.updateStakeholderCommentsFn != nil {
		return f.updateStakeholderCommentsFn(ctx, projectID, userID, comments)
	}
	return true, nil
}
func (f *fakeStore) RecordDecision(ctx context.Context, scope store.ApprovalScope, plan func(int) (store.DecisionPlan, error)) (store.ApprovalDecision, error) {
	if f.recordDecisionFn != nil {
		return f.recordDecisionFn(ctx, scope, plan)
	}
	return store.ApprovalDecision{}, errors.New("record decision not stubbed")
}
func (f *fakeStore) CountDecisions(ctx context.Context, scope store.ApprovalScope) (store.ApprovalCounts, error) {
	if f.countDecisionsFn != nil {
		return f.countDecisionsFn(ctx, scope)
	}
	return store.ApprovalCounts{}, nil
}
func (f *fakeStore) ListRejections(ctx context.Context, scope store.ApprovalScope) ([]store.RejectionDetail, error) {
	if f.listRejectionsFn != nil {
		return f.listRejectionsFn(ctx, scope)
	}
	return nil, nil
}
func (f *fakeStore) InsertDocumentVersion(ctx context.Context, doc store.DocumentVersion) (store.DocumentVersion, error) {
	if f.insertDocumentVersionFn != nil {
		return f.insertDocumentVersionFn(ctx, doc)
	}
	doc.Version = 1
	return doc, nil
}
func (f *fakeStore) GetDocumentVersion(ctx context.Context, projectID int64, fileType string, version int) (store.DocumentVersion, error) {
	if f.getDocumentVersionFn != nil {
		return f.getDocumentVersionFn(ctx, projectID, fileType, version)
	}
	return store.DocumentVersion{}, sql.ErrNoRows
}
func (f *fakeStore) ListDocumentVersions(ctx context.Context, projectID int64, fileType string) ([]store.DocumentVersion, error) {
	if f.listDocumentVersionsFn != nil {
		return f.listDocumentVersionsFn(ctx, projectID, fileType)
	}
	return nil, nil
}
func (f *fakeStore) CountDocumentVersions(ctx context.Context, projectID int64) (map[string]int, error) {
	if f.countDocumentVersionsFn != nil {
		return f.countDocumentVersionsFn(ctx, projectID)
	}
	return map[string]int{}, nil
}
func (f *fakeStore) UpsertMSReader(ctx context.Context, entry store.MSReaderEntry) error {
	if f.upsertMSReaderFn != nil {
		return f.upsertMSReaderFn(ctx, entry)
	}
	return nil
}
func (f *fakeStore) GetChecklistTemplate(ctx context.Context, name string) ([]byte, error) {
	if f.getChecklistTemplateFn != nil {
		return f.getChecklistTemplateFn(ctx, name)
	}
	return []byte(testTemplate), nil
}
func (f *fakeStore) InsertChecklistTasks(ctx context.Context, projectID int64, tasks []store.ChecklistTask) (int, error) {
	if f.insertChecklistTasksFn != nil {
		return f.insertChecklistTasksFn(ctx, projectID, tasks)
	}
	return len(tasks), nil
}
func (f *fakeStore) ListChecklistTasks(ctx context.Context, projectID int64) ([]store.ChecklistTask, error) {
	if f.listChecklistTasksFn != nil {
		return f.listChecklistTasksFn(ctx, projectID)
	}
	return nil, nil
}
func (f *fakeStore) GetChecklistTask(ctx context.Context, taskID int64) (store.ChecklistTask, error) {
	if f.getChecklistTaskFn != nil {
		return f.getChecklistTaskFn(ctx, taskID)
	}
	return store.ChecklistTask{ID: taskID}, nil
}
func (f *fakeStore) ToggleChecklistTask(ctx context.Context, taskID int64) (store.ChecklistTask, error) {
	if f.toggleChecklistTaskFn != nil {
		return f.toggleChecklistTaskFn(ctx, taskID)
	}
	return store.ChecklistTask{}, sql.ErrNoRows
}
func (f *fakeStore) SetTaskHasComments(ctx context.Context, taskID int64, value bool) error {
	if f.setTaskHasCommentsFn != nil {
		return f.setTaskHasCommentsFn(ctx, taskID, value)
	}
	return nil
}
func (f *fakeStore) SetTaskHasAttachment(ctx context.Context, taskID int64, value bool) error {
	if f.setTaskHasAttachmentFn != nil {
		return f.setTaskHasAttachmentFn(ctx, taskID, value)
	}
	return nil
}
func (f *fakeStore) InsertTaskComment(ctx context.Context, comment store.TaskComment) (store.TaskComment, error) {
	if f.insertTaskCommentFn != nil {
		return f.insertTaskCommentFn(ctx, comment)
	}
	comment.ID = 1
	return comment, nil
}
func (f *fakeStore) GetTaskComment(ctx context.Context, commentID int64) (store.TaskComment, error) {
	if f.getTaskCommentFn != nil {
		return f.getTaskCommentFn(ctx, commentID)
	}
	return store.TaskComment{}, sql.ErrNoRows
}
func (f *fakeStore) ListTaskComments(ctx context.Context, taskID int64) ([]store.TaskComment, error) {
	if f.listTaskCommentsFn != nil {
		return f.listTaskCommentsFn(ctx, taskID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateTaskComment(ctx context.Context, commentID, ownerID int64, text string) (store.TaskComment, error) {
	if f.updateTaskCommentFn != nil {
		return f.updateTaskCommentFn(ctx, commentID, ownerID, text)
	}
	return store.TaskComment{ID: commentID, UserID: ownerID, Comments: text}, nil
}
func (f *fakeStore) DeleteTaskComment(ctx context.Context, commentID, ownerID int64) (store.TaskComment, int, error) {
	if f.deleteTaskCommentFn != nil {
		return f.deleteTaskCommentFn(ctx, commentID, ownerID)
	}
	return store.TaskComment{ID: commentID, UserID: ownerID}, 0, nil
}
func (f *fakeStore) UpsertTaskAttachment(ctx context.Context, taskID int64, blobName string) (store.TaskAttachment, error) {
	if f.upsertTaskAttachmentFn != nil {
		return f.upsertTaskAttachmentFn(ctx, taskID, blobName)
	}
	return store.TaskAttachment{TaskID: taskID, BlobName: blobName}, nil
}
func (f *fakeStore) GetTaskAttachment(ctx context.Context, taskID int64) (store.TaskAttachment, error) {
	if f.getTaskAttachmentFn != nil {
		return f.getTaskAttachmentFn(ctx, taskID)
	}
	return store.TaskAttachment{}, sql.ErrNoRows
}

// memoryLedger mimics the locked approval counter of the Postgres store.
type memoryLedger struct {
	mu        sync.Mutex
	approved  map[store.ApprovalScope]int
	decisions []store.ApprovalDecision
	stage     string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{approved: map[store.ApprovalScope]int{}, stage: "seller"}
}

func (l *memoryLedger) record(_ context.Context, scope store.ApprovalScope, plan func(int) (store.DecisionPlan, error)) (store.ApprovalDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.approved[scope]
	planned, err := plan(k)
	if err != nil {
		return store.ApprovalDecision{}, err
	}
	decision := planned.Decision
	decision.ID = int64(len(l.decisions) + 1)
	decision.ProjectID = scope.ProjectID
	decision.FileType = scope.FileType
	decision.StageIndex = k
	decision.CreatedAt = time.Now()
	l.decisions = append(l.decisions, decision)
	if decision.Status == store.DecisionApproved {
		l.approved[scope] = k + 1
		l.stage = planned.StageLabel
	}
	return decision, nil
}

func (l *memoryLedger) counts(_ context.Context, scope store.ApprovalScope) (store.ApprovalCounts, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var counts store.ApprovalCounts
	for _, decision := range l.decisions {
		if decision.ProjectID != scope.ProjectID || decision.FileType != scope.FileType {
			continue
		}
		if decision.Status == store.DecisionApproved {
			counts.Approved++
		} else {
			counts.Rejected++
		}
	}
	return counts, nil
}

type fakeBlob struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	uploadErr error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{uploads: map[string][]byte{}}
}

func (b *fakeBlob) Upload(_ context.Context, container, name string, body io.Reader, _ int64, _ string) (string, error) {
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	url := "http://blob.test/" + container + "/" + name
	b.mu.Lock()
	b.uploads[url] = data
	b.mu.Unlock()
	return url, nil
}

func (b *fakeBlob) Open(_ context.Context, blobURL string) (blob.Object, error) {
	b.mu.Lock()
	data, ok := b.uploads[blobURL]
	b.mu.Unlock()
	if !ok {
		return blob.Object{}, errors.New("no such blob")
	}
	_, name, _ := blob.ParseBlobURL(blobURL)
	return blob.Object{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		Name:        name,
	}, nil
}

func (b *fakeBlob) PresignedURL(_ context.Context, container, name string, ttl time.Duration) (string, error) {
	return "http://blob.test/" + container + "/" + name + "?expires=" + ttl.String(), nil
}

type fakeDocGen struct {
	generateMSFn func(context.Context, docgen.Snapshot) (json.RawMessage, error)
	generateRAFn func(context.Context, docgen.RARequest) (json.RawMessage, error)
	equipmentFn  func(context.Context, docgen.EquipmentRequest) (json.RawMessage, error)
	vendorMSFn   func(context.Context, []byte, string, string) error
	vendorRAFn   func(context.Context, []byte) error
	selfLearnFn  func(context.Context, []byte, string, string) (docgen.SelfLearnResult, error)
}

func (d *fakeDocGen) GenerateMS(ctx context.Context, snapshot docgen.Snapshot) (json.RawMessage, error) {
	if d.generateMSFn != nil {
		return d.generateMSFn(ctx, snapshot)
	}
	return json.RawMessage(`{"ok":true}`), nil
}
func (d *fakeDocGen) GenerateRA(ctx context.Context, req docgen.RARequest) (json.RawMessage, error) {
	if d.generateRAFn != nil {
		return d.generateRAFn(ctx, req)
	}
	return json.RawMessage(`{"ok":true}`), nil
}
func (d *fakeDocGen) RecommendEquipment(ctx context.Context, req docgen.EquipmentRequest) (json.RawMessage, error) {
	if d.equipmentFn != nil {
		return d.equipmentFn(ctx, req)
	}
	return json.RawMessage(`{"equipment":"Crane"}`), nil
}
func (d *fakeDocGen) ReadVendorMS(ctx context.Context, file io.Reader, scope, equipment string) error {
	data, _ := io.ReadAll(file)
	if d.vendorMSFn != nil {
		return d.vendorMSFn(ctx, data, scope, equipment)
	}
	return nil
}
func (d *fakeDocGen) ReadVendorRA(ctx context.Context, file io.Reader) error {
	data, _ := io.ReadAll(file)
	if d.vendorRAFn != nil {
		return d.vendorRAFn(ctx, data)
	}
	return nil
}
func (d *fakeDocGen) SelfLearn(ctx context.Context, file io.Reader, filename, contentType string) (docgen.SelfLearnResult, error) {
	data, _ := io.ReadAll(file)
	if d.selfLearnFn != nil {
		return d.selfLearnFn(ctx, data, filename, contentType)
	}
	return docgen.SelfLearnResult{}, docgen.ErrNotRecognized
}

type fakeSearch struct {
	mu        sync.Mutex
	projects  []int64
	stages    []string
	decisions []int64
	searchFn  func(context.Context, search.Query) search.Response
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (f *fakeSearch) IndexProject(id int64, _, _, stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, id)
	f.stages = append(f.stages, stage)
}
func (f *fakeSearch) IndexDecision(id, _ int64, _, _, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, id)
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(ctx, req)
	}
	return &export.Result{Data: []byte("<html></html>"), Filename: "report.html", MimeType: "text/html; charset=utf-8"}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func (c *fakeCache) Get(_ context.Context, name string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.entries[name]
	if !ok {
		return nil, errors.New("miss")
	}
	return body, nil
}

func (c *fakeCache) Set(_ context.Context, name string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string][]byte{}
	}
	c.entries[name] = body
	return nil
}

const testTemplate = `{
	"OffSiteFixed": {"Permits": ["Are permits approved?"]},
	"OnSiteFixed": {"Briefing": ["Was the toolbox talk held?"]},
	"Lifting": {"Rigging": ["Are slings certified?"], "Crane": ["Is the crane inspected?"]},
	"Transportation": {"Route": ["Is the route surveyed?"]},
	"Forklift": {"Operator": ["Is the operator licensed?"]}
}`

const testSecret = "test-secret"

func newTestService(fs *fakeStore, deps Dependencies) *Service {
	cfg := config.Config{
		JWTSecret:        testSecret,
		AccessTTL:        time.Hour,
		TemplateName:     "default",
		BlobURLTTL:       time.Minute,
		DocGenTimeout:    time.Second,
		SelfLearnTimeout: time.Second,
	}
	if len(deps.Workflow.Steps) == 0 {
		deps.Workflow = workflow.FourRole()
	}
	svc := New(cfg, fs, deps)
	svc.runDetached = func(_ string, timeout time.Duration, fn func(context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = fn(ctx)
	}
	return svc
}
