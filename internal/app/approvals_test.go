package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"logiflow/api/internal/export"
	"logiflow/api/internal/store"
	"logiflow/api/internal/workflow"
)

// rolesByUser wires a stakeholder lookup where user ids map to roles.
func rolesByUser(roles map[int64]string) func(context.Context, int64, int64) (string, bool, error) {
	return func(_ context.Context, _ int64, userID int64) (string, bool, error) {
		role, ok := roles[userID]
		return role, ok, nil
	}
}

func ledgerStore(ledger *memoryLedger, roles map[int64]string) *fakeStore {
	return &fakeStore{
		getStakeholderRoleFn: rolesByUser(roles),
		recordDecisionFn:     ledger.record,
		countDecisionsFn:     ledger.counts,
	}
}

func requireDomainStatus(t *testing.T, err error, status int) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError with status %d, got %v", status, err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, domainErr.Status, domainErr.Message)
	}
	return domainErr
}

func TestFourRoleScenarioReachesFinalStage(t *testing.T) {
	ledger := newMemoryLedger()
	roles := map[int64]string{1: "HSEOfficer", 2: "Operations", 3: "ProjectManager", 4: "Head"}
	searchIndex := &fakeSearch{}
	svc := newTestService(ledgerStore(ledger, roles), Dependencies{Search: searchIndex})
	ctx := context.Background()

	for i, userID := range []int64{1, 2, 3, 4} {
		result, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 7, UserID: userID, FileType: "MS", Status: store.DecisionApproved})
		if err != nil {
			t.Fatalf("approval %d: %v", i+1, err)
		}
		if result.Stage != i+1 {
			t.Fatalf("approval %d: stage = %d, want %d", i+1, result.Stage, i+1)
		}
		counts, _ := ledger.counts(ctx, store.ApprovalScope{ProjectID: 7, FileType: "MS"})
		if counts.Approved != result.Stage {
			t.Fatalf("stage %d does not match approved count %d", result.Stage, counts.Approved)
		}
	}
	if ledger.stage != "Approved - Mr. Jeong" {
		t.Fatalf("project stage = %q", ledger.stage)
	}

	_, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 7, UserID: 4, FileType: "MS", Status: store.DecisionApproved})
	domainErr := requireDomainStatus(t, err, http.StatusForbidden)
	if domainErr.Message != "Approval workflow already complete" {
		t.Fatalf("unexpected message %q", domainErr.Message)
	}
	if len(searchIndex.decisions) != 4 {
		t.Fatalf("expected 4 indexed decisions, got %d", len(searchIndex.decisions))
	}
}

func TestApprovalReindexesProjectStage(t *testing.T) {
	ledger := newMemoryLedger()
	fs := ledgerStore(ledger, map[int64]string{1: "HSEOfficer", 2: "Operations"})
	fs.getProjectFn = func(_ context.Context, id int64) (store.Project, error) {
		ledger.mu.Lock()
		defer ledger.mu.Unlock()
		return store.Project{ID: id, Name: "Harbour lift", Client: "Acme", Stage: ledger.stage}, nil
	}
	searchIndex := &fakeSearch{}
	svc := newTestService(fs, Dependencies{Search: searchIndex})
	ctx := context.Background()

	if _, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 7, UserID: 1, FileType: "MS", Status: store.DecisionApproved}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 7, UserID: 2, FileType: "MS", Status: store.DecisionRejected, Comments: "redo"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if len(searchIndex.projects) != 1 || searchIndex.projects[0] != 7 {
		t.Fatalf("expected only the approval to reindex the project, got %v", searchIndex.projects)
	}
	if searchIndex.stages[0] != "Approved - HSE" {
		t.Fatalf("indexed stale stage %q", searchIndex.stages[0])
	}
	if len(searchIndex.decisions) != 2 {
		t.Fatalf("expected both decisions indexed, got %d", len(searchIndex.decisions))
	}
}

func TestSubmitDecisionRejectsOutOfTurnRoles(t *testing.T) {
	roles := map[int64]string{1: "HSEOfficer", 2: "Operations", 3: "ProjectManager", 4: "Head", 5: "Client"}
	tests := []struct {
		name     string
		approved []int64
		caller   int64
		expected string
	}{
		{name: "operations before hse", caller: 2, expected: "Only HSEOfficer can proceed"},
		{name: "head before hse", caller: 4, expected: "Only HSEOfficer can proceed"},
		{name: "client at stage one", approved: []int64{1}, caller: 5, expected: "Only Operations can proceed"},
		{name: "hse twice", approved: []int64{1}, caller: 1, expected: "Only Operations can proceed"},
		{name: "pm skips operations", approved: []int64{1}, caller: 3, expected: "Only Operations can proceed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			svc := newTestService(ledgerStore(ledger, roles), Dependencies{})
			ctx := context.Background()
			for _, userID := range tt.approved {
				if _, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 1, UserID: userID, FileType: "RA", Status: store.DecisionApproved}); err != nil {
					t.Fatalf("setup approval by %d: %v", userID, err)
				}
			}
			_, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 1, UserID: tt.caller, FileType: "RA", Status: store.DecisionApproved})
			domainErr := requireDomainStatus(t, err, http.StatusForbidden)
			if domainErr.Message != tt.expected {
				t.Fatalf("message = %q, want %q", domainErr.Message, tt.expected)
			}
			if got := ledger.approved[store.ApprovalScope{ProjectID: 1, FileType: "RA"}]; got != len(tt.approved) {
				t.Fatalf("approved count changed to %d", got)
			}
		})
	}
}

func TestRejectionsKeepStageAtZero(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledgerStore(ledger, map[int64]string{1: "HSEOfficer"}), Dependencies{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := svc.SubmitDecision(ctx, DecisionInput{ProjectID: 2, UserID: 1, FileType: "MS", Status: store.DecisionRejected, Comments: "missing lift plan"})
		if err != nil {
			t.Fatalf("rejection %d: %v", i+1, err)
		}
		if result.Stage != 0 {
			t.Fatalf("rejection %d moved stage to %d", i+1, result.Stage)
		}
		if result.NextRole != workflow.RoleHSEOfficer {
			t.Fatalf("next role = %q", result.NextRole)
		}
	}
	counts, _ := ledger.counts(ctx, store.ApprovalScope{ProjectID: 2, FileType: "MS"})
	if counts.Rejected != 3 || counts.Approved != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if ledger.stage != "seller" {
		t.Fatalf("rejection changed project stage to %q", ledger.stage)
	}
}

func TestSubmitDecisionValidatesBeforeStoreAccess(t *testing.T) {
	fs := &fakeStore{
		getStakeholderRoleFn: func(context.Context, int64, int64) (string, bool, error) {
			t.Fatal("store should not be reached")
			return "", false, nil
		},
	}
	svc := newTestService(fs, Dependencies{})
	tests := []struct {
		name  string
		input DecisionInput
	}{
		{name: "missing project", input: DecisionInput{FileType: "MS", Status: store.DecisionApproved}},
		{name: "bad status", input: DecisionInput{ProjectID: 1, FileType: "MS", Status: "Maybe"}},
		{name: "bad file type", input: DecisionInput{ProjectID: 1, FileType: "PDF", Status: store.DecisionApproved}},
		{name: "rejection without comments", input: DecisionInput{ProjectID: 1, FileType: "MS", Status: store.DecisionRejected, Comments: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitDecision(context.Background(), tt.input)
			requireDomainStatus(t, err, http.StatusBadRequest)
		})
	}
}

func TestSubmitDecisionRequiresStakeholder(t *testing.T) {
	svc := newTestService(ledgerStore(newMemoryLedger(), map[int64]string{}), Dependencies{})
	_, err := svc.SubmitDecision(context.Background(), DecisionInput{ProjectID: 1, UserID: 9, FileType: "MS", Status: store.DecisionApproved})
	domainErr := requireDomainStatus(t, err, http.StatusForbidden)
	if domainErr.Message != "You are not a stakeholder for this project." {
		t.Fatalf("unexpected message %q", domainErr.Message)
	}
}

func TestSubmitDecisionConcurrentApprovalsAdvanceOnce(t *testing.T) {
	ledger := newMemoryLedger()
	roles := map[int64]string{1: "HSEOfficer", 2: "hseofficer"}
	svc := newTestService(ledgerStore(ledger, roles), Dependencies{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			_, errs[i] = svc.SubmitDecision(context.Background(), DecisionInput{ProjectID: 3, UserID: userID, FileType: "MS", Status: store.DecisionApproved})
		}(i, userID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one approval, got %d (%v)", succeeded, errs)
	}
	if got := ledger.approved[store.ApprovalScope{ProjectID: 3, FileType: "MS"}]; got != 1 {
		t.Fatalf("approved count = %d", got)
	}
}

func TestThreeRoleWorkflowIgnoresFileType(t *testing.T) {
	ledger := newMemoryLedger()
	roles := map[int64]string{1: "HSEOfficer", 2: "ProjectManager", 3: "Head"}
	svc := newTestService(ledgerStore(ledger, roles), Dependencies{Workflow: workflow.ThreeRole()})

	for _, userID := range []int64{1, 2, 3} {
		if _, err := svc.SubmitDecision(context.Background(), DecisionInput{ProjectID: 4, UserID: userID, Status: store.DecisionApproved}); err != nil {
			t.Fatalf("approval by %d: %v", userID, err)
		}
	}
	if got := ledger.approved[store.ApprovalScope{ProjectID: 4}]; got != 3 {
		t.Fatalf("project-scoped approved count = %d", got)
	}
}

func TestGetApprovalSummary(t *testing.T) {
	fs := &fakeStore{
		countDecisionsFn: func(_ context.Context, scope store.ApprovalScope) (store.ApprovalCounts, error) {
			if scope.FileType != "MS" {
				t.Fatalf("unexpected scope %+v", scope)
			}
			return store.ApprovalCounts{Approved: 2, Rejected: 2}, nil
		},
		listRejectionsFn: func(context.Context, store.ApprovalScope) ([]store.RejectionDetail, error) {
			return []store.RejectionDetail{
				{UserID: 1, Role: "HSEOfficer", Comments: "fix rigging"},
				{UserID: 9, Comments: "left the project"},
			}, nil
		},
		countDocumentVersionsFn: func(context.Context, int64) (map[string]int, error) {
			return map[string]int{"MS": 3, "RA": 1}, nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	summary, err := svc.GetApprovalSummary(context.Background(), 5, "MS")
	if err != nil {
		t.Fatalf("GetApprovalSummary: %v", err)
	}
	if summary.Approvals != 2 || summary.Rejections != 2 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.MSVersions != 3 || summary.RAVersions != 1 {
		t.Fatalf("unexpected versions %+v", summary)
	}
	if summary.CurrentStage != 2 || summary.NextRole != workflow.RoleProjectManager {
		t.Fatalf("unexpected stage %d next %q", summary.CurrentStage, summary.NextRole)
	}
	if len(summary.RejectionDetails) != 2 || summary.RejectionDetails[1].Role != "Unknown" {
		t.Fatalf("unexpected rejection details %+v", summary.RejectionDetails)
	}
}

func TestGetApprovalSummaryWithoutFileTypeCoversBothScopes(t *testing.T) {
	counts := map[string]store.ApprovalCounts{
		"MS": {Approved: 2, Rejected: 1},
		"RA": {Approved: 1},
	}
	fs := &fakeStore{
		countDecisionsFn: func(_ context.Context, scope store.ApprovalScope) (store.ApprovalCounts, error) {
			return counts[scope.FileType], nil
		},
		listRejectionsFn: func(_ context.Context, scope store.ApprovalScope) ([]store.RejectionDetail, error) {
			if scope.FileType != "MS" {
				return nil, nil
			}
			return []store.RejectionDetail{{UserID: 2, Role: "Operations", Comments: "missing lift plan"}}, nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	summary, err := svc.GetApprovalSummary(context.Background(), 5, "")
	if err != nil {
		t.Fatalf("GetApprovalSummary: %v", err)
	}
	if summary.Approvals != 3 || summary.Rejections != 1 || len(summary.RejectionDetails) != 1 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.CurrentStage != 1 || summary.NextRole != workflow.RoleOperations {
		t.Fatalf("expected least advanced scope, got stage %d next %q", summary.CurrentStage, summary.NextRole)
	}
	if ms := summary.Scopes["MS"]; ms.CurrentStage != 2 || ms.NextRole != workflow.RoleProjectManager {
		t.Fatalf("unexpected MS scope %+v", ms)
	}
	if ra := summary.Scopes["RA"]; ra.Approvals != 1 || ra.Rejections != 0 {
		t.Fatalf("unexpected RA scope %+v", ra)
	}

	single, err := svc.GetApprovalSummary(context.Background(), 5, "RA")
	if err != nil {
		t.Fatalf("GetApprovalSummary RA: %v", err)
	}
	if single.Scopes != nil || single.Approvals != 1 {
		t.Fatalf("single scope summary should not break down scopes: %+v", single)
	}

	_, err = svc.GetApprovalSummary(context.Background(), 5, "DOCX")
	requireDomainStatus(t, err, http.StatusBadRequest)
}

func TestExportApprovalReport(t *testing.T) {
	t.Run("unavailable without exporter", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, Dependencies{})
		_, err := svc.ExportApprovalReport(context.Background(), 1, "html")
		requireDomainStatus(t, err, http.StatusServiceUnavailable)
	})

	t.Run("pdf without chromium", func(t *testing.T) {
		exporter := &fakeExporter{exportFn: func(context.Context, export.Request) (*export.Result, error) {
			return nil, export.ErrPDFDependencyMissing
		}}
		svc := newTestService(&fakeStore{}, Dependencies{Exporter: exporter})
		_, err := svc.ExportApprovalReport(context.Background(), 1, "pdf")
		domainErr := requireDomainStatus(t, err, http.StatusServiceUnavailable)
		if domainErr.Code != "EXPORT_UNAVAILABLE" {
			t.Fatalf("code = %q", domainErr.Code)
		}
	})

	t.Run("html defaults", func(t *testing.T) {
		var got export.Request
		exporter := &fakeExporter{exportFn: func(_ context.Context, req export.Request) (*export.Result, error) {
			got = req
			return &export.Result{Data: []byte("<html></html>"), Filename: "report.html", MimeType: "text/html"}, nil
		}}
		svc := newTestService(&fakeStore{}, Dependencies{Exporter: exporter})
		if _, err := svc.ExportApprovalReport(context.Background(), 6, ""); err != nil {
			t.Fatalf("ExportApprovalReport: %v", err)
		}
		if got.ProjectID != 6 || got.Format != export.FormatHTML {
			t.Fatalf("unexpected request %+v", got)
		}
	})
}
