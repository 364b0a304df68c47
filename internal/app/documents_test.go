package app

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"sync"
	"testing"

	"logiflow/api/internal/docgen"
	"logiflow/api/internal/store"
)

// versionedStore keeps document versions in memory, numbering them the way
// the Postgres insert does.
type versionedStore struct {
	mu   sync.Mutex
	docs []store.DocumentVersion
}

func (v *versionedStore) insert(_ context.Context, doc store.DocumentVersion) (store.DocumentVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := 1
	for _, existing := range v.docs {
		if existing.ProjectID == doc.ProjectID && existing.FileType == doc.FileType && existing.Version >= next {
			next = existing.Version + 1
		}
	}
	doc.ID = int64(len(v.docs) + 1)
	doc.Version = next
	v.docs = append(v.docs, doc)
	return doc, nil
}

func (v *versionedStore) get(_ context.Context, projectID int64, fileType string, version int) (store.DocumentVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, doc := range v.docs {
		if doc.ProjectID == projectID && doc.FileType == fileType && doc.Version == version {
			return doc, nil
		}
	}
	return store.DocumentVersion{}, sql.ErrNoRows
}

func pdfUpload(name, body string) UploadedFile {
	return UploadedFile{Filename: name, ContentType: "application/pdf", Data: []byte(body)}
}

func TestRecordUploadNumbersVersionsSequentially(t *testing.T) {
	versions := &versionedStore{}
	fs := &fakeStore{
		insertDocumentVersionFn: versions.insert,
		getDocumentVersionFn:    versions.get,
	}
	blobs := newFakeBlob()
	svc := newTestService(fs, Dependencies{Blob: blobs})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		doc, err := svc.RecordUpload(ctx, UploadInput{ProjectID: 1, FileType: "RA", UploaderID: 2, File: pdfUpload("risk.PDF", "v")})
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		if doc.Version != i {
			t.Fatalf("upload %d got version %d", i, doc.Version)
		}
		if !strings.Contains(doc.BlobURL, "/generated-ra/RA_") || !strings.HasSuffix(doc.BlobURL, ".pdf") {
			t.Fatalf("unexpected blob url %q", doc.BlobURL)
		}
	}
}

func TestDownloadRefsAreDistinctPerVersion(t *testing.T) {
	versions := &versionedStore{}
	fs := &fakeStore{
		insertDocumentVersionFn: versions.insert,
		getDocumentVersionFn:    versions.get,
	}
	svc := newTestService(fs, Dependencies{Blob: newFakeBlob()})
	ctx := context.Background()

	for _, body := range []string{"first", "second"} {
		if _, err := svc.RecordUpload(ctx, UploadInput{ProjectID: 1, FileType: "MS", File: pdfUpload("ms.pdf", body)}); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	first, err := svc.GetDownloadRef(ctx, 1, "MS", 1)
	if err != nil {
		t.Fatalf("download v1: %v", err)
	}
	second, err := svc.GetDownloadRef(ctx, 1, "MS", 2)
	if err != nil {
		t.Fatalf("download v2: %v", err)
	}
	if first.Version.BlobURL == second.Version.BlobURL {
		t.Fatalf("versions share blob ref %q", first.Version.BlobURL)
	}

	_, err = svc.GetDownloadRef(ctx, 1, "MS", 3)
	domainErr := requireDomainStatus(t, err, http.StatusNotFound)
	if domainErr.Message != "No such file found" {
		t.Fatalf("unexpected message %q", domainErr.Message)
	}
}

func TestRecordUploadValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{Blob: newFakeBlob()})
	tests := []struct {
		name  string
		input UploadInput
	}{
		{name: "missing project", input: UploadInput{FileType: "MS", File: pdfUpload("a.pdf", "x")}},
		{name: "bad type", input: UploadInput{ProjectID: 1, FileType: "DOC", File: pdfUpload("a.pdf", "x")}},
		{name: "empty file", input: UploadInput{ProjectID: 1, FileType: "MS"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordUpload(context.Background(), tt.input)
			requireDomainStatus(t, err, http.StatusBadRequest)
		})
	}
}

func TestRecordUploadFeedsSelfLearningReader(t *testing.T) {
	var stored store.MSReaderEntry
	fs := &fakeStore{
		upsertMSReaderFn: func(_ context.Context, entry store.MSReaderEntry) error {
			stored = entry
			return nil
		},
	}
	var learnedName string
	gen := &fakeDocGen{
		selfLearnFn: func(_ context.Context, data []byte, filename, _ string) (docgen.SelfLearnResult, error) {
			learnedName = filename
			if string(data) != "method" {
				t.Fatalf("self-learn got %q", data)
			}
			return docgen.SelfLearnResult{EquipmentName: "300 ton mobile crane", ProcedureSteps: []byte(`["rig","lift"]`)}, nil
		},
	}
	svc := newTestService(fs, Dependencies{Blob: newFakeBlob(), DocGen: gen})

	doc, err := svc.RecordUpload(context.Background(), UploadInput{ProjectID: 1, FileType: "MS", File: pdfUpload("ms.pdf", "method")})
	if err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if !strings.HasSuffix(doc.BlobURL, learnedName) {
		t.Fatalf("self-learn filename %q does not match blob %q", learnedName, doc.BlobURL)
	}
	if stored.Scope != "Lifting" || stored.Equipment != "ton mobile crane" {
		t.Fatalf("unexpected reader entry %+v", stored)
	}
}

func TestRecordUploadIgnoresSelfLearnFailures(t *testing.T) {
	gen := &fakeDocGen{
		selfLearnFn: func(context.Context, []byte, string, string) (docgen.SelfLearnResult, error) {
			return docgen.SelfLearnResult{}, &docgen.StatusError{Endpoint: "selflearn", StatusCode: 500}
		},
	}
	svc := newTestService(&fakeStore{}, Dependencies{Blob: newFakeBlob(), DocGen: gen})
	if _, err := svc.RecordUpload(context.Background(), UploadInput{ProjectID: 1, FileType: "MS", File: pdfUpload("ms.pdf", "x")}); err != nil {
		t.Fatalf("upload should succeed despite self-learn failure: %v", err)
	}
}

func TestReaderEntry(t *testing.T) {
	tests := []struct {
		name      string
		equipment string
		scope     string
		key       string
	}{
		{name: "crane", equipment: "500 ton crawler crane", scope: "Lifting", key: "ton crawler crane"},
		{name: "trailer", equipment: "12 axle trailer", scope: "Transportation", key: "axle trailer"},
		{name: "single word", equipment: "Crane", scope: "Transportation", key: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := readerEntry(docgen.SelfLearnResult{EquipmentName: tt.equipment})
			if entry.Scope != tt.scope || entry.Equipment != tt.key {
				t.Fatalf("readerEntry(%q) = %+v", tt.equipment, entry)
			}
		})
	}
}

func TestListDocumentVersions(t *testing.T) {
	var gotType string
	fs := &fakeStore{
		listDocumentVersionsFn: func(_ context.Context, _ int64, fileType string) ([]store.DocumentVersion, error) {
			gotType = fileType
			return nil, nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	versions, err := svc.ListDocumentVersions(context.Background(), 1, " RA ")
	if err != nil {
		t.Fatalf("ListDocumentVersions: %v", err)
	}
	if versions == nil || len(versions) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", versions)
	}
	if gotType != "RA" {
		t.Fatalf("file type passed as %q", gotType)
	}

	_, err = svc.ListDocumentVersions(context.Background(), 1, "PDF")
	requireDomainStatus(t, err, http.StatusBadRequest)
}
