package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"logiflow/api/internal/blob"
	"logiflow/api/internal/docgen"
	"logiflow/api/internal/store"
	"logiflow/api/internal/util"
)

// UploadedFile is a multipart file already read into memory.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type UploadInput struct {
	ProjectID  int64
	FileType   string
	UploaderID int64
	File       UploadedFile
}

// DownloadRef is an opened document ready to be streamed.
type DownloadRef struct {
	Version store.DocumentVersion
	Object  blob.Object
}

func containerFor(fileType string) string {
	if fileType == FileTypeRA {
		return blob.ContainerRA
	}
	return blob.ContainerMS
}

// RecordUpload stores a new version of a generated document. For method
// statements the self-learning reader is fed a copy afterwards; its outcome
// never changes the response.
func (s *Service) RecordUpload(ctx context.Context, input UploadInput) (store.DocumentVersion, error) {
	fileType := strings.TrimSpace(input.FileType)
	if input.ProjectID <= 0 || fileType == "" {
		return store.DocumentVersion{}, validationError("All fields are required")
	}
	if !validFileType(fileType) {
		return store.DocumentVersion{}, validationError("Invalid file type")
	}
	if len(input.File.Data) == 0 {
		return store.DocumentVersion{}, validationError("No file uploaded")
	}
	if s.blob == nil {
		return store.DocumentVersion{}, unavailableError("BLOB_UNAVAILABLE", "Blob storage is not configured")
	}
	if _, err := s.requireProject(ctx, input.ProjectID); err != nil {
		return store.DocumentVersion{}, err
	}

	blobName := util.NewBlobName(fileType, input.File.Filename)
	blobURL, err := s.blob.Upload(ctx, containerFor(fileType), blobName, bytes.NewReader(input.File.Data), int64(len(input.File.Data)), input.File.ContentType)
	if err != nil {
		return store.DocumentVersion{}, infraError("Failed to upload file", err)
	}

	version, err := s.store.InsertDocumentVersion(ctx, store.DocumentVersion{
		ProjectID:  input.ProjectID,
		FileType:   fileType,
		BlobURL:    blobURL,
		UploadedBy: input.UploaderID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DocumentVersion{}, notFoundError("Project not found")
		}
		return store.DocumentVersion{}, infraError("Failed to record file version", err)
	}

	if fileType == FileTypeMS && s.docgen != nil {
		file := input.File
		file.Filename = blobName
		s.runDetached("selflearn", s.config.SelfLearnTimeout, func(ctx context.Context) error {
			return s.learnMethodStatement(ctx, file)
		})
	}
	return version, nil
}

func (s *Service) learnMethodStatement(ctx context.Context, file UploadedFile) error {
	result, err := s.docgen.SelfLearn(ctx, bytes.NewReader(file.Data), file.Filename, file.ContentType)
	if err != nil {
		if errors.Is(err, docgen.ErrNotRecognized) || errors.Is(err, docgen.ErrNotConfigured) {
			return nil
		}
		return err
	}
	entry := readerEntry(result)
	if entry.Equipment == "" {
		return nil
	}
	if err := s.store.UpsertMSReader(ctx, entry); err != nil {
		return fmt.Errorf("store procedure for %q: %w", entry.Equipment, err)
	}
	return nil
}

// readerEntry keys a learned procedure. The reader prefixes the equipment
// name with its capacity class, which is dropped.
func readerEntry(result docgen.SelfLearnResult) store.MSReaderEntry {
	words := strings.Fields(result.EquipmentName)
	equipment := ""
	if len(words) > 1 {
		equipment = strings.Join(words[1:], " ")
	}
	scope := "Transportation"
	if strings.Contains(strings.ToLower(equipment), "crane") {
		scope = "Lifting"
	}
	return store.MSReaderEntry{Scope: scope, Equipment: equipment, Procedure: result.ProcedureSteps}
}

func (s *Service) GetDownloadRef(ctx context.Context, projectID int64, fileType string, version int) (DownloadRef, error) {
	fileType = strings.TrimSpace(fileType)
	if projectID <= 0 || fileType == "" || version <= 0 {
		return DownloadRef{}, validationError("All fields are required")
	}
	doc, err := s.store.GetDocumentVersion(ctx, projectID, fileType, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DownloadRef{}, notFoundError("No such file found")
		}
		return DownloadRef{}, infraError("Failed to load file version", err)
	}
	if s.blob == nil {
		return DownloadRef{}, unavailableError("BLOB_UNAVAILABLE", "Blob storage is not configured")
	}
	object, err := s.blob.Open(ctx, doc.BlobURL)
	if err != nil {
		return DownloadRef{}, infraError("Failed to open file", err)
	}
	return DownloadRef{Version: doc, Object: object}, nil
}

func (s *Service) ListDocumentVersions(ctx context.Context, projectID int64, fileType string) ([]store.DocumentVersion, error) {
	if projectID <= 0 {
		return nil, validationError("projectid is required")
	}
	fileType = strings.TrimSpace(fileType)
	if fileType != "" && !validFileType(fileType) {
		return nil, validationError("Invalid file type")
	}
	versions, err := s.store.ListDocumentVersions(ctx, projectID, fileType)
	if err != nil {
		return nil, infraError("Failed to list file versions", err)
	}
	if versions == nil {
		versions = []store.DocumentVersion{}
	}
	return versions, nil
}
