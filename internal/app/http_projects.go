package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, session Session, action string) {
	ctx := r.Context()
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodGet && action == "list":
		projects, err := s.service.ListProjectsForUser(ctx, session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)

	case r.Method == http.MethodGet && action == "search":
		limit, _ := strconv.Atoi(query.Get("limit"))
		response, err := s.service.SearchProjects(ctx, query.Get("q"), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	case r.Method == http.MethodPost && action == "equipment":
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		reply, err := s.service.RecommendEquipment(ctx, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(reply)

	case r.Method == http.MethodGet && action == "stakeholders":
		users, err := s.service.ListUsers(ctx)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)

	case r.Method == http.MethodPost && action == "new":
		var body NewProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.NewProject(ctx, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodPost && action == "update-stage":
		var body struct {
			ProjectID jsonID `json:"projectid"`
			Stage     string `json:"stage"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangeProjectStage(ctx, int64(body.ProjectID), body.Stage); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Project stage updated successfully",
			"projectid": int64(body.ProjectID),
			"stage":     body.Stage,
		})

	case r.Method == http.MethodPost && action == "save":
		s.handleSaveProject(w, r)

	case r.Method == http.MethodPost && action == "generate-docs":
		var body struct {
			ProjectID jsonID `json:"projectid"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		docs, err := s.service.GenerateDocuments(ctx, int64(body.ProjectID))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, docs)

	case r.Method == http.MethodGet && action == "get-project-scope":
		categories, err := s.service.GetScopeCategories(ctx, queryID(query, "projectid"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, categories)

	case r.Method == http.MethodPost && action == "generate-checklist":
		var body struct {
			ProjectID jsonID `json:"projectid"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		tasks, err := s.service.GenerateChecklist(ctx, int64(body.ProjectID))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":      "Checklist generated and inserted successfully",
			"insertedData": tasks,
		})

	case r.Method == http.MethodPost && action == "update-checklist-completion":
		var body struct {
			TaskID jsonID `json:"taskid"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ToggleTaskCompletion(ctx, int64(body.TaskID))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodGet && action == "get-project-checklist":
		view, err := s.service.GetProjectChecklist(ctx, queryID(query, "projectid"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodGet && action == "get-task-comments":
		comments, err := s.service.ListTaskComments(ctx, queryID(query, "taskid"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comments)

	case r.Method == http.MethodPost && action == "add-task-comments":
		var body struct {
			TaskID    jsonID `json:"taskid"`
			ProjectID jsonID `json:"projectid"`
			Comments  string `json:"comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.AddComment(ctx, CommentInput{
			TaskID:    int64(body.TaskID),
			ProjectID: int64(body.ProjectID),
			UserID:    session.UserID,
			Text:      body.Comments,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)

	case r.Method == http.MethodPost && action == "update-task-comments":
		var body struct {
			CommentID jsonID `json:"commentid"`
			Comments  string `json:"comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.EditComment(ctx, int64(body.CommentID), session.UserID, body.Comments)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comment)

	case r.Method == http.MethodDelete && action == "delete-task-comments":
		comment, err := s.service.DeleteComment(ctx, queryID(query, "commentid"), queryID(query, "taskid"), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Comment deleted successfully",
			"comment": comment,
		})

	case r.Method == http.MethodGet && action == "get-blob-url":
		attachment, err := s.service.GetAttachmentURL(ctx, queryID(query, "taskid"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attachment)

	case r.Method == http.MethodPost && action == "update-blob-url":
		var body struct {
			TaskID   jsonID `json:"taskid"`
			BlobName string `json:"blobname"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		attachment, err := s.service.AttachFile(ctx, int64(body.TaskID), body.BlobName)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attachment)

	case r.Method == http.MethodPost && action == "upload-blob":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
			return
		}
		file, err := readFormFile(r, "file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "No file uploaded", nil)
			return
		}
		taskID, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("taskid")), 10, 64)
		attachment, err := s.service.UploadAttachment(ctx, taskID, file)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attachment)

	case r.Method == http.MethodPost && action == "submit-feedback":
		var body struct {
			ProjectID jsonID `json:"projectid"`
			Role      string `json:"role"`
			Comments  string `json:"comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err := s.service.SubmitFeedback(ctx, FeedbackInput{
			ProjectID: int64(body.ProjectID),
			UserID:    session.UserID,
			Role:      body.Role,
			Comments:  body.Comments,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Submitted Successfully"})

	case r.Method == http.MethodGet && action == "stakeholder-comments":
		comments, err := s.service.StakeholderComments(ctx, queryID(query, "projectid"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comments)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return
	}
	projectID, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("projectid")), 10, 64)
	scope, err := parseScopeFields(r.MultipartForm.Value["scope"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", nil)
		return
	}
	vendorMS, err := optionalFormFile(r, "VendorMS")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid VendorMS file", nil)
		return
	}
	vendorRA, err := optionalFormFile(r, "VendorRA")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid VendorRA file", nil)
		return
	}

	err = s.service.SaveProjectScope(r.Context(), SaveScopeInput{
		ProjectID: projectID,
		Scope:     scope,
		VendorMS:  vendorMS,
		VendorRA:  vendorRA,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Project scope updated and Document Readers ran successfully"})
}

// parseScopeFields flattens the scope form values. Each value is either a
// JSON array of items or a single item.
func parseScopeFields(values []string) ([]ScopeInput, error) {
	var out []ScopeInput
	for _, value := range values {
		trimmed := bytes.TrimSpace([]byte(value))
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] == '[' {
			var items []ScopeInput
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return nil, err
			}
			out = append(out, items...)
			continue
		}
		var item ScopeInput
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, errors.New("scope is empty")
	}
	return out, nil
}
