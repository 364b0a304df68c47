package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"logiflow/api/internal/blob"
	"logiflow/api/internal/checklist"
	"logiflow/api/internal/store"
	"logiflow/api/internal/util"
)

const templateErrorMessage = "Invalid or missing checklist template."

type ToggleResult struct {
	Task    TaskView `json:"task"`
	Message string   `json:"message"`
}

type AttachmentURL struct {
	TaskID   int64  `json:"taskid"`
	BlobName string `json:"blobname"`
	URL      string `json:"url"`
}

// loadTemplate reads the checklist template through the cache. Cache errors
// fall through to Postgres.
func (s *Service) loadTemplate(ctx context.Context) (*checklist.Node, error) {
	name := s.config.TemplateName
	if name == "" {
		name = "default"
	}

	if s.cache != nil {
		body, err := s.cache.Get(ctx, name)
		if err == nil {
			if node, parseErr := checklist.ParseTemplate(body); parseErr == nil {
				return node, nil
			}
		}
	}

	body, err := s.store.GetChecklistTemplate(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, infraError(templateErrorMessage, checklist.ErrMalformedTemplate)
		}
		return nil, infraError(templateErrorMessage, err)
	}
	node, err := checklist.ParseTemplate(body)
	if err != nil {
		return nil, infraError(templateErrorMessage, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, name, body); err != nil {
			log.Printf("cache: store template %q: %v", name, err)
		}
	}
	return node, nil
}

// GenerateChecklist creates the project's tasks from the template filtered by
// its scope. Running it again adds nothing.
func (s *Service) GenerateChecklist(ctx context.Context, projectID int64) ([]TaskView, error) {
	if projectID <= 0 {
		return nil, validationError("projectid is required")
	}
	template, err := s.loadTemplate(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListScope(ctx, projectID)
	if err != nil {
		return nil, infraError("Failed to load project scope", err)
	}
	works := make([]string, 0, len(items))
	for _, item := range items {
		works = append(works, item.Work)
	}
	categories := checklist.ApplicableCategories(works)
	if len(categories) == 0 {
		return nil, validationError("Project scope has no Lifting, Transportation or Forklift work")
	}

	filtered, err := checklist.Filter(template, categories)
	if err != nil {
		return nil, infraError(templateErrorMessage, err)
	}
	pairs := checklist.Pairs(filtered)
	tasks := make([]store.ChecklistTask, 0, len(pairs))
	for _, pair := range pairs {
		tasks = append(tasks, store.ChecklistTask{ProjectID: projectID, Type: pair.Type, Subtype: pair.Subtype})
	}
	if _, err := s.store.InsertChecklistTasks(ctx, projectID, tasks); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("Project not found")
		}
		return nil, infraError("Failed to insert checklist", err)
	}

	stored, err := s.store.ListChecklistTasks(ctx, projectID)
	if err != nil {
		return nil, infraError("Failed to load checklist", err)
	}
	if len(stored) == 0 {
		return nil, infraError("Checklist generation produced no tasks", nil)
	}
	out := make([]TaskView, 0, len(stored))
	for _, task := range stored {
		out = append(out, taskView(task))
	}
	return out, nil
}

func (s *Service) GetProjectChecklist(ctx context.Context, projectID int64) (checklist.View, error) {
	if projectID <= 0 {
		return nil, validationError("projectid is required")
	}
	tasks, err := s.store.ListChecklistTasks(ctx, projectID)
	if err != nil {
		return nil, infraError("Failed to load checklist", err)
	}
	if len(tasks) == 0 {
		return nil, notFoundError("No checklist found for the specified project.")
	}
	template, err := s.loadTemplate(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]checklist.TaskState, 0, len(tasks))
	for _, task := range tasks {
		states = append(states, checklist.TaskState{
			TaskID:        task.ID,
			Type:          task.Type,
			Subtype:       task.Subtype,
			Completed:     task.Completed,
			HasComments:   task.HasComments,
			HasAttachment: task.HasAttachment,
		})
	}
	filtered, err := checklist.Filter(template, checklist.TaskCategories(states))
	if err != nil {
		return nil, infraError(templateErrorMessage, err)
	}
	return checklist.Overlay(filtered, states), nil
}

func (s *Service) ToggleTaskCompletion(ctx context.Context, taskID int64) (ToggleResult, error) {
	if taskID <= 0 {
		return ToggleResult{}, validationError("taskid is required")
	}
	task, err := s.store.ToggleChecklistTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ToggleResult{}, notFoundError("Checklist entry not found.")
		}
		return ToggleResult{}, infraError("Failed to update checklist", err)
	}
	state := "completed"
	if !task.Completed {
		state = "not completed"
	}
	return ToggleResult{
		Task:    taskView(task),
		Message: fmt.Sprintf("Checklist task %d marked as %s.", task.ID, state),
	}, nil
}

func (s *Service) ListTaskComments(ctx context.Context, taskID int64) ([]CommentView, error) {
	if taskID <= 0 {
		return nil, validationError("taskid is required")
	}
	comments, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		return nil, infraError("Failed to load comments", err)
	}
	out := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		out = append(out, commentView(comment))
	}
	return out, nil
}

type CommentInput struct {
	TaskID    int64
	ProjectID int64
	UserID    int64
	Text      string
}

func (s *Service) AddComment(ctx context.Context, input CommentInput) (CommentView, error) {
	text := strings.TrimSpace(input.Text)
	if input.TaskID <= 0 || input.ProjectID <= 0 || text == "" {
		return CommentView{}, validationError("taskid, projectid and comments are required")
	}
	task, err := s.store.GetChecklistTask(ctx, input.TaskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, notFoundError("Checklist entry not found.")
		}
		return CommentView{}, infraError("Failed to load checklist entry", err)
	}
	if task.ProjectID != input.ProjectID {
		return CommentView{}, validationError("Checklist entry does not belong to this project")
	}
	user, err := s.store.GetUserByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, notFoundError("User not found")
		}
		return CommentView{}, infraError("Failed to load user", err)
	}

	comment, err := s.store.InsertTaskComment(ctx, store.TaskComment{
		TaskID:    input.TaskID,
		ProjectID: input.ProjectID,
		UserID:    user.ID,
		Username:  user.Username,
		Comments:  text,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, notFoundError("Checklist entry not found.")
		}
		return CommentView{}, infraError("Failed to add comment", err)
	}

	view := commentView(comment)
	if err := s.store.SetTaskHasComments(ctx, input.TaskID, true); err != nil {
		log.Printf("checklist: flag comments on task %d: %v", input.TaskID, err)
		return view, partialSuccessError("Comment added but the task could not be flagged", view)
	}
	return view, nil
}

func (s *Service) ownedComment(ctx context.Context, commentID, callerID int64) (store.TaskComment, error) {
	comment, err := s.store.GetTaskComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.TaskComment{}, notFoundError("Comment not found.")
		}
		return store.TaskComment{}, infraError("Failed to load comment", err)
	}
	if comment.UserID != callerID {
		return store.TaskComment{}, forbiddenError("Forbidden: You are not the owner of this comment.")
	}
	return comment, nil
}

func (s *Service) EditComment(ctx context.Context, commentID, callerID int64, text string) (CommentView, error) {
	text = strings.TrimSpace(text)
	if commentID <= 0 || text == "" {
		return CommentView{}, validationError("commentid and comments are required")
	}
	if _, err := s.ownedComment(ctx, commentID, callerID); err != nil {
		return CommentView{}, err
	}
	updated, err := s.store.UpdateTaskComment(ctx, commentID, callerID, text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, forbiddenError("Forbidden: You are not the owner of this comment.")
		}
		return CommentView{}, infraError("Failed to update comment", err)
	}
	return commentView(updated), nil
}

// DeleteComment removes an owned comment. The store clears the task's
// comment flag in the same transaction once none are left.
func (s *Service) DeleteComment(ctx context.Context, commentID, taskID, callerID int64) (CommentView, error) {
	if commentID <= 0 || taskID <= 0 {
		return CommentView{}, validationError("commentid and taskid are required")
	}
	comment, err := s.ownedComment(ctx, commentID, callerID)
	if err != nil {
		return CommentView{}, err
	}
	if comment.TaskID != taskID {
		return CommentView{}, notFoundError("Comment not found.")
	}

	deleted, _, err := s.store.DeleteTaskComment(ctx, commentID, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, notFoundError("Comment not found.")
		}
		return CommentView{}, infraError("Failed to delete comment", err)
	}
	return commentView(deleted), nil
}

func (s *Service) AttachFile(ctx context.Context, taskID int64, blobName string) (AttachmentURL, error) {
	blobName = strings.TrimSpace(blobName)
	if taskID <= 0 || blobName == "" {
		return AttachmentURL{}, validationError("taskid and blobname are required")
	}
	attachment, err := s.store.UpsertTaskAttachment(ctx, taskID, blobName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AttachmentURL{}, notFoundError("Checklist entry not found.")
		}
		return AttachmentURL{}, infraError("Failed to save attachment", err)
	}
	result := AttachmentURL{TaskID: attachment.TaskID, BlobName: attachment.BlobName}
	if err := s.store.SetTaskHasAttachment(ctx, taskID, true); err != nil {
		log.Printf("checklist: flag attachment on task %d: %v", taskID, err)
		return result, partialSuccessError("Attachment saved but the task could not be flagged", result)
	}
	return result, nil
}

func (s *Service) UploadAttachment(ctx context.Context, taskID int64, file UploadedFile) (AttachmentURL, error) {
	if taskID <= 0 {
		return AttachmentURL{}, validationError("taskid is required")
	}
	if len(file.Data) == 0 {
		return AttachmentURL{}, validationError("No file uploaded")
	}
	if s.blob == nil {
		return AttachmentURL{}, unavailableError("BLOB_UNAVAILABLE", "Blob storage is not configured")
	}
	if _, err := s.store.GetChecklistTask(ctx, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AttachmentURL{}, notFoundError("Checklist entry not found.")
		}
		return AttachmentURL{}, infraError("Failed to load checklist entry", err)
	}

	blobName := util.NewBlobName(fmt.Sprintf("task%d", taskID), file.Filename)
	if _, err := s.blob.Upload(ctx, blob.ContainerAttachments, blobName, bytes.NewReader(file.Data), int64(len(file.Data)), file.ContentType); err != nil {
		return AttachmentURL{}, infraError("Failed to upload attachment", err)
	}
	return s.AttachFile(ctx, taskID, blobName)
}

func (s *Service) GetAttachmentURL(ctx context.Context, taskID int64) (AttachmentURL, error) {
	if taskID <= 0 {
		return AttachmentURL{}, validationError("taskid is required")
	}
	attachment, err := s.store.GetTaskAttachment(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AttachmentURL{}, notFoundError("No attachment found for this task.")
		}
		return AttachmentURL{}, infraError("Failed to load attachment", err)
	}
	if s.blob == nil {
		return AttachmentURL{}, unavailableError("BLOB_UNAVAILABLE", "Blob storage is not configured")
	}
	url, err := s.blob.PresignedURL(ctx, blob.ContainerAttachments, attachment.BlobName, s.config.BlobURLTTL)
	if err != nil {
		return AttachmentURL{}, infraError("Failed to sign attachment URL", err)
	}
	return AttachmentURL{TaskID: taskID, BlobName: attachment.BlobName, URL: url}, nil
}
