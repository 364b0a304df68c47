package app

import (
	"time"

	"logiflow/api/internal/store"
)

type UserView struct {
	UserID   int64  `json:"userid"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type ProjectView struct {
	ProjectID          int64     `json:"projectid"`
	ProjectName        string    `json:"projectname"`
	Client             string    `json:"client"`
	EmailSubjectHeader string    `json:"emailsubjectheader"`
	StartDestination   string    `json:"startdestination"`
	EndDestination     string    `json:"enddestination"`
	Stage              string    `json:"stage"`
	StartDate          time.Time `json:"startdate"`
}

type CargoView struct {
	CargoID   int64   `json:"cargoid"`
	ProjectID int64   `json:"projectid"`
	CargoName string  `json:"cargoname"`
	Length    float64 `json:"length"`
	Breadth   float64 `json:"breadth"`
	Height    float64 `json:"height"`
	Weight    float64 `json:"weight"`
	Quantity  int     `json:"quantity"`
	OOG       string  `json:"oog"`
}

type DocumentVersionView struct {
	FileID     int64     `json:"fileid"`
	ProjectID  int64     `json:"projectid"`
	FileType   string    `json:"filetype"`
	BlobURL    string    `json:"bloburl"`
	Version    int       `json:"version"`
	UploadedBy int64     `json:"uploadedby"`
	CreatedAt  time.Time `json:"created_at"`
}

type DecisionView struct {
	ApprovalID int64     `json:"approvalid"`
	ProjectID  int64     `json:"projectid"`
	UserID     int64     `json:"userid"`
	FileType   string    `json:"filetype,omitempty"`
	Status     string    `json:"status"`
	Comments   string    `json:"comments"`
	StageIndex int       `json:"stage_index"`
	CreatedAt  time.Time `json:"created_at"`
}

type TaskView struct {
	TaskID        int64  `json:"taskid"`
	ProjectID     int64  `json:"projectid"`
	Type          string `json:"type"`
	Subtype       string `json:"subtype"`
	Completed     bool   `json:"completed"`
	HasComments   bool   `json:"has_comments"`
	HasAttachment bool   `json:"has_attachment"`
}

type CommentView struct {
	CommentID int64     `json:"commentid"`
	TaskID    int64     `json:"taskid"`
	ProjectID int64     `json:"projectid"`
	UserID    int64     `json:"userid"`
	Username  string    `json:"username"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func userView(u store.User) UserView {
	return UserView{UserID: u.ID, Username: u.Username, Email: u.Email}
}

func projectView(p store.Project) ProjectView {
	return ProjectView{
		ProjectID:          p.ID,
		ProjectName:        p.Name,
		Client:             p.Client,
		EmailSubjectHeader: p.EmailSubjectHeader,
		StartDestination:   p.StartDestination,
		EndDestination:     p.EndDestination,
		Stage:              p.Stage,
		StartDate:          p.StartDate,
	}
}

func cargoViews(items []store.Cargo) []CargoView {
	out := make([]CargoView, 0, len(items))
	for _, c := range items {
		out = append(out, CargoView{
			CargoID:   c.ID,
			ProjectID: c.ProjectID,
			CargoName: c.Name,
			Length:    c.Length,
			Breadth:   c.Breadth,
			Height:    c.Height,
			Weight:    c.Weight,
			Quantity:  c.Quantity,
			OOG:       c.OOG,
		})
	}
	return out
}

func versionView(v store.DocumentVersion) DocumentVersionView {
	return DocumentVersionView{
		FileID:     v.ID,
		ProjectID:  v.ProjectID,
		FileType:   v.FileType,
		BlobURL:    v.BlobURL,
		Version:    v.Version,
		UploadedBy: v.UploadedBy,
		CreatedAt:  v.CreatedAt,
	}
}

func decisionView(d store.ApprovalDecision) DecisionView {
	return DecisionView{
		ApprovalID: d.ID,
		ProjectID:  d.ProjectID,
		UserID:     d.UserID,
		FileType:   d.FileType,
		Status:     d.Status,
		Comments:   d.Comments,
		StageIndex: d.StageIndex,
		CreatedAt:  d.CreatedAt,
	}
}

func taskView(t store.ChecklistTask) TaskView {
	return TaskView{
		TaskID:        t.ID,
		ProjectID:     t.ProjectID,
		Type:          t.Type,
		Subtype:       t.Subtype,
		Completed:     t.Completed,
		HasComments:   t.HasComments,
		HasAttachment: t.HasAttachment,
	}
}

func commentView(c store.TaskComment) CommentView {
	return CommentView{
		CommentID: c.ID,
		TaskID:    c.TaskID,
		ProjectID: c.ProjectID,
		UserID:    c.UserID,
		Username:  c.Username,
		Comments:  c.Comments,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
