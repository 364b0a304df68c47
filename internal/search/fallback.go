package search

import (
	"context"
	"strconv"
	"strings"

	"logiflow/api/internal/store"
)

// ProjectLister is the slice of the store the fallback needs.
type ProjectLister interface {
	SearchProjects(ctx context.Context, query string, limit int) ([]store.ProjectSearchRow, error)
}

// DBFallback answers project searches from Postgres when Meilisearch is
// unavailable. Decisions are only searchable through Meilisearch.
type DBFallback struct {
	projects ProjectLister
}

func NewDBFallback(projects ProjectLister) *DBFallback {
	return &DBFallback{projects: projects}
}

func (f *DBFallback) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.FilterType != "" && q.FilterType != ResultProject {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := f.projects.SearchProjects(ctx, q.Text, limit+offset)
	if err != nil {
		return nil, 0, err
	}
	total := len(rows)
	if offset >= len(rows) {
		return nil, total, nil
	}

	results := make([]Result, 0, len(rows)-offset)
	for _, row := range rows[offset:] {
		results = append(results, Result{
			Type:      ResultProject,
			ID:        projectDocID(row.ID),
			Title:     row.Name,
			Snippet:   strings.TrimSpace(row.Client + " · " + row.Stage),
			ProjectID: row.ID,
		})
	}
	return results, total, nil
}

func projectDocID(id int64) string {
	return "project-" + strconv.FormatInt(id, 10)
}

func decisionDocID(id int64) string {
	return "decision-" + strconv.FormatInt(id, 10)
}
