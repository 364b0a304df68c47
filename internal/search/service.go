package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres.
type Service struct {
	meili    *Meili
	fallback *DBFallback
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *DBFallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(id int64, name, client, stage string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := ProjectRecord{ID: projectDocID(id), ProjectID: id, Name: name, Client: client, Stage: stage}
	go func() {
		if err := s.meili.IndexProjects([]ProjectRecord{record}); err != nil {
			log.Printf("search: index project %d: %v", id, err)
		}
	}()
}

// IndexDecision indexes an approval decision (fire-and-forget to Meilisearch).
func (s *Service) IndexDecision(id, projectID int64, fileType, status, role, comments string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := DecisionRecord{
		ID:        decisionDocID(id),
		ProjectID: projectID,
		FileType:  fileType,
		Status:    status,
		Role:      role,
		Comments:  comments,
	}
	go func() {
		if err := s.meili.IndexDecisions([]DecisionRecord{record}); err != nil {
			log.Printf("search: index decision %d: %v", id, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
