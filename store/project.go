package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/store/query"
)

// Project statuses.
const (
	ProjectStatusDraft     = "DRAFT"
	ProjectStatusPublished = "PUBLISHED"
	ProjectStatusArchived  = "ARCHIVED"
)

type Project struct {
	// ID is assigned by the server.
	ID string `json:"id"`

	// Domain specific fields
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Status      string `json:"status"`
	CoverFileID string `json:"coverFileId,omitempty"`

	// Server maintained fields
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FindProject struct {
	Search   *string
	Category *string
	Status   *string
}

func (f *FindProject) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"search": f.Search, "category": f.Category, "status": f.Status}
}

type CreateProject struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Status      string `json:"status,omitempty"`
	CoverFileID string `json:"coverFileId,omitempty"`
}

type UpdateProject struct {
	ID string `json:"-"`

	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Status      *string `json:"status,omitempty"`
	CoverFileID *string `json:"coverFileId,omitempty"`
}

type DeleteProject struct {
	ID string
}

func (s *Store) CreateProject(ctx context.Context, create *CreateProject) (*Project, error) {
	return s.projects.Create(ctx, create)
}

func (s *Store) ListProjects(ctx context.Context, find *FindProject) ([]*Project, error) {
	list, err := s.projects.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *Store) UpdateProject(ctx context.Context, update *UpdateProject) (*Project, error) {
	return s.projects.Update(ctx, update.ID, update)
}

func (s *Store) DeleteProject(ctx context.Context, delete *DeleteProject) error {
	return s.projects.Delete(ctx, delete.ID, "")
}
