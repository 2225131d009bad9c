package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/store/query"
)

// HistoryEvent is one entry of the organization's public timeline.
type HistoryEvent struct {
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	// Date is a calendar date, YYYY-MM-DD.
	Date        string `json:"date"`
	ImageFileID string `json:"imageFileId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FindHistoryEvent struct {
	Search   *string
	Category *string
}

func (f *FindHistoryEvent) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"search": f.Search, "category": f.Category}
}

type CreateHistoryEvent struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Date        string `json:"date"`
	ImageFileID string `json:"imageFileId,omitempty"`
}

type UpdateHistoryEvent struct {
	ID string `json:"-"`

	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Date        *string `json:"date,omitempty"`
	ImageFileID *string `json:"imageFileId,omitempty"`
}

type DeleteHistoryEvent struct {
	ID string
}

func (s *Store) CreateHistoryEvent(ctx context.Context, create *CreateHistoryEvent) (*HistoryEvent, error) {
	return s.history.Create(ctx, create)
}

func (s *Store) ListHistoryEvents(ctx context.Context, find *FindHistoryEvent) ([]*HistoryEvent, error) {
	list, err := s.history.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetHistoryEvent(ctx context.Context, id string) (*HistoryEvent, error) {
	return s.history.Get(ctx, id)
}

func (s *Store) UpdateHistoryEvent(ctx context.Context, update *UpdateHistoryEvent) (*HistoryEvent, error) {
	return s.history.Update(ctx, update.ID, update)
}

func (s *Store) DeleteHistoryEvent(ctx context.Context, delete *DeleteHistoryEvent) error {
	return s.history.Delete(ctx, delete.ID, "")
}
