package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/plugin/httpclient"
	"github.com/hrygo/backoffice/store/query"
)

type TeamMember struct {
	ID string `json:"id"`

	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoFileID string `json:"photoFileId,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	// Order is the display position on the public team page.
	Order int `json:"order"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FindTeamMember struct {
	Search *string
	Role   *string
}

func (f *FindTeamMember) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"search": f.Search, "role": f.Role}
}

type CreateTeamMember struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoFileID string `json:"photoFileId,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Order       int    `json:"order,omitempty"`
}

type UpdateTeamMember struct {
	ID string `json:"-"`

	Name        *string `json:"name,omitempty"`
	Role        *string `json:"role,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhotoFileID *string `json:"photoFileId,omitempty"`
	PhotoURL    *string `json:"photoUrl,omitempty"`
	Order       *int    `json:"order,omitempty"`
}

type DeleteTeamMember struct {
	ID string
}

func (s *Store) CreateTeamMember(ctx context.Context, create *CreateTeamMember) (*TeamMember, error) {
	return s.teamMembers.Create(ctx, create)
}

// CreateTeamMemberWithPhoto uploads photo first. A nil photo creates the member
// without one.
func (s *Store) CreateTeamMemberWithPhoto(ctx context.Context, create *CreateTeamMember, photo *httpclient.FileInput) (*TeamMember, error) {
	return SaveWithUpload(ctx, s, photo, func(ctx context.Context, uploaded *httpclient.UploadedFile) (*TeamMember, error) {
		payload := *create
		if uploaded != nil {
			payload.PhotoFileID = uploaded.ID
			payload.PhotoURL = uploaded.URL
		}
		return s.CreateTeamMember(ctx, &payload)
	})
}

func (s *Store) ListTeamMembers(ctx context.Context, find *FindTeamMember) ([]*TeamMember, error) {
	list, err := s.teamMembers.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetTeamMember(ctx context.Context, id string) (*TeamMember, error) {
	return s.teamMembers.Get(ctx, id)
}

func (s *Store) UpdateTeamMember(ctx context.Context, update *UpdateTeamMember) (*TeamMember, error) {
	return s.teamMembers.Update(ctx, update.ID, update)
}

func (s *Store) DeleteTeamMember(ctx context.Context, delete *DeleteTeamMember) error {
	return s.teamMembers.Delete(ctx, delete.ID, "")
}
