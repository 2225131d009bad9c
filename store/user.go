package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/store/query"
)

// Role is the back-office permission level of a user.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

func (r Role) String() string {
	return string(r)
}

// User never carries the password back from the server.
type User struct {
	ID string `json:"id"`

	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FindUser struct {
	Search *string
	Role   *Role
}

func (f *FindUser) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"search": f.Search, "role": f.Role}
}

type CreateUser struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

type UpdateUser struct {
	ID string `json:"-"`

	Email    *string `json:"email,omitempty"`
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *Role   `json:"role,omitempty"`
}

// DeleteUser carries the delete-authorization code. It is passed to the server
// untouched; a wrong code comes back as the server's validation error.
type DeleteUser struct {
	ID         string
	DeleteCode string
}

func (s *Store) CreateUser(ctx context.Context, create *CreateUser) (*User, error) {
	return s.users.Create(ctx, create)
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	list, err := s.users.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.Get(ctx, id)
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	return s.users.Update(ctx, update.ID, update)
}

func (s *Store) DeleteUser(ctx context.Context, delete *DeleteUser) error {
	return s.users.Delete(ctx, delete.ID, delete.DeleteCode)
}
