package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/store/query"
)

// Employee statuses.
const (
	EmployeeStatusActive   = "ACTIVE"
	EmployeeStatusOnLeave  = "ON_LEAVE"
	EmployeeStatusInactive = "INACTIVE"
)

type Employee struct {
	ID string `json:"id"`

	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Position    string `json:"position,omitempty"`
	Department  string `json:"department,omitempty"`
	Status      string `json:"status,omitempty"`
	HireDate    string `json:"hireDate,omitempty"`
	PhotoFileID string `json:"photoFileId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FullName joins the first and last name.
func (e *Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

type FindEmployee struct {
	Search *string
	Status *string
}

func (f *FindEmployee) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"search": f.Search, "status": f.Status}
}

type CreateEmployee struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Position    string `json:"position,omitempty"`
	Department  string `json:"department,omitempty"`
	Status      string `json:"status,omitempty"`
	HireDate    string `json:"hireDate,omitempty"`
	PhotoFileID string `json:"photoFileId,omitempty"`
}

type UpdateEmployee struct {
	ID string `json:"-"`

	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Position    *string `json:"position,omitempty"`
	Department  *string `json:"department,omitempty"`
	Status      *string `json:"status,omitempty"`
	HireDate    *string `json:"hireDate,omitempty"`
	PhotoFileID *string `json:"photoFileId,omitempty"`
}

type DeleteEmployee struct {
	ID string
}

func (s *Store) CreateEmployee(ctx context.Context, create *CreateEmployee) (*Employee, error) {
	return s.employees.Create(ctx, create)
}

func (s *Store) ListEmployees(ctx context.Context, find *FindEmployee) ([]*Employee, error) {
	list, err := s.employees.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	return s.employees.Get(ctx, id)
}

// UpdateEmployee also invalidates the employee's contract lists.
func (s *Store) UpdateEmployee(ctx context.Context, update *UpdateEmployee) (*Employee, error) {
	return s.employees.Update(ctx, update.ID, update)
}

func (s *Store) DeleteEmployee(ctx context.Context, delete *DeleteEmployee) error {
	return s.employees.Delete(ctx, delete.ID, "")
}
