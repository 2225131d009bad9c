package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/store/query"
)

// Contract types.
const (
	ContractTypePermanent  = "PERMANENT"
	ContractTypeFixedTerm  = "FIXED_TERM"
	ContractTypeInternship = "INTERNSHIP"
)

// Contract belongs to an employee through EmployeeID.
type Contract struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`

	Type           string  `json:"type"`
	Status         string  `json:"status,omitempty"`
	StartDate      string  `json:"startDate,omitempty"`
	EndDate        string  `json:"endDate,omitempty"`
	Salary         float64 `json:"salary,omitempty"`
	DocumentFileID string  `json:"documentFileId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FindContract struct {
	EmployeeID *string
	Status     *string
}

func (f *FindContract) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"employeeId": f.EmployeeID, "status": f.Status}
}

type CreateContract struct {
	EmployeeID     string  `json:"employeeId"`
	Type           string  `json:"type"`
	Status         string  `json:"status,omitempty"`
	StartDate      string  `json:"startDate,omitempty"`
	EndDate        string  `json:"endDate,omitempty"`
	Salary         float64 `json:"salary,omitempty"`
	DocumentFileID string  `json:"documentFileId,omitempty"`
}

type UpdateContract struct {
	ID string `json:"-"`
	// EmployeeID is sent so the owning employee's views are invalidated; it is
	// omitted when nil.
	EmployeeID *string `json:"employeeId,omitempty"`

	Type           *string  `json:"type,omitempty"`
	Status         *string  `json:"status,omitempty"`
	StartDate      *string  `json:"startDate,omitempty"`
	EndDate        *string  `json:"endDate,omitempty"`
	Salary         *float64 `json:"salary,omitempty"`
	DocumentFileID *string  `json:"documentFileId,omitempty"`
}

type DeleteContract struct {
	ID string
}

func (s *Store) CreateContract(ctx context.Context, create *CreateContract) (*Contract, error) {
	return s.contracts.Create(ctx, create)
}

func (s *Store) ListContracts(ctx context.Context, find *FindContract) ([]*Contract, error) {
	list, err := s.contracts.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

// ListEmployeeContracts lists the contracts of one employee. An empty id lists nothing
// and sends no request.
func (s *Store) ListEmployeeContracts(ctx context.Context, employeeID string) ([]*Contract, error) {
	if employeeID == "" {
		return nil, nil
	}
	return s.ListContracts(ctx, &FindContract{EmployeeID: &employeeID})
}

func (s *Store) GetContract(ctx context.Context, id string) (*Contract, error) {
	return s.contracts.Get(ctx, id)
}

func (s *Store) UpdateContract(ctx context.Context, update *UpdateContract) (*Contract, error) {
	return s.contracts.Update(ctx, update.ID, update)
}

func (s *Store) DeleteContract(ctx context.Context, delete *DeleteContract) error {
	return s.contracts.Delete(ctx, delete.ID, "")
}
