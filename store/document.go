package store

import (
	"context"
	"time"

	"github.com/hrygo/backoffice/plugin/httpclient"
	"github.com/hrygo/backoffice/store/query"
)

type Document struct {
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	// FileID references an upload made through UploadFile.
	FileID  string `json:"fileId,omitempty"`
	FileURL string `json:"fileUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type FindDocument struct {
	Search   *string
	Category *string
}

func (f *FindDocument) params() query.Params {
	if f == nil {
		return nil
	}
	return query.Params{"search": f.Search, "category": f.Category}
}

type CreateDocument struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	FileID      string `json:"fileId,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
}

type UpdateDocument struct {
	ID string `json:"-"`

	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	FileID      *string `json:"fileId,omitempty"`
	FileURL     *string `json:"fileUrl,omitempty"`
}

type DeleteDocument struct {
	ID string
}

func (s *Store) CreateDocument(ctx context.Context, create *CreateDocument) (*Document, error) {
	return s.documents.Create(ctx, create)
}

// CreateDocumentWithFile uploads file, then creates the document referencing it. The
// upload is removed again when the create fails.
func (s *Store) CreateDocumentWithFile(ctx context.Context, create *CreateDocument, file *httpclient.FileInput) (*Document, error) {
	return SaveWithUpload(ctx, s, file, func(ctx context.Context, uploaded *httpclient.UploadedFile) (*Document, error) {
		payload := *create
		if uploaded != nil {
			payload.FileID = uploaded.ID
			payload.FileURL = uploaded.URL
		}
		return s.CreateDocument(ctx, &payload)
	})
}

func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	list, err := s.documents.List(ctx, find.params())
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.documents.Get(ctx, id)
}

func (s *Store) UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error) {
	return s.documents.Update(ctx, update.ID, update)
}

func (s *Store) DeleteDocument(ctx context.Context, delete *DeleteDocument) error {
	return s.documents.Delete(ctx, delete.ID, "")
}
