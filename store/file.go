package store

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hrygo/backoffice/plugin/httpclient"
)

// FilesPath is the upload collection of the API.
const FilesPath = "/files"

const cleanupTimeout = 10 * time.Second

// UploadFile stores file and returns its server identifier.
func (s *Store) UploadFile(ctx context.Context, file *httpclient.FileInput) (*httpclient.UploadedFile, error) {
	uploaded, err := s.client.Upload(ctx, FilesPath, file)
	if err != nil {
		return nil, normalize(err)
	}
	return uploaded, nil
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	err := s.client.Do(ctx, &httpclient.Request{
		Method:    http.MethodDelete,
		Path:      FilesPath + "/" + url.PathEscape(id),
		Entity:    "files",
		Operation: "delete",
	})
	return normalize(err)
}

// SaveWithUpload runs the two-phase upload-then-save sequence. The entity save only
// starts once the upload returned an identifier; if the save fails, the upload is
// deleted again and the save error is returned. A nil file skips the upload and calls
// save with nil.
func SaveWithUpload[R any](ctx context.Context, s *Store, file *httpclient.FileInput, save func(ctx context.Context, uploaded *httpclient.UploadedFile) (R, error)) (R, error) {
	if file == nil {
		return save(ctx, nil)
	}

	var zero R
	uploaded, err := s.UploadFile(ctx, file)
	if err != nil {
		return zero, err
	}

	result, err := save(ctx, uploaded)
	if err == nil {
		return result, nil
	}

	// The caller may have given up; the orphan is removed regardless.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if cleanupErr := s.DeleteFile(cleanupCtx, uploaded.ID); cleanupErr != nil {
		s.logger.Warn("failed to delete orphaned upload",
			slog.String("file_id", uploaded.ID),
			slog.String("error", cleanupErr.Error()),
		)
	}
	return zero, err
}

// CreateProjectWithCover uploads cover, then creates the project referencing it.
func (s *Store) CreateProjectWithCover(ctx context.Context, create *CreateProject, cover *httpclient.FileInput) (*Project, error) {
	return SaveWithUpload(ctx, s, cover, func(ctx context.Context, uploaded *httpclient.UploadedFile) (*Project, error) {
		payload := *create
		if uploaded != nil {
			payload.CoverFileID = uploaded.ID
		}
		return s.CreateProject(ctx, &payload)
	})
}
