package store

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/plugin/httpclient"
)

func textFile(name, content string) *httpclient.FileInput {
	return &httpclient.FileInput{Filename: name, ContentType: "text/plain", Content: strings.NewReader(content)}
}

func TestUploadAndDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploaded, err := env.store.UploadFile(ctx, textFile("notes.txt", "hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, uploaded.ID)
	assert.Equal(t, "notes.txt", uploaded.Filename)
	assert.EqualValues(t, 5, uploaded.Size)
	assert.Equal(t, 1, env.mock.FileCount())

	require.NoError(t, env.store.DeleteFile(ctx, uploaded.ID))
	assert.Equal(t, 0, env.mock.FileCount())
	assert.True(t, apierror.IsNotFound(env.store.DeleteFile(ctx, uploaded.ID)))
}

func TestCreateDocumentWithFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.store.CreateDocumentWithFile(ctx, &CreateDocument{Title: "Statutes"}, textFile("statutes.txt", "article 1"))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.FileID)
	assert.Contains(t, doc.FileURL, doc.FileID)
	assert.Equal(t, 1, env.mock.FileCount())
}

func TestSaveWithUploadRemovesOrphan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The document has no title, so the create fails after the upload succeeded.
	_, err := env.store.CreateDocumentWithFile(ctx, &CreateDocument{}, textFile("orphan.txt", "x"))
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrCodeValidation, apiErr.Code)
	assert.Equal(t, map[string]string{"title": "required"}, apiErr.Fields)

	assert.Equal(t, 1, env.mock.Requests(http.MethodPost, "/api/files"))
	assert.Equal(t, 0, env.mock.FileCount())
}

func TestSaveWithUploadSkipsSaveWhenUploadFails(t *testing.T) {
	env := newTestEnv(t)
	called := false

	_, err := SaveWithUpload(context.Background(), env.store, &httpclient.FileInput{Content: strings.NewReader("x")},
		func(context.Context, *httpclient.UploadedFile) (*Document, error) {
			called = true
			return nil, nil
		})
	assert.True(t, apierror.IsValidation(err))
	assert.False(t, called)
	assert.Equal(t, 0, env.mock.TotalRequests())
}

func TestCreateWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	member, err := env.store.CreateTeamMemberWithPhoto(ctx, &CreateTeamMember{Name: "Grace"}, nil)
	require.NoError(t, err)
	assert.Empty(t, member.PhotoFileID)

	project, err := env.store.CreateProjectWithCover(ctx, &CreateProject{Title: "Wells"}, textFile("cover.txt", "img"))
	require.NoError(t, err)
	assert.NotEmpty(t, project.CoverFileID)

	assert.Equal(t, 0, env.mock.Requests(http.MethodDelete, "/api/files/"+project.CoverFileID))
	assert.Equal(t, 1, env.mock.FileCount())
}
