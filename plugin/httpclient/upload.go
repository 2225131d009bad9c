package httpclient

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/backoffice/internal/apierror"
)

// UploadField is the multipart field name the API reads the file from.
const UploadField = "file"

// FileInput is a file to be uploaded.
type FileInput struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// UploadedFile is the server's description of a stored upload.
type UploadedFile struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Upload sends file as multipart/form-data to path. It is a separate exchange from any
// entity write; the returned ID is what entity payloads reference.
func (c *Client) Upload(ctx context.Context, path string, file *FileInput) (*UploadedFile, error) {
	if file == nil || file.Content == nil {
		return nil, apierror.Validation("file is required", nil)
	}
	if file.Filename == "" {
		return nil, apierror.Validation("filename is required", map[string]string{"filename": "required"})
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(file.Filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+UploadField+`"; filename="`+escapeQuotes(file.Filename)+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, apierror.Internal("failed to create multipart part", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, apierror.Internal("failed to read upload content", errors.Wrap(err, file.Filename))
	}
	if err := writer.Close(); err != nil {
		return nil, apierror.Internal("failed to finish multipart body", err)
	}

	uploaded := &UploadedFile{}
	r := &Request{Method: http.MethodPost, Path: path, Out: uploaded, Entity: "files", Operation: "upload"}
	if err := c.send(ctx, r, &buf, writer.FormDataContentType()); err != nil {
		return nil, err
	}
	if uploaded.ID == "" {
		return nil, apierror.Internal("upload response carries no file id", nil)
	}
	return uploaded, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
