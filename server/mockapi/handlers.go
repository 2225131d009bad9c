package mockapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
)

const (
	maxUploadBytes = 32 << 20
	loginTokenTTL  = 24 * time.Hour
)

type dataBody struct {
	Data any `json:"data"`
}

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, dataBody{Data: data})
}

func respondError(c echo.Context, status int, message string, fields map[string]string) error {
	if len(fields) == 0 {
		fields = nil
	}
	return c.JSON(status, errorBody{Message: message, Errors: fields})
}

// readBody decodes a JSON object body. An empty body is an empty object.
func readBody(c echo.Context) (Record, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes))
	if err != nil {
		return nil, err
	}
	r := Record{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Server) listRecords(entity string) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		t := s.tables[entity]
		filters := map[string]string{}
		for _, field := range t.def.filters {
			if v := c.QueryParam(field); v != "" {
				filters[field] = v
			}
		}
		rows := t.list(filters, c.QueryParam("search"))
		s.mu.Unlock()
		return respond(c, http.StatusOK, rows)
	}
}

func (s *Server) getRecord(entity string) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		t := s.tables[entity]
		row, ok := t.get(c.Param("id"))
		s.mu.Unlock()
		if !ok {
			return respondError(c, http.StatusNotFound, t.def.singular+" not found", nil)
		}
		return respond(c, http.StatusOK, row)
	}
}

func (s *Server) createRecord(entity string) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := readBody(c)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid request body", nil)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.tables[entity]
		t.def.stripReadOnly(body)
		if fields := t.def.missing(body); len(fields) > 0 {
			return respondError(c, http.StatusBadRequest, "validation failed", fields)
		}
		if fields := s.checkReferencesLocked(t.def, body); len(fields) > 0 {
			return respondError(c, http.StatusBadRequest, "validation failed", fields)
		}

		var row Record
		if entity == "users" {
			if len(t.list(map[string]string{"username": body.str("username")}, "")) > 0 {
				return respondError(c, http.StatusConflict, "username already exists", map[string]string{"username": "taken"})
			}
			row, err = s.createUserLocked(body)
			if err != nil {
				return err
			}
		} else {
			row = t.insert(body)
		}
		return respond(c, http.StatusCreated, row)
	}
}

func (s *Server) updateRecord(entity string) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := readBody(c)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid request body", nil)
		}
		id := c.Param("id")

		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.tables[entity]
		if _, ok := t.rows[id]; !ok {
			return respondError(c, http.StatusNotFound, t.def.singular+" not found", nil)
		}
		t.def.stripReadOnly(body)
		for _, field := range t.def.required {
			if v, ok := body[field]; ok && strings.TrimSpace(Record{field: v}.str(field)) == "" {
				return respondError(c, http.StatusBadRequest, "validation failed", map[string]string{field: "required"})
			}
		}
		if fields := s.checkReferencesLocked(t.def, body); len(fields) > 0 {
			return respondError(c, http.StatusBadRequest, "validation failed", fields)
		}
		if entity == "users" {
			if password, ok := body["password"].(string); ok {
				hash, err := hashPassword(password)
				if err != nil {
					return err
				}
				s.passwords[id] = hash
			}
			delete(body, "password")
			delete(body, "username")
		}

		row, _ := t.merge(id, body)
		return respond(c, http.StatusOK, row)
	}
}

func (s *Server) deleteRecord(entity string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		var body Record
		if entity == "users" {
			var err error
			if body, err = readBody(c); err != nil {
				return respondError(c, http.StatusBadRequest, "invalid request body", nil)
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.tables[entity]
		if _, ok := t.rows[id]; !ok {
			return respondError(c, http.StatusNotFound, t.def.singular+" not found", nil)
		}
		if entity == "users" {
			code := body.str("deleteCode")
			if code == "" {
				return respondError(c, http.StatusBadRequest, "delete code is required", map[string]string{"deleteCode": "required"})
			}
			if code != s.config.DeleteCode {
				return respondError(c, http.StatusBadRequest, "invalid delete code", map[string]string{"deleteCode": "invalid"})
			}
			delete(s.passwords, id)
		}

		t.remove(id)
		for child, fk := range t.def.cascade {
			ct := s.tables[child]
			for _, row := range ct.list(map[string]string{fk: id}, "") {
				ct.remove(row.str(ct.def.idField))
			}
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// upsertSetting creates or replaces a setting value by key.
func (s *Server) upsertSetting(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body", nil)
	}
	value, ok := body["value"].(string)
	if !ok {
		return respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"value": "required"})
	}
	key := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables["settings"]
	if _, exists := t.rows[key]; exists {
		row, _ := t.merge(key, Record{"value": value})
		return respond(c, http.StatusOK, row)
	}
	row := t.insert(Record{"key": key, "value": value})
	return respond(c, http.StatusOK, row)
}

// checkReferencesLocked reports reference fields whose target does not exist.
func (s *Server) checkReferencesLocked(def *entityDef, body Record) map[string]string {
	fields := map[string]string{}
	for field, target := range def.references {
		id := body.str(field)
		if id == "" {
			continue
		}
		var exists bool
		if target == "files" {
			_, exists = s.files[id]
		} else {
			_, exists = s.tables[target].rows[id]
		}
		if !exists {
			fields[field] = "unknown " + strings.TrimSuffix(target, "s")
		}
	}
	return fields
}

func (s *Server) uploadFile(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "file is required", map[string]string{"file": "required"})
	}
	if header.Size > maxUploadBytes {
		return respondError(c, http.StatusRequestEntityTooLarge, "file too large", nil)
	}
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	contentType := header.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	id := shortuuid.New()
	f := &storedFile{
		ID:          id,
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         BasePath + "/files/" + id,
		data:        data,
	}

	s.mu.Lock()
	s.files[id] = f
	s.mu.Unlock()
	s.logger.Debug("stored upload", slog.String("file_id", id), slog.Int64("size", f.Size))
	return respond(c, http.StatusCreated, f)
}

func (s *Server) getFile(c echo.Context) error {
	s.mu.Lock()
	f, ok := s.files[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		return respondError(c, http.StatusNotFound, "file not found", nil)
	}
	return c.Blob(http.StatusOK, f.ContentType, f.data)
}

func (s *Server) deleteFile(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	_, ok := s.files[id]
	delete(s.files, id)
	s.mu.Unlock()
	if !ok {
		return respondError(c, http.StatusNotFound, "file not found", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login exchanges credentials for a bearer token.
func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if s.config.Secret == "" {
		return respondError(c, http.StatusBadRequest, "authentication is disabled", nil)
	}
	user, ok := s.checkPassword(req.Username, req.Password)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "invalid username or password", nil)
	}
	token, err := IssueToken(s.config.Secret, user.str("id"), loginTokenTTL)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]any{"token": token, "user": user})
}
