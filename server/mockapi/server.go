// Package mockapi is an in-memory implementation of the back-office REST API. It backs
// the CLI's `mock` command and the end-to-end tests of the store package.
package mockapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/hrygo/backoffice/server/middleware"
)

// BasePath prefixes every API route.
const BasePath = "/api"

type Config struct {
	// Secret signs bearer tokens. Empty disables authentication.
	Secret string
	// DeleteCode authorizes user deletion.
	DeleteCode string
	// AdminPassword, when set, seeds an "admin" user with that password.
	AdminPassword string
	// RateLimit is per subject; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
	Logger    *slog.Logger
}

// Server is the mock backend.
type Server struct {
	config Config
	echo   *echo.Echo
	logger *slog.Logger

	mu        sync.Mutex
	tables    map[string]*table
	passwords map[string][]byte
	files     map[string]*storedFile

	requestsMu sync.Mutex
	requests   map[string]int
}

type storedFile struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	data        []byte
}

// New creates a server with the default settings seeded.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:    config,
		logger:    logger,
		tables:    make(map[string]*table),
		passwords: make(map[string][]byte),
		files:     make(map[string]*storedFile),
		requests:  make(map[string]int),
	}
	for _, def := range entityDefs {
		d := *def
		s.tables[d.name] = newTable(&d)
	}
	s.seed()
	s.echo = s.newEcho()
	return s
}

func (s *Server) seed() {
	settings := s.tables["settings"]
	settings.insert(Record{"key": "site.name", "value": "Back Office", "description": "Public site name"})
	settings.insert(Record{"key": "site.contactEmail", "value": "", "description": "Contact address"})
	settings.insert(Record{"key": "site.donationUrl", "value": "", "description": "Donation page"})

	if s.config.AdminPassword != "" {
		if _, err := s.createUser(Record{"username": "admin", "name": "Administrator", "role": "ADMIN", "password": s.config.AdminPassword}); err != nil {
			s.logger.Error("failed to seed admin user", slog.String("error", err.Error()))
		}
	}
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(s.countRequests)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			s.logger.Debug("mock api request",
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Int64("duration_ms", v.Latency.Milliseconds()),
			)
			return nil
		},
	}))

	api := e.Group(BasePath)
	api.POST("/auth/login", s.login)

	protected := api.Group("", s.authenticate)
	if s.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(s.config.RateLimit, s.config.RateBurst)
		protected.Use(limiter.Middleware(subjectKey))
	}

	protected.POST("/files", s.uploadFile)
	protected.GET("/files/:id", s.getFile)
	protected.DELETE("/files/:id", s.deleteFile)

	protected.GET("/settings", s.listRecords("settings"))
	protected.GET("/settings/:id", s.getRecord("settings"))
	protected.PUT("/settings/:id", s.upsertSetting)
	protected.PATCH("/settings/:id", s.upsertSetting)

	for _, def := range entityDefs {
		if def.name == "settings" {
			continue
		}
		path := "/" + def.name
		protected.GET(path, s.listRecords(def.name))
		protected.POST(path, s.createRecord(def.name))
		protected.GET(path+"/:id", s.getRecord(def.name))
		protected.PATCH(path+"/:id", s.updateRecord(def.name))
		protected.PUT(path+"/:id", s.updateRecord(def.name))
		protected.DELETE(path+"/:id", s.deleteRecord(def.name))
	}
	return e
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("mock api listening", slog.String("addr", addr), slog.Bool("auth", s.config.Secret != ""))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Request().URL.Path
		s.requestsMu.Lock()
		s.requests[key]++
		s.requestsMu.Unlock()
		return next(c)
	}
}

// Requests returns how many requests were received for method and path, where path
// includes BasePath.
func (s *Server) Requests(method, path string) int {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	return s.requests[method+" "+path]
}

// TotalRequests returns the number of requests received so far.
func (s *Server) TotalRequests() int {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	n := 0
	for _, v := range s.requests {
		n += v
	}
	return n
}

func (s *Server) ResetRequests() {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	s.requests = make(map[string]int)
}

// Insert stores r directly, bypassing validation, and returns its identifier.
func (s *Server) Insert(entity string, r Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[entity]
	if !ok {
		return "", errors.Errorf("unknown entity %q", entity)
	}
	if entity == "users" {
		row, err := s.createUserLocked(r)
		if err != nil {
			return "", err
		}
		return row.str("id"), nil
	}
	row := t.insert(r.clone())
	return row.str(t.def.idField), nil
}

// FileCount returns the number of stored uploads.
func (s *Server) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *Server) createUser(r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(r)
}

// createUserLocked hashes the password out of r. The hash is never returned.
func (s *Server) createUserLocked(r Record) (Record, error) {
	r = r.clone()
	password := r.str("password")
	delete(r, "password")
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	row := s.tables["users"].insert(r)
	s.passwords[row.str("id")] = hash
	return row, nil
}

func hashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func (s *Server) checkPassword(username, password string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.tables["users"].list(map[string]string{"username": username}, "") {
		hash := s.passwords[row.str("id")]
		if bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil {
			return row, true
		}
	}
	return nil, false
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	message := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	} else {
		s.logger.Error("mock api handler failed", slog.String("error", err.Error()))
	}
	if err := respondError(c, status, message, nil); err != nil {
		s.logger.Warn("failed to write error response", slog.String("error", err.Error()))
	}
}
