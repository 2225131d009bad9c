package stats

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/backoffice/plugin/httpclient"
	"github.com/hrygo/backoffice/server/mockapi"
	"github.com/hrygo/backoffice/store"
	"github.com/hrygo/backoffice/store/cache"
)

func newStore(t *testing.T, baseURL string) *store.Store {
	t.Helper()
	client, err := httpclient.NewClient(&httpclient.Config{BaseURL: baseURL, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	s := store.New(client, cache.New(cache.DefaultConfig()), nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, mock *mockapi.Server, entity string, r mockapi.Record) string {
	t.Helper()
	id, err := mock.Insert(entity, r)
	require.NoError(t, err)
	return id
}

func TestCollectorCollect(t *testing.T) {
	mock := mockapi.New(mockapi.Config{DeleteCode: "1234"})
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	seed(t, mock, "projects", mockapi.Record{"title": "Wells", "status": store.ProjectStatusPublished})
	seed(t, mock, "projects", mockapi.Record{"title": "Schools", "status": store.ProjectStatusDraft})
	seed(t, mock, "projects", mockapi.Record{"title": "Clinic", "status": store.ProjectStatusPublished})
	ada := seed(t, mock, "employees", mockapi.Record{"firstName": "Ada", "status": store.EmployeeStatusActive})
	seed(t, mock, "employees", mockapi.Record{"firstName": "Alan", "status": store.EmployeeStatusOnLeave})
	seed(t, mock, "contracts", mockapi.Record{"employeeId": ada, "type": store.ContractTypeFixedTerm, "endDate": "2024-06-20"})
	seed(t, mock, "contracts", mockapi.Record{"employeeId": ada, "type": store.ContractTypeFixedTerm, "endDate": "2024-05-01"})
	seed(t, mock, "contracts", mockapi.Record{"employeeId": ada, "type": store.ContractTypeFixedTerm, "endDate": "2025-01-01"})
	seed(t, mock, "contracts", mockapi.Record{"employeeId": ada, "type": store.ContractTypePermanent})
	seed(t, mock, "history", mockapi.Record{"title": "Founded", "date": "2010-01-01"})
	seed(t, mock, "users", mockapi.Record{"username": "root", "password": "pw", "role": "ADMIN"})
	seed(t, mock, "users", mockapi.Record{"username": "guest", "password": "pw"})

	collector := NewCollector(newStore(t, srv.URL+mockapi.BasePath), Config{})
	collector.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

	stats := collector.Collect(context.Background())
	assert.Empty(t, stats.Failed)
	assert.EqualValues(t, 3, stats.Projects)
	assert.Equal(t, map[string]int64{"PUBLISHED": 2, "DRAFT": 1}, stats.ProjectsByStatus)
	assert.EqualValues(t, 2, stats.Employees)
	assert.EqualValues(t, 1, stats.ActiveEmployees)
	assert.EqualValues(t, 4, stats.Contracts)
	assert.EqualValues(t, 1, stats.ExpiringContracts)
	assert.EqualValues(t, 1, stats.ExpiredContracts)
	assert.EqualValues(t, 1, stats.HistoryEvents)
	assert.Equal(t, map[string]int64{"ADMIN": 1, "VIEWER": 1}, stats.UsersByRole)
	assert.Equal(t, time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC), stats.LastUpdated)

	// A second collection is served from the cache.
	before := mock.TotalRequests()
	collector.Collect(context.Background())
	assert.Equal(t, before, mock.TotalRequests())

	// GetStats hands out copies.
	stats.ProjectsByStatus["DRAFT"] = 99
	assert.EqualValues(t, 1, collector.GetStats().ProjectsByStatus["DRAFT"])
}

func TestCollectorRecordsFailures(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	collector := NewCollector(newStore(t, url+mockapi.BasePath), Config{})
	stats := collector.Collect(context.Background())

	assert.Len(t, stats.Failed, 7)
	assert.Contains(t, stats.Failed, store.EntityProjects)
	assert.Zero(t, stats.Projects)
	assert.Contains(t, stats.GetSummary(), "! projects unavailable")
}

func TestCollectorStartStop(t *testing.T) {
	mock := mockapi.New(mockapi.Config{})
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	collector := NewCollector(newStore(t, srv.URL+mockapi.BasePath), Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector.Start(ctx)
	assert.False(t, collector.GetStats().LastUpdated.IsZero())
	collector.Stop()
	collector.Stop()
}

func TestStatsGetSummary(t *testing.T) {
	stats := &Stats{
		Projects:          3,
		ProjectsByStatus:  map[string]int64{"PUBLISHED": 2, "DRAFT": 1},
		Employees:         2,
		ActiveEmployees:   1,
		Contracts:         4,
		ExpiringContracts: 1,
		ExpiredContracts:  1,
		Users:             2,
		UsersByRole:       map[string]int64{"ADMIN": 1, "VIEWER": 1},
		LastUpdated:       time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
	}

	summary := stats.GetSummary()
	for _, line := range []string{
		"Overview (updated 2024-06-01 12:00)",
		"Projects: 3 (draft 1, published 2)",
		"Employees: 2 (1 active)",
		"Contracts: 4 (1 expiring, 1 expired)",
		"Users: 2 (admin 1, viewer 1)",
	} {
		assert.Contains(t, summary, line)
	}
	assert.NotContains(t, summary, "unavailable")
}
