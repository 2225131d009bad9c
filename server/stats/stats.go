// Package stats computes the dashboard overview of the back office from the remote
// collections: record counts, project and user breakdowns, and contracts about to end.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/backoffice/server/timezone"
	"github.com/hrygo/backoffice/store"
)

// Stats represents the dashboard overview.
type Stats struct {
	// Project stats
	Projects         int64
	ProjectsByStatus map[string]int64

	// People stats
	Employees       int64
	ActiveEmployees int64
	TeamMembers     int64

	// Contract stats
	Contracts         int64
	ExpiringContracts int64 // end date within the expiry window, today included
	ExpiredContracts  int64

	// Content stats
	Documents     int64
	HistoryEvents int64

	// User stats
	Users       int64
	UsersByRole map[string]int64

	// Failed maps an entity to the error that kept it out of the last collection.
	Failed map[string]string

	// Timestamp
	LastUpdated time.Time
}

// Config tunes a Collector.
type Config struct {
	// Interval between collections. Defaults to 5 minutes.
	Interval time.Duration
	// ExpiryWindow is how far ahead a contract end counts as expiring. Defaults to 30 days.
	ExpiryWindow time.Duration
	// Location is where calendar dates are read. Defaults to UTC.
	Location *time.Location
}

// Collector collects and manages the dashboard overview.
type Collector struct {
	store  *store.Store
	config Config
	now    func() time.Time

	mu       sync.Mutex
	stats    *Stats
	stopOnce sync.Once
	tickStop chan struct{}
}

// NewCollector creates a new statistics collector.
func NewCollector(st *store.Store, config Config) *Collector {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.ExpiryWindow <= 0 {
		config.ExpiryWindow = 30 * 24 * time.Hour
	}
	if config.Location == nil {
		config.Location = timezone.UTC
	}
	return &Collector{
		store:    st,
		config:   config,
		now:      time.Now,
		stats:    &Stats{},
		tickStop: make(chan struct{}),
	}
}

// Start collects once, then again every interval until ctx ends or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.Collect(ctx)

	go func() {
		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Collect(ctx)
			case <-ctx.Done():
				return
			case <-c.tickStop:
				return
			}
		}
	}()
}

// Stop stops the statistics collector.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.tickStop) })
}

// GetStats returns a copy of current statistics.
func (c *Collector) GetStats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := *c.stats
	s.ProjectsByStatus = maps.Clone(c.stats.ProjectsByStatus)
	s.UsersByRole = maps.Clone(c.stats.UsersByRole)
	s.Failed = maps.Clone(c.stats.Failed)
	return &s
}

// Collect reads every collection through the store cache and replaces the overview.
// An entity that fails keeps its count at zero and is listed in Failed.
func (c *Collector) Collect(ctx context.Context) *Stats {
	// Warm all lists concurrently; failures surface again per entity below.
	if err := c.store.Prefetch(ctx); err != nil {
		slog.Debug("prefetch for stats incomplete", slog.String("error", err.Error()))
	}

	now := c.now()
	next := &Stats{
		ProjectsByStatus: map[string]int64{},
		UsersByRole:      map[string]int64{},
		Failed:           map[string]string{},
		LastUpdated:      now,
	}
	fail := func(entity string, err error) {
		next.Failed[entity] = err.Error()
		slog.Warn("failed to collect stats", slog.String("entity", entity), slog.String("error", err.Error()))
	}

	if projects, err := c.store.ListProjects(ctx, nil); err != nil {
		fail(store.EntityProjects, err)
	} else {
		next.Projects = int64(len(projects))
		for _, p := range projects {
			next.ProjectsByStatus[p.Status]++
		}
	}

	if employees, err := c.store.ListEmployees(ctx, nil); err != nil {
		fail(store.EntityEmployees, err)
	} else {
		next.Employees = int64(len(employees))
		for _, e := range employees {
			if e.Status == "" || e.Status == store.EmployeeStatusActive {
				next.ActiveEmployees++
			}
		}
	}

	if contracts, err := c.store.ListContracts(ctx, nil); err != nil {
		fail(store.EntityContracts, err)
	} else {
		next.Contracts = int64(len(contracts))
		window := int(c.config.ExpiryWindow / (24 * time.Hour))
		for _, ct := range contracts {
			end, err := timezone.ParseDate(ct.EndDate, c.config.Location)
			if err != nil || end.IsZero() {
				continue
			}
			switch days := timezone.DaysUntil(end, now, c.config.Location); {
			case days < 0:
				next.ExpiredContracts++
			case days <= window:
				next.ExpiringContracts++
			}
		}
	}

	if members, err := c.store.ListTeamMembers(ctx, nil); err != nil {
		fail(store.EntityTeamMembers, err)
	} else {
		next.TeamMembers = int64(len(members))
	}

	if documents, err := c.store.ListDocuments(ctx, nil); err != nil {
		fail(store.EntityDocuments, err)
	} else {
		next.Documents = int64(len(documents))
	}

	if events, err := c.store.ListHistoryEvents(ctx, nil); err != nil {
		fail(store.EntityHistory, err)
	} else {
		next.HistoryEvents = int64(len(events))
	}

	if users, err := c.store.ListUsers(ctx, nil); err != nil {
		fail(store.EntityUsers, err)
	} else {
		next.Users = int64(len(users))
		for _, u := range users {
			next.UsersByRole[u.Role.String()]++
		}
	}

	c.mu.Lock()
	c.stats = next
	c.mu.Unlock()
	return c.GetStats()
}

// GetSummary returns a human-readable summary.
func (s *Stats) GetSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overview (updated %s)\n\n", s.LastUpdated.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Projects: %d%s\n", s.Projects, breakdown(s.ProjectsByStatus))
	fmt.Fprintf(&b, "Employees: %d (%d active)\n", s.Employees, s.ActiveEmployees)
	fmt.Fprintf(&b, "Contracts: %d (%d expiring, %d expired)\n", s.Contracts, s.ExpiringContracts, s.ExpiredContracts)
	fmt.Fprintf(&b, "Team members: %d\n", s.TeamMembers)
	fmt.Fprintf(&b, "Documents: %d\n", s.Documents)
	fmt.Fprintf(&b, "History events: %d\n", s.HistoryEvents)
	fmt.Fprintf(&b, "Users: %d%s\n", s.Users, breakdown(s.UsersByRole))
	for _, entity := range slices.Sorted(maps.Keys(s.Failed)) {
		fmt.Fprintf(&b, "! %s unavailable: %s\n", entity, s.Failed[entity])
	}
	return b.String()
}

func breakdown(counts map[string]int64) string {
	if len(counts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(counts))
	for _, key := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s %d", strings.ToLower(key), counts[key]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
