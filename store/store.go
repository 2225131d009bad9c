package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/store/cache"
	"github.com/hrygo/backoffice/store/query"
)

// Entity names. They double as cache namespaces and REST collection paths.
const (
	EntityProjects    = "projects"
	EntityEmployees   = "employees"
	EntityContracts   = "contracts"
	EntityDocuments   = "documents"
	EntityTeamMembers = "team-members"
	EntityHistory     = "history"
	EntityUsers       = "users"
	EntitySettings    = "settings"
)

// Store provides access to every server-owned collection of the back-office API.
type Store struct {
	client Client
	cache  *cache.Cache
	rules  *query.Rules
	logger *slog.Logger

	projects    *Collection[Project]
	employees   *Collection[Employee]
	contracts   *Collection[Contract]
	documents   *Collection[Document]
	teamMembers *Collection[TeamMember]
	history     *Collection[HistoryEvent]
	users       *Collection[User]
	settings    *Collection[Setting]

	resources map[string]Resource
}

// New creates a new instance of Store. The cache is owned by the store from here on
// and closed by Close; tests pass an isolated cache per case.
func New(client Client, c *cache.Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.New(cache.DefaultConfig())
	}

	rules := query.NewRules()
	rules.Relate(query.Relation{Parent: EntityEmployees, Child: EntityContracts, ForeignKey: "employeeId"})

	s := &Store{
		client: client,
		cache:  c,
		rules:  rules,
		logger: logger,
	}
	s.projects = NewCollection[Project](CollectionConfig{Entity: EntityProjects}, client, c, rules, logger)
	s.employees = NewCollection[Employee](CollectionConfig{Entity: EntityEmployees}, client, c, rules, logger)
	s.contracts = NewCollection[Contract](CollectionConfig{Entity: EntityContracts}, client, c, rules, logger)
	s.documents = NewCollection[Document](CollectionConfig{Entity: EntityDocuments}, client, c, rules, logger)
	s.teamMembers = NewCollection[TeamMember](CollectionConfig{Entity: EntityTeamMembers}, client, c, rules, logger)
	s.history = NewCollection[HistoryEvent](CollectionConfig{Entity: EntityHistory}, client, c, rules, logger)
	s.users = NewCollection[User](CollectionConfig{Entity: EntityUsers}, client, c, rules, logger)
	s.settings = NewCollection[Setting](CollectionConfig{
		Entity:        EntitySettings,
		IDField:       "key",
		UpdateMethod:  http.MethodPut,
		DisableCreate: true,
		DisableDelete: true,
	}, client, c, rules, logger)

	s.resources = map[string]Resource{
		EntityProjects:    s.projects,
		EntityEmployees:   s.employees,
		EntityContracts:   s.contracts,
		EntityDocuments:   s.documents,
		EntityTeamMembers: s.teamMembers,
		EntityHistory:     s.history,
		EntityUsers:       s.users,
		EntitySettings:    s.settings,
	}
	return s
}

// Cache returns the shared query cache.
func (s *Store) Cache() *cache.Cache {
	return s.cache
}

// Rules returns the invalidation rule registry, so callers can relate extra entities.
func (s *Store) Rules() *query.Rules {
	return s.rules
}

func (s *Store) Projects() *Collection[Project]       { return s.projects }
func (s *Store) Employees() *Collection[Employee]     { return s.employees }
func (s *Store) Contracts() *Collection[Contract]     { return s.contracts }
func (s *Store) Documents() *Collection[Document]     { return s.documents }
func (s *Store) TeamMembers() *Collection[TeamMember] { return s.teamMembers }
func (s *Store) History() *Collection[HistoryEvent]   { return s.history }
func (s *Store) Users() *Collection[User]             { return s.users }
func (s *Store) Settings() *Collection[Setting]       { return s.settings }

// Entities lists the known entity names in sorted order.
func (s *Store) Entities() []string {
	names := make([]string, 0, len(s.resources))
	for name := range s.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resource returns the untyped surface of entity.
func (s *Store) Resource(entity string) (Resource, error) {
	r, ok := s.resources[entity]
	if !ok {
		return nil, apierror.Validation(fmt.Sprintf("unknown entity %q", entity), nil)
	}
	return r, nil
}

// Prefetch warms the unfiltered lists of entities concurrently. No entities means all.
func (s *Store) Prefetch(ctx context.Context, entities ...string) error {
	if len(entities) == 0 {
		entities = s.Entities()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, entity := range entities {
		r, err := s.Resource(entity)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := r.Warm(ctx); err != nil {
				return errors.Wrapf(err, "failed to prefetch %s", entity)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Store) Close() error {
	s.cache.Close()
	return nil
}

func pointers[T any](list []T) []*T {
	out := make([]*T, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}
