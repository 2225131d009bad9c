package query

import (
	"sort"
	"sync"
)

// Op is the kind of a write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation describes one create/update/delete against an entity. It is built per
// user action and discarded after completion.
type Mutation struct {
	Op     Op
	Entity string
	// ID is the target record; for creates it is the server-assigned id once known.
	ID string
	// Payload holds the written fields. Relations read foreign keys from it.
	Payload map[string]any
	// Previous holds the record as last cached before an update or delete, if any.
	Previous map[string]any
	// ConfirmationToken is passed through to the server untouched.
	ConfirmationToken string
}

// Selector matches cache keys.
type Selector struct {
	Entity string
	// ID selects the record key of that id.
	ID string
	// Records selects every record key of Entity.
	Records bool
	// Lists selects list keys of Entity. Params, when set, narrows them to lists
	// carrying exactly those param values.
	Lists  bool
	Params map[string]string
}

// Matches reports whether key falls under s.
func (s Selector) Matches(key string) bool {
	parsed, err := ParseKey(key)
	if err != nil || parsed.Entity != s.Entity {
		return false
	}
	if parsed.Record {
		return s.Records || (s.ID != "" && parsed.ID == s.ID)
	}
	if !s.Lists {
		return false
	}
	for k, v := range s.Params {
		if parsed.Params.Get(k) != v {
			return false
		}
	}
	return true
}

// MatchAny reports whether key matches at least one selector.
func MatchAny(selectors []Selector, key string) bool {
	for _, s := range selectors {
		if s.Matches(key) {
			return true
		}
	}
	return false
}

// Rule maps a completed mutation to the keys it makes stale.
type Rule func(m Mutation) []Selector

// DefaultRule invalidates every list of the entity, plus the record itself for
// updates and deletes.
func DefaultRule(m Mutation) []Selector {
	selectors := []Selector{{Entity: m.Entity, Lists: true}}
	if m.ID != "" && (m.Op == OpUpdate || m.Op == OpDelete) {
		selectors = append(selectors, Selector{Entity: m.Entity, ID: m.ID})
	}
	return selectors
}

// Relation declares that Child records reference a Parent record through ForeignKey,
// e.g. contracts.employeeId -> employees.
type Relation struct {
	Parent     string
	Child      string
	ForeignKey string
}

// Rules is the registry of invalidation rules. It is total: entities without a
// registered rule use DefaultRule.
type Rules struct {
	mu        sync.RWMutex
	rules     map[string]Rule
	relations []Relation
}

// NewRules creates an empty registry.
func NewRules() *Rules {
	return &Rules{rules: make(map[string]Rule)}
}

// Register overrides the rule for entity.
func (r *Rules) Register(entity string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[entity] = rule
}

// Relate adds a parent/child relation.
func (r *Rules) Relate(rel Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relations = append(r.relations, rel)
}

// Selectors returns the deterministic selector set for m.
func (r *Rules) Selectors(m Mutation) []Selector {
	r.mu.RLock()
	rule, ok := r.rules[m.Entity]
	relations := append([]Relation(nil), r.relations...)
	r.mu.RUnlock()

	if !ok {
		rule = DefaultRule
	}
	selectors := rule(m)

	for _, rel := range relations {
		switch m.Entity {
		case rel.Parent:
			// Child lists filtered by this parent.
			if m.ID != "" && m.Op != OpCreate {
				selectors = append(selectors, Selector{
					Entity: rel.Child,
					Lists:  true,
					Params: map[string]string{rel.ForeignKey: m.ID},
				})
			}
		case rel.Child:
			// The parent record may embed or count its children. An update can move
			// the child, so the previous parent is stale too; when it is unknown every
			// parent record is.
			if m.Op != OpCreate && m.Previous == nil {
				selectors = append(selectors, Selector{Entity: rel.Parent, Records: true})
				break
			}
			seen := map[string]bool{}
			for _, fields := range []map[string]any{m.Payload, m.Previous} {
				if fk, ok := scalar(fields[rel.ForeignKey]); ok && !seen[fk] {
					seen[fk] = true
					selectors = append(selectors, Selector{Entity: rel.Parent, ID: fk})
				}
			}
		}
	}
	return sortSelectors(selectors)
}

func sortSelectors(selectors []Selector) []Selector {
	sort.SliceStable(selectors, func(i, j int) bool {
		a, b := selectors[i], selectors[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.Lists != b.Lists {
			return a.Lists
		}
		if a.Records != b.Records {
			return a.Records
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return len(a.Params) < len(b.Params)
	})
	return selectors
}
