package query

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

type label struct{ v string }

func (l *label) String() string { return l.v }

func TestDeriveCacheKey(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		params Params
		want   string
	}{
		{"nil params", "projects", nil, "projects"},
		{"empty params", "projects", Params{}, "projects"},
		{"only absent values", "projects", Params{"search": nil, "status": ""}, "projects"},
		{"sorted keys", "projects", Params{"status": "DRAFT", "category": "edu"}, "projects?category=edu&status=DRAFT"},
		{"escaped values", "projects", Params{"search": "a b&c"}, "projects?search=a+b%26c"},
		{"ints and bools", "contracts", Params{"employeeId": 7, "active": true}, "contracts?active=true&employeeId=7"},
		{"named string type", "projects", Params{"status": status("PUBLISHED")}, "projects?status=PUBLISHED"},
		{"stringer", "projects", Params{"category": &label{"news"}}, "projects?category=news"},
		{"float", "history", Params{"year": 1998.5}, "history?year=1998.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveCacheKey(tt.entity, tt.params))
		})
	}
}

func TestDeriveCacheKeyIgnoresOrderAndAbsentValues(t *testing.T) {
	var nilString *string
	var nilLabel *label
	search := "water"

	base := DeriveCacheKey("projects", Params{"search": "water", "status": "DRAFT"})
	variants := []Params{
		{"status": "DRAFT", "search": "water"},
		{"status": "DRAFT", "search": &search},
		{"status": "DRAFT", "search": "water", "category": nil},
		{"status": "DRAFT", "search": "water", "category": nilString},
		{"status": "DRAFT", "search": "water", "category": nilLabel},
		{"status": "DRAFT", "search": "water", "category": ""},
	}
	for i, p := range variants {
		assert.Equal(t, base, DeriveCacheKey("projects", p), "variant %d", i)
	}

	assert.NotEqual(t, base, DeriveCacheKey("projects", Params{"search": "wate", "status": "DRAFT"}))
	assert.NotEqual(t, base, DeriveCacheKey("employees", Params{"search": "water", "status": "DRAFT"}))
}

func TestDescriptor(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		d := List("projects", Params{"search": "a"})
		assert.True(t, d.Enabled())
		assert.False(t, d.IsRecord())
		assert.Equal(t, "projects?search=a", d.Key())
		assert.Equal(t, "a", d.Query().Get("search"))

		// Query returns a copy.
		d.Query().Set("search", "b")
		assert.Equal(t, "a", d.Query().Get("search"))
	})

	t.Run("by id", func(t *testing.T) {
		d := ByID("projects", "p 1")
		assert.True(t, d.Enabled())
		assert.True(t, d.IsRecord())
		assert.Equal(t, "projects/p%201", d.Key())
	})

	t.Run("by empty id is disabled", func(t *testing.T) {
		d := ByID("projects", "")
		assert.False(t, d.Enabled())
		assert.Empty(t, d.Key())
	})
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key  string
		want Parsed
	}{
		{"projects", Parsed{Entity: "projects", Params: map[string][]string{}}},
		{"projects?search=a+b&status=DRAFT", Parsed{Entity: "projects", Params: map[string][]string{"search": {"a b"}, "status": {"DRAFT"}}}},
		{"projects/p%201", Parsed{Entity: "projects", ID: "p 1", Record: true}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseKey(tt.key)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseKey(%q) mismatch (-want +got):\n%s", tt.key, diff)
			}
		})
	}

	_, err := ParseKey("")
	assert.Error(t, err)

	_, err = ParseKey("projects/%zz")
	var escapeErr url.EscapeError
	assert.ErrorAs(t, err, &escapeErr)
	assert.Contains(t, err.Error(), `malformed cache key "projects/%zz"`)
}

func TestSelectorMatches(t *testing.T) {
	tests := []struct {
		name     string
		selector Selector
		key      string
		want     bool
	}{
		{"all lists", Selector{Entity: "projects", Lists: true}, "projects", true},
		{"all lists with params", Selector{Entity: "projects", Lists: true}, "projects?search=x", true},
		{"lists do not match records", Selector{Entity: "projects", Lists: true}, "projects/p1", false},
		{"record", Selector{Entity: "projects", ID: "p1"}, "projects/p1", true},
		{"other record", Selector{Entity: "projects", ID: "p1"}, "projects/p2", false},
		{"record selector skips lists", Selector{Entity: "projects", ID: "p1"}, "projects", false},
		{"other entity", Selector{Entity: "projects", Lists: true}, "users", false},
		{"params narrow", Selector{Entity: "contracts", Lists: true, Params: map[string]string{"employeeId": "e1"}}, "contracts?employeeId=e1&status=ACTIVE", true},
		{"params mismatch", Selector{Entity: "contracts", Lists: true, Params: map[string]string{"employeeId": "e1"}}, "contracts?employeeId=e2", false},
		{"params absent", Selector{Entity: "contracts", Lists: true, Params: map[string]string{"employeeId": "e1"}}, "contracts", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.selector.Matches(tt.key))
		})
	}
}

func TestRules(t *testing.T) {
	rules := NewRules()
	rules.Relate(Relation{Parent: "employees", Child: "contracts", ForeignKey: "employeeId"})

	t.Run("create invalidates lists only", func(t *testing.T) {
		got := rules.Selectors(Mutation{Op: OpCreate, Entity: "projects", ID: "p1"})
		assert.Equal(t, []Selector{{Entity: "projects", Lists: true}}, got)
	})

	t.Run("update invalidates lists, record and child lists", func(t *testing.T) {
		got := rules.Selectors(Mutation{Op: OpUpdate, Entity: "employees", ID: "e1"})
		want := []Selector{
			{Entity: "contracts", Lists: true, Params: map[string]string{"employeeId": "e1"}},
			{Entity: "employees", Lists: true},
			{Entity: "employees", ID: "e1"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("selectors mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("child write invalidates parent record", func(t *testing.T) {
		got := rules.Selectors(Mutation{Op: OpCreate, Entity: "contracts", ID: "c1", Payload: map[string]any{"employeeId": "e1"}})
		want := []Selector{
			{Entity: "contracts", Lists: true},
			{Entity: "employees", ID: "e1"},
		}
		assert.Equal(t, want, got)
	})

	t.Run("moved child invalidates both parents", func(t *testing.T) {
		got := rules.Selectors(Mutation{
			Op:       OpUpdate,
			Entity:   "contracts",
			ID:       "c1",
			Payload:  map[string]any{"employeeId": "e2"},
			Previous: map[string]any{"id": "c1", "employeeId": "e1"},
		})
		want := []Selector{
			{Entity: "contracts", Lists: true},
			{Entity: "contracts", ID: "c1"},
			{Entity: "employees", ID: "e1"},
			{Entity: "employees", ID: "e2"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("selectors mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown previous parent invalidates every parent record", func(t *testing.T) {
		got := rules.Selectors(Mutation{Op: OpDelete, Entity: "contracts", ID: "c1"})
		want := []Selector{
			{Entity: "contracts", Lists: true},
			{Entity: "contracts", ID: "c1"},
			{Entity: "employees", Records: true},
		}
		assert.Equal(t, want, got)
		assert.True(t, MatchAny(got, RecordKey("employees", "e7")))
		assert.False(t, MatchAny(got, DeriveCacheKey("employees", nil)))
	})

	t.Run("registered rule overrides default", func(t *testing.T) {
		rules.Register("settings", func(m Mutation) []Selector {
			return []Selector{{Entity: "settings", Lists: true}, {Entity: "settings", ID: m.ID}}
		})
		got := rules.Selectors(Mutation{Op: OpUpdate, Entity: "settings", ID: "siteName"})
		assert.Len(t, got, 2)
	})

	t.Run("deterministic", func(t *testing.T) {
		m := Mutation{Op: OpDelete, Entity: "employees", ID: "e9"}
		assert.Equal(t, rules.Selectors(m), rules.Selectors(m))
	})
}
