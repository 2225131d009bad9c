package mockapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Record is one stored JSON object.
type Record map[string]any

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r Record) str(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// entityDef is the server-side contract of one collection.
type entityDef struct {
	name     string
	singular string
	// idField is "id" except for settings, which are addressed by key.
	idField  string
	required []string
	// filters are exact-match query parameters; search matches searchable fields.
	filters    []string
	searchable []string
	defaults   Record
	// references maps a field to the entity its value must exist in.
	references map[string]string
	// readOnly fields are never taken from a request body.
	readOnly []string
	// cascade lists child entities and the foreign key deleted along with a record.
	cascade map[string]string
}

var entityDefs = []*entityDef{
	{
		name:       "projects",
		singular:   "project",
		required:   []string{"title"},
		filters:    []string{"category", "status"},
		searchable: []string{"title", "description"},
		defaults:   Record{"status": "DRAFT", "views": 0},
		readOnly:   []string{"views"},
	},
	{
		name:       "employees",
		singular:   "employee",
		required:   []string{"firstName", "lastName"},
		filters:    []string{"status", "department"},
		searchable: []string{"firstName", "lastName", "email", "position"},
		defaults:   Record{"status": "ACTIVE"},
		cascade:    map[string]string{"contracts": "employeeId"},
	},
	{
		name:       "contracts",
		singular:   "contract",
		required:   []string{"employeeId", "type"},
		filters:    []string{"employeeId", "status", "type"},
		defaults:   Record{"status": "ACTIVE"},
		references: map[string]string{"employeeId": "employees"},
	},
	{
		name:       "documents",
		singular:   "document",
		required:   []string{"title"},
		filters:    []string{"category"},
		searchable: []string{"title", "description"},
		references: map[string]string{"fileId": "files"},
	},
	{
		name:       "team-members",
		singular:   "team member",
		required:   []string{"name"},
		filters:    []string{"role"},
		searchable: []string{"name", "role", "bio"},
		defaults:   Record{"order": 0},
	},
	{
		name:       "history",
		singular:   "history event",
		required:   []string{"title", "date"},
		filters:    []string{"category"},
		searchable: []string{"title", "description"},
	},
	{
		name:       "users",
		singular:   "user",
		required:   []string{"username", "password"},
		filters:    []string{"role"},
		searchable: []string{"username", "email", "name"},
		defaults:   Record{"role": "VIEWER"},
	},
	{
		name:     "settings",
		singular: "setting",
		idField:  "key",
		required: []string{"value"},
	},
}

// table keeps records in insertion order. Callers hold Server.mu.
type table struct {
	def   *entityDef
	order []string
	rows  map[string]Record
}

func newTable(def *entityDef) *table {
	if def.idField == "" {
		def.idField = "id"
	}
	return &table{def: def, rows: make(map[string]Record)}
}

func (t *table) get(id string) (Record, bool) {
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// insert assigns the identifier and timestamps unless the record already has an id.
func (t *table) insert(r Record) Record {
	row := Record{}
	for k, v := range t.def.defaults {
		row[k] = v
	}
	for k, v := range r {
		row[k] = v
	}
	id := row.str(t.def.idField)
	if id == "" {
		id = shortuuid.New()
		row[t.def.idField] = id
	}
	now := timestamp()
	row["createdAt"] = now
	row["updatedAt"] = now

	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
	return row.clone()
}

// merge applies patch; a null member removes the field.
func (t *table) merge(id string, patch Record) (Record, bool) {
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	for k, v := range patch {
		if v == nil {
			delete(row, k)
			continue
		}
		row[k] = v
	}
	row["updatedAt"] = timestamp()
	return row.clone(), true
}

func (t *table) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// list returns rows matching every filter and, when set, the search text.
func (t *table) list(filters map[string]string, search string) []Record {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		row := t.rows[id]
		if !matchFilters(row, filters) {
			continue
		}
		if search != "" && !t.matchSearch(row, search) {
			continue
		}
		out = append(out, row.clone())
	}
	return out
}

func (t *table) matchSearch(row Record, search string) bool {
	for _, field := range t.def.searchable {
		if strings.Contains(strings.ToLower(row.str(field)), search) {
			return true
		}
	}
	return false
}

func matchFilters(row Record, filters map[string]string) bool {
	for field, want := range filters {
		if !strings.EqualFold(row.str(field), want) {
			return false
		}
	}
	return true
}

// missing returns the required fields that are absent or blank.
func (d *entityDef) missing(r Record) map[string]string {
	fields := map[string]string{}
	for _, field := range d.required {
		if strings.TrimSpace(r.str(field)) == "" {
			fields[field] = "required"
		}
	}
	return fields
}

func (d *entityDef) stripReadOnly(r Record) {
	delete(r, "id")
	delete(r, "createdAt")
	delete(r, "updatedAt")
	for _, field := range d.readOnly {
		delete(r, field)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
