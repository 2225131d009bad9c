// Package query derives canonical cache keys for reads against remote collections and
// describes which keys a write makes stale.
//
// Key layout:
//
//	projects                          list, no filter
//	projects?search=a&status=DRAFT    list, params sorted by name
//	projects/8f2c                     single record
//
// Keys are stable under reordering of params and ignore absent values, so two callers
// asking for the same logical read share one cache entry and one in-flight request.
package query

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Params is an optional filter mapping. Values must be scalars. nil, typed-nil pointers
// and empty strings are treated as absent.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Values canonicalizes p into url.Values, dropping absent entries.
func (p Params) Values() url.Values {
	values := url.Values{}
	for k, v := range p {
		if s, ok := scalar(v); ok {
			values.Set(k, s)
		}
	}
	return values
}

// scalar formats v, reporting false when v is absent.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", false
		}
		s := t.String()
		return s, s != ""
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		return scalar(rv.Elem().Interface())
	}
	// Named scalar types such as `type Status string`.
	switch rv.Kind() {
	case reflect.String:
		return scalar(rv.String())
	case reflect.Bool:
		return scalar(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return scalar(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return scalar(rv.Float())
	}
	return fmt.Sprint(v), true
}

// DeriveCacheKey returns the canonical list key for entity and params.
// Empty and nil params both yield the bare entity name.
func DeriveCacheKey(entity string, params Params) string {
	values := params.Values()
	if len(values) == 0 {
		return entity
	}
	// Encode sorts by key.
	return entity + "?" + values.Encode()
}

// RecordKey returns the cache key of a single record.
func RecordKey(entity, id string) string {
	return entity + "/" + url.PathEscape(id)
}

// Descriptor identifies one readable resource. It is immutable once constructed.
type Descriptor struct {
	entity string
	id     string
	byID   bool
	params url.Values
	key    string
}

// List describes a collection read.
func List(entity string, params Params) Descriptor {
	return Descriptor{
		entity: entity,
		params: params.Values(),
		key:    DeriveCacheKey(entity, params),
	}
}

// ByID describes a single-record read. An empty id yields a disabled descriptor.
func ByID(entity, id string) Descriptor {
	d := Descriptor{entity: entity, id: id, byID: true}
	if id != "" {
		d.key = RecordKey(entity, id)
	}
	return d
}

func (d Descriptor) Entity() string { return d.entity }
func (d Descriptor) ID() string     { return d.id }
func (d Descriptor) Key() string    { return d.key }
func (d Descriptor) IsRecord() bool { return d.byID }

// Enabled reports whether the read may be attempted at all.
func (d Descriptor) Enabled() bool {
	return d.entity != "" && (!d.byID || d.id != "")
}

// Query returns a copy of the canonical query values.
func (d Descriptor) Query() url.Values {
	out := make(url.Values, len(d.params))
	for k, v := range d.params {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Parsed is the structured form of a cache key.
type Parsed struct {
	Entity string
	ID     string
	Record bool
	Params url.Values
}

// ParseKey recovers the entity, id and params a key was derived from.
func ParseKey(key string) (Parsed, error) {
	if key == "" {
		return Parsed{}, errors.New("empty cache key")
	}
	if i := strings.IndexByte(key, '?'); i >= 0 {
		values, err := url.ParseQuery(key[i+1:])
		if err != nil {
			return Parsed{}, errors.Wrapf(err, "malformed cache key %q", key)
		}
		return Parsed{Entity: key[:i], Params: values}, nil
	}
	if i := strings.IndexByte(key, '/'); i >= 0 {
		id, err := url.PathUnescape(key[i+1:])
		if err != nil {
			return Parsed{}, errors.Wrapf(err, "malformed cache key %q", key)
		}
		return Parsed{Entity: key[:i], ID: id, Record: true}, nil
	}
	return Parsed{Entity: key, Params: url.Values{}}, nil
}
