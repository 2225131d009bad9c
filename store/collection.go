package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/internal/observability"
	"github.com/hrygo/backoffice/plugin/httpclient"
	"github.com/hrygo/backoffice/store/cache"
	"github.com/hrygo/backoffice/store/query"
)

// Client is the HTTP surface the collections need. *httpclient.Client implements it.
type Client interface {
	Do(ctx context.Context, r *httpclient.Request) error
	Upload(ctx context.Context, path string, file *httpclient.FileInput) (*httpclient.UploadedFile, error)
}

// CollectionConfig describes one server-owned entity.
type CollectionConfig struct {
	// Entity names the cache namespace, e.g. "projects".
	Entity string
	// Path is the REST collection path. Defaults to "/" + Entity.
	Path string
	// IDField is the JSON member holding the record identifier. Defaults to "id".
	IDField string
	// UpdateMethod is PATCH unless the API wants PUT.
	UpdateMethod string
	// ConfirmationField carries the delete confirmation token. Defaults to "deleteCode".
	ConfirmationField string
	// DisableCreate and DisableDelete reject those operations locally.
	DisableCreate bool
	DisableDelete bool
}

func (c *CollectionConfig) withDefaults() {
	if c.Path == "" {
		c.Path = "/" + c.Entity
	}
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.UpdateMethod == "" {
		c.UpdateMethod = http.MethodPatch
	}
	if c.ConfirmationField == "" {
		c.ConfirmationField = "deleteCode"
	}
}

// Collection is the read/write surface of one entity. Reads go through the shared
// cache; each write is exactly one request and, only after it succeeds, invalidates
// the keys its rule selects. Nothing is retried.
type Collection[T any] struct {
	config CollectionConfig
	client Client
	cache  *cache.Cache
	rules  *query.Rules
	logger *slog.Logger
}

// NewCollection wires a collection to its collaborators.
func NewCollection[T any](config CollectionConfig, client Client, c *cache.Cache, rules *query.Rules, logger *slog.Logger) *Collection[T] {
	config.withDefaults()
	if rules == nil {
		rules = query.NewRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{config: config, client: client, cache: c, rules: rules, logger: logger}
}

// Entity returns the entity name.
func (c *Collection[T]) Entity() string {
	return c.config.Entity
}

// ListDescriptor builds the descriptor List would read.
func (c *Collection[T]) ListDescriptor(params query.Params) query.Descriptor {
	return query.List(c.config.Entity, params)
}

// RecordDescriptor builds the descriptor Get would read.
func (c *Collection[T]) RecordDescriptor(id string) query.Descriptor {
	return query.ByID(c.config.Entity, id)
}

// List returns the records matching params. Identical params share one cache entry
// and, while a request is pending, one request.
func (c *Collection[T]) List(ctx context.Context, params query.Params) ([]T, error) {
	return c.list(ctx, c.ListDescriptor(params))
}

func (c *Collection[T]) list(ctx context.Context, d query.Descriptor) ([]T, error) {
	v, err := c.cache.Fetch(ctx, d.Key(), func(ctx context.Context) (any, error) {
		var out []T
		err := c.client.Do(ctx, &httpclient.Request{
			Method:    http.MethodGet,
			Path:      c.config.Path,
			Query:     d.Query(),
			Out:       &out,
			Entity:    c.config.Entity,
			Operation: "list",
		})
		if out == nil && err == nil {
			out = []T{}
		}
		return out, err
	})
	if err != nil {
		return nil, normalize(err)
	}
	records, _ := v.([]T)
	return append([]T(nil), records...), nil
}

// Get returns one record. An empty id is the disabled case: no request is sent and
// (nil, nil) is returned.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	return c.get(ctx, c.RecordDescriptor(id))
}

func (c *Collection[T]) get(ctx context.Context, d query.Descriptor) (*T, error) {
	if !d.Enabled() {
		return nil, nil
	}
	v, err := c.cache.Fetch(ctx, d.Key(), func(ctx context.Context) (any, error) {
		out := new(T)
		err := c.client.Do(ctx, &httpclient.Request{
			Method:    http.MethodGet,
			Path:      c.recordPath(d.ID()),
			Out:       out,
			Entity:    c.config.Entity,
			Operation: "get",
		})
		return *out, err
	})
	if err != nil {
		return nil, normalize(err)
	}
	record, _ := v.(T)
	return &record, nil
}

// Create sends payload, which must not carry server-assigned fields.
func (c *Collection[T]) Create(ctx context.Context, payload any) (*T, error) {
	if c.config.DisableCreate {
		return nil, apierror.Validation(c.config.Entity+" cannot be created", nil)
	}
	out := new(T)
	if err := c.client.Do(ctx, &httpclient.Request{
		Method:    http.MethodPost,
		Path:      c.config.Path,
		Body:      payload,
		Out:       out,
		Entity:    c.config.Entity,
		Operation: "create",
	}); err != nil {
		return nil, normalize(err)
	}

	fields := toFields(out)
	c.invalidate(ctx, query.Mutation{
		Op:      query.OpCreate,
		Entity:  c.config.Entity,
		ID:      idString(fields[c.config.IDField]),
		Payload: fields,
	})
	return out, nil
}

// Update sends a partial payload for id.
func (c *Collection[T]) Update(ctx context.Context, id string, partial any) (*T, error) {
	if id == "" {
		return nil, apierror.Validation("id is required", map[string]string{c.config.IDField: "required"})
	}
	previous := c.cached(id)
	out := new(T)
	if err := c.client.Do(ctx, &httpclient.Request{
		Method:    c.config.UpdateMethod,
		Path:      c.recordPath(id),
		Body:      partial,
		Out:       out,
		Entity:    c.config.Entity,
		Operation: "update",
	}); err != nil {
		return nil, normalize(err)
	}

	fields := mergeFields(toFields(partial), toFields(out))
	c.invalidate(ctx, query.Mutation{
		Op:       query.OpUpdate,
		Entity:   c.config.Entity,
		ID:       id,
		Payload:  fields,
		Previous: previous,
	})
	return out, nil
}

// Delete removes id. confirmationToken, when non-empty, is sent to the server as is.
func (c *Collection[T]) Delete(ctx context.Context, id, confirmationToken string) error {
	if c.config.DisableDelete {
		return apierror.Validation(c.config.Entity+" cannot be deleted", nil)
	}
	if id == "" {
		return apierror.Validation("id is required", map[string]string{c.config.IDField: "required"})
	}

	var body any
	if confirmationToken != "" {
		body = map[string]string{c.config.ConfirmationField: confirmationToken}
	}
	previous := c.cached(id)

	if err := c.client.Do(ctx, &httpclient.Request{
		Method:    http.MethodDelete,
		Path:      c.recordPath(id),
		Body:      body,
		Entity:    c.config.Entity,
		Operation: "delete",
	}); err != nil {
		return normalize(err)
	}

	c.invalidate(ctx, query.Mutation{
		Op:                query.OpDelete,
		Entity:            c.config.Entity,
		ID:                id,
		Previous:          previous,
		ConfirmationToken: confirmationToken,
	})
	return nil
}

// invalidate marks every key selected for m stale. It runs only after the server
// confirmed the write.
func (c *Collection[T]) invalidate(ctx context.Context, m query.Mutation) []string {
	selectors := c.rules.Selectors(m)
	keys := c.cache.InvalidateMatching(func(key string) bool {
		return query.MatchAny(selectors, key)
	})

	logger := c.logger
	if rc, ok := observability.FromContext(ctx); ok {
		logger = rc.WithFields()
	}
	logger.Debug("invalidated cache keys",
		slog.String(observability.LogFieldEntity, m.Entity),
		slog.String(observability.LogFieldOperation, string(m.Op)),
		slog.Any("keys", keys),
	)
	return keys
}

// cached returns the last known fields of id, so relations can find its parent.
func (c *Collection[T]) cached(id string) map[string]any {
	if entry, ok := c.cache.Peek(query.RecordKey(c.config.Entity, id)); ok && entry.HasValue {
		return toFields(entry.Value)
	}
	return nil
}

func (c *Collection[T]) recordPath(id string) string {
	return strings.TrimRight(c.config.Path, "/") + "/" + url.PathEscape(id)
}

// normalize turns any failure into an *apierror.Error.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := apierror.As(err); ok {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apierror.Transport(err)
	}
	return apierror.Internal("request failed", err)
}

// toFields flattens v into its JSON members.
func toFields(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

func mergeFields(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case nil:
		return ""
	}
	return ""
}
