package store

import (
	"context"
	"encoding/json"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/store/query"
)

// Resource is the entity-agnostic view of a collection. Payloads and results are raw
// JSON, which is what the CLI works with.
type Resource interface {
	Entity() string
	ListJSON(ctx context.Context, params query.Params) (json.RawMessage, error)
	// GetJSON returns nil for an empty id.
	GetJSON(ctx context.Context, id string) (json.RawMessage, error)
	CreateJSON(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	UpdateJSON(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, id, confirmationToken string) error
	// Warm loads the unfiltered list into the cache.
	Warm(ctx context.Context) error

	ListDescriptor(params query.Params) query.Descriptor
	// WatchJSON follows list reads of the collection, rendered as raw JSON.
	WatchJSON(ctx context.Context) *Watch[json.RawMessage]
}

var _ Resource = (*Collection[Project])(nil)

func (c *Collection[T]) ListJSON(ctx context.Context, params query.Params) (json.RawMessage, error) {
	list, err := c.List(ctx, params)
	if err != nil {
		return nil, err
	}
	return marshal(list)
}

func (c *Collection[T]) GetJSON(ctx context.Context, id string) (json.RawMessage, error) {
	record, err := c.Get(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	return marshal(record)
}

func (c *Collection[T]) CreateJSON(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if err := checkObject(payload); err != nil {
		return nil, err
	}
	record, err := c.Create(ctx, payload)
	if err != nil {
		return nil, err
	}
	return marshal(record)
}

func (c *Collection[T]) UpdateJSON(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	if err := checkObject(payload); err != nil {
		return nil, err
	}
	// Decoded so invalidation sees the written fields.
	var partial map[string]any
	if err := json.Unmarshal(payload, &partial); err != nil {
		return nil, apierror.Validation("payload must be a JSON object", nil)
	}
	record, err := c.Update(ctx, id, partial)
	if err != nil {
		return nil, err
	}
	return marshal(record)
}

func (c *Collection[T]) Warm(ctx context.Context) error {
	_, err := c.List(ctx, nil)
	return err
}

func (c *Collection[T]) WatchJSON(ctx context.Context) *Watch[json.RawMessage] {
	return newWatch(ctx, c.cache, func(ctx context.Context, d query.Descriptor) (json.RawMessage, error) {
		list, err := c.list(ctx, d)
		if err != nil {
			return nil, err
		}
		return marshal(list)
	})
}

func checkObject(payload json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return apierror.Validation("payload must be a JSON object", nil)
	}
	return nil
}

func marshal(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apierror.Internal("failed to encode result", err)
	}
	return raw, nil
}
