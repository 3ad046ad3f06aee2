package store

import (
	"context"
	"errors"
	"fmt"
)

// Validator is implemented by records that check their own invariants after
// being decoded.
type Validator interface {
	Validate() error
}

// Collection gives typed access to one collection of a Store.
type Collection[T any] struct {
	store Store
	name  string
}

// NewCollection returns typed access to the collection name of s.
func NewCollection[T any](s Store, name string) *Collection[T] {
	if s == nil {
		panic("store: nil store for collection " + name)
	}
	return &Collection[T]{store: s, name: name}
}

func (c *Collection[T]) Name() string { return c.name }

// Get decodes and validates the record with id.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return c.decode(doc)
}

// Set validates rec and writes it whole.
func (c *Collection[T]) Set(ctx context.Context, id string, rec *T) error {
	doc, err := c.encode(rec)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.name, id, doc)
}

// Create writes rec only when id is absent, or returns ErrAlreadyExists.
func (c *Collection[T]) Create(ctx context.Context, id string, rec *T) error {
	doc, err := c.encode(rec)
	if err != nil {
		return err
	}
	return c.store.Create(ctx, c.name, id, doc)
}

func (c *Collection[T]) Update(ctx context.Context, id string, fields Document) error {
	return c.store.Update(ctx, c.name, id, fields)
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

// FindEquals returns the records whose field equals value, ordered by id.
func (c *Collection[T]) FindEquals(ctx context.Context, field string, value any, limit int) ([]*T, error) {
	docs, err := c.store.QueryEquals(ctx, c.name, field, value, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		rec, err := c.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Collection[T]) encode(rec *T) (Document, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil %s record", ErrInvalidRecord, c.name)
	}
	if v, ok := any(rec).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, errors.Join(ErrInvalidRecord, err)
		}
	}
	return ToDocument(rec)
}

func (c *Collection[T]) decode(doc Document) (*T, error) {
	rec := new(T)
	if err := Decode(doc, rec); err != nil {
		return nil, err
	}
	if v, ok := any(rec).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, errors.Join(ErrInvalidRecord, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return rec, nil
}
