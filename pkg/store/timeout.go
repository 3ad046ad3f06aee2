package store

import (
	"context"
	"errors"
	"time"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. Context deadline and cancellation
// errors are reported as ErrUnavailable.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: d}
}

func (t *timeoutStore) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	doc, err := t.next.Get(ctx, collection, id)
	return doc, classify(err)
}

func (t *timeoutStore) Set(ctx context.Context, collection, id string, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.Set(ctx, collection, id, doc))
}

func (t *timeoutStore) Create(ctx context.Context, collection, id string, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.Create(ctx, collection, id, doc))
}

func (t *timeoutStore) Update(ctx context.Context, collection, id string, fields Document) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.Update(ctx, collection, id, fields))
}

func (t *timeoutStore) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.Delete(ctx, collection, id))
}

func (t *timeoutStore) QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	docs, err := t.next.QueryEquals(ctx, collection, field, value, limit)
	return docs, classify(err)
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
