package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound       = errors.New("store.not_found")
	ErrAlreadyExists  = errors.New("store.already_exists")
	ErrUnavailable    = errors.New("store.unavailable")
	ErrInvalidRecord  = errors.New("store.invalid_record")
	ErrUnknownBackend = errors.New("store.unknown_backend")
)

// Document is a JSON-compatible record body.
type Document map[string]any

// Store is the set of operations the billing core needs from durable storage.
type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes the whole document, replacing any previous version.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Create writes doc only if id is absent and returns ErrAlreadyExists
	// otherwise. Concurrent callers observe exactly one success.
	Create(ctx context.Context, collection, id string, doc Document) error
	// Update overwrites the supplied top-level fields and leaves the rest
	// untouched. Returns ErrNotFound when the document does not exist.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// QueryEquals returns documents whose top-level field equals value,
	// ordered by id. A limit <= 0 means no limit.
	QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]Document, error)
}

// ToDocument converts any JSON-serializable value into a Document.
func ToDocument(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	return doc, nil
}

// Decode fills v from doc.
func Decode(doc Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	return nil
}

// normalize converts a query value to the representation documents hold after
// a JSON round trip, so named string types and ints compare equal.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
