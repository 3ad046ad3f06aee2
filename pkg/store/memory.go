package store

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"reflect"
	"slices"
	"sync"
)

// Memory is an in-process Store. Documents are kept serialized so callers
// never share mutable maps with the store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	m.mu.RLock()
	raw, ok := m.data[collection][id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshalDoc(raw)
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(collection)[id] = raw
	return nil
}

func (m *Memory) Create(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(collection)
	if _, exists := b[id]; exists {
		return ErrAlreadyExists
	}
	b[id] = raw
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	patch, err := ToDocument(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	doc, err := unmarshalDoc(raw)
	if err != nil {
		return err
	}
	maps.Copy(doc, patch)
	merged, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	m.data[collection][id] = merged
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *Memory) QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	want, err := normalize(value)
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}

	m.mu.RLock()
	bucket := m.data[collection]
	ids := slices.Sorted(maps.Keys(bucket))
	raws := make([][]byte, 0, len(ids))
	for _, id := range ids {
		raws = append(raws, bucket[id])
	}
	m.mu.RUnlock()

	var out []Document
	for _, raw := range raws {
		doc, err := unmarshalDoc(raw)
		if err != nil {
			return nil, err
		}
		if got, ok := doc[field]; ok && reflect.DeepEqual(got, want) {
			out = append(out, doc)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// bucket must be called with m.mu held for writing.
func (m *Memory) bucket(collection string) map[string][]byte {
	b, ok := m.data[collection]
	if !ok {
		b = make(map[string][]byte)
		m.data[collection] = b
	}
	return b
}

func unmarshalDoc(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	return doc, nil
}
