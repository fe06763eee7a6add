package db

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development.
// Documents go through a JSON round-trip so lookups behave like the
// schemaless backing store: field names follow json tags, numbers come
// back as float64.
type MemoryStore struct {
	mu    sync.RWMutex
	colls map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{colls: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

func (s *MemoryStore) bucket(name string) map[string]map[string]any {
	b, ok := s.colls[name]
	if !ok {
		b = make(map[string]map[string]any)
		s.colls[name] = b
	}
	return b
}

type memoryCollection struct {
	store *MemoryStore
	name  string
}

func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeInto(src any, out any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func matches(doc map[string]any, filter Filter) bool {
	for key, want := range filter {
		norm, err := toValue(want)
		if err != nil {
			return false
		}
		got, ok := doc[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, norm) {
			return false
		}
	}
	return true
}

func toValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}
	return norm, nil
}

func (c *memoryCollection) Get(ctx context.Context, id string, out any) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	doc, ok := c.store.colls[c.name][id]
	if !ok {
		return ErrNotFound
	}
	return decodeInto(doc, out)
}

func (c *memoryCollection) Put(ctx context.Context, id string, doc any) error {
	m, err := toDoc(doc)
	if err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.bucket(c.name)[id] = m
	return nil
}

func (c *memoryCollection) Patch(ctx context.Context, id string, fields map[string]any) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	doc, ok := c.store.colls[c.name][id]
	if !ok {
		return ErrNotFound
	}
	for key, v := range fields {
		norm, err := toValue(v)
		if err != nil {
			return err
		}
		doc[key] = norm
	}
	return nil
}

func (c *memoryCollection) Delete(ctx context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.colls[c.name], id)
	return nil
}

func (c *memoryCollection) FindOne(ctx context.Context, filter Filter, out any) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	for _, id := range c.sortedIDs() {
		doc := c.store.colls[c.name][id]
		if matches(doc, filter) {
			return decodeInto(doc, out)
		}
	}
	return ErrNotFound
}

func (c *memoryCollection) Find(ctx context.Context, filter Filter, out any) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	docs := make([]map[string]any, 0)
	for _, id := range c.sortedIDs() {
		doc := c.store.colls[c.name][id]
		if matches(doc, filter) {
			docs = append(docs, doc)
		}
	}
	return decodeInto(docs, out)
}

func (c *memoryCollection) IncrementWithLimit(ctx context.Context, id, field string, delta, limit int64) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	bucket := c.store.bucket(c.name)
	doc, ok := bucket[id]
	if !ok {
		doc = map[string]any{"id": id, field: float64(0)}
		bucket[id] = doc
	}
	current, _ := doc[field].(float64)
	next := int64(current) + delta
	if delta > 0 && next > limit {
		return false, nil
	}
	doc[field] = float64(next)
	return true, nil
}

// sortedIDs keeps scans deterministic; caller holds the lock.
func (c *memoryCollection) sortedIDs() []string {
	bucket := c.store.colls[c.name]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
