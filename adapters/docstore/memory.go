package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
)

// MemoryStore is an in-memory implementation of the DocumentStore interface.
// Documents are kept encoded so callers never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

// NewMemoryStore creates a new in-memory document store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string][]byte)}
}

var _ ports.DocumentStore = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (ports.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, core.ErrNotFound)
	}
	return decodeDocument(data)
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc ports.Document) error {
	return s.RunBatch(ctx, func(b ports.Batch) error {
		b.Set(collection, id, doc)
		return nil
	})
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields ports.Document) error {
	return s.RunBatch(ctx, func(b ports.Batch) error {
		b.Update(collection, id, fields)
		return nil
	})
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunBatch(ctx, func(b ports.Batch) error {
		b.Delete(collection, id)
		return nil
	})
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q ports.Query) ([]ports.Document, error) {
	s.mu.RLock()
	docs := make([]ports.Document, 0, len(s.collections[collection]))
	for _, data := range s.collections[collection] {
		doc, err := decodeDocument(data)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		docs = append(docs, doc)
	}
	s.mu.RUnlock()

	return applyQuery(docs, q), nil
}

// RunBatch stages every write on top of the current state and commits only if all succeed
func (s *MemoryStore) RunBatch(ctx context.Context, fn func(b ports.Batch) error) error {
	batch := &opBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[docKey]ports.Document)
	deleted := make(map[docKey]bool)

	load := func(key docKey) (ports.Document, bool, error) {
		if doc, ok := staged[key]; ok {
			return doc, true, nil
		}
		if deleted[key] {
			return ports.Document{}, false, nil
		}
		data, ok := s.collections[key.collection][key.id]
		if !ok {
			return ports.Document{}, false, nil
		}
		doc, err := decodeDocument(data)
		return doc, err == nil, err
	}

	for _, o := range batch.ops {
		key := docKey{o.collection, o.id}
		switch o.kind {
		case opCreate, opExpect:
			current, exists, err := load(key)
			if err != nil {
				return err
			}
			if o.kind == opCreate {
				if exists {
					return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
				}
				doc := make(ports.Document, len(o.doc)+1)
				for k, v := range o.doc {
					doc[k] = v
				}
				doc["id"] = o.id
				staged[key] = doc
				delete(deleted, key)
				continue
			}
			if !exists {
				return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
			}
			for k, want := range o.doc {
				if !sameValue(current[k], want) {
					return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
				}
			}
		case opSet:
			doc := make(ports.Document, len(o.doc)+1)
			for k, v := range o.doc {
				doc[k] = v
			}
			doc["id"] = o.id
			staged[key] = doc
			delete(deleted, key)
		case opUpdate, opIncrement:
			doc, _, err := load(key)
			if err != nil {
				return err
			}
			if o.kind == opUpdate {
				for k, v := range o.doc {
					doc[k] = v
				}
			} else {
				current, ok := toInt64(doc[o.field])
				if !ok {
					return fmt.Errorf("%s/%s: field %q is not numeric", o.collection, o.id, o.field)
				}
				doc[o.field] = current + o.delta
			}
			doc["id"] = o.id
			staged[key] = doc
			delete(deleted, key)
		case opDelete:
			delete(staged, key)
			deleted[key] = true
		}
	}

	encoded := make(map[docKey][]byte, len(staged))
	for key, doc := range staged {
		data, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		encoded[key] = data
	}

	for key := range deleted {
		delete(s.collections[key.collection], key.id)
	}
	for key, data := range encoded {
		coll, ok := s.collections[key.collection]
		if !ok {
			coll = make(map[string][]byte)
			s.collections[key.collection] = coll
		}
		coll[key.id] = data
	}
	return nil
}
