package ports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Document is a schemaless record of a collection
type Document map[string]any

// NewDocument converts a tagged struct into a Document
func NewDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// Decode fills the tagged struct v from the document
func (d Document) Decode(v any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Query selects documents of a collection
type Query struct {
	Where   map[string]any // Equality filters
	OrderBy string
	Desc    bool
	Limit   int    // Zero means unlimited
	After   string // Document ID cursor, exclusive
}

// Batch collects writes that are applied atomically on commit
type Batch interface {
	// Set replaces the whole document
	Set(collection, id string, doc Document)
	// Update merges fields into the document, creating it when missing
	Update(collection, id string, fields Document)
	// Increment adds delta to a numeric field, creating it when missing
	Increment(collection, id, field string, delta int64)
	Delete(collection, id string)

	// Create writes a new document; the batch fails with core.ErrConflict when it exists
	Create(collection, id string, doc Document)
	// Expect fails the batch with core.ErrConflict unless the document exists with
	// fields equal to the given values
	Expect(collection, id string, fields Document)
}

// DocumentStore persists forum documents.
// Get returns core.ErrNotFound for missing documents.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// RunBatch applies the writes queued by fn when fn returns nil
	RunBatch(ctx context.Context, fn func(b Batch) error) error
}
