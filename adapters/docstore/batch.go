package docstore

import (
	"bytes"
	"encoding/json"

	"github.com/layer-3/forum/ports"
)

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opIncrement
	opDelete
	opCreate
	opExpect
)

type op struct {
	kind       opKind
	collection string
	id         string
	doc        ports.Document
	field      string
	delta      int64
}

type docKey struct {
	collection string
	id         string
}

// opBatch records writes for a backend to apply on commit
type opBatch struct {
	ops []op
}

func (b *opBatch) Set(collection, id string, doc ports.Document) {
	b.ops = append(b.ops, op{kind: opSet, collection: collection, id: id, doc: doc})
}

func (b *opBatch) Update(collection, id string, fields ports.Document) {
	b.ops = append(b.ops, op{kind: opUpdate, collection: collection, id: id, doc: fields})
}

func (b *opBatch) Increment(collection, id, field string, delta int64) {
	b.ops = append(b.ops, op{kind: opIncrement, collection: collection, id: id, field: field, delta: delta})
}

func (b *opBatch) Delete(collection, id string) {
	b.ops = append(b.ops, op{kind: opDelete, collection: collection, id: id})
}

func (b *opBatch) Create(collection, id string, doc ports.Document) {
	b.ops = append(b.ops, op{kind: opCreate, collection: collection, id: id, doc: doc})
}

func (b *opBatch) Expect(collection, id string, fields ports.Document) {
	b.ops = append(b.ops, op{kind: opExpect, collection: collection, id: id, doc: fields})
}

// sameValue compares values by their stored JSON form
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
