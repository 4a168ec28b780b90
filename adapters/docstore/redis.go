package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the DocumentStore interface.
// Each document is a hash of JSON-encoded fields, so integer counters
// stay addressable by HINCRBY. A set per collection indexes document IDs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis document store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "forum:doc:",
	}
}

var _ ports.DocumentStore = (*RedisStore)(nil)

func (s *RedisStore) docKey(collection, id string) string {
	return s.prefix + collection + ":" + id
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + collection + ":_ids"
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (ports.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, core.ErrNotFound)
	}
	return decodeHash(fields)
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, doc ports.Document) error {
	return s.RunBatch(ctx, func(b ports.Batch) error {
		b.Set(collection, id, doc)
		return nil
	})
}

func (s *RedisStore) Update(ctx context.Context, collection, id string, fields ports.Document) error {
	return s.RunBatch(ctx, func(b ports.Batch) error {
		b.Update(collection, id, fields)
		return nil
	})
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunBatch(ctx, func(b ports.Batch) error {
		b.Delete(collection, id)
		return nil
	})
}

func (s *RedisStore) Query(ctx context.Context, collection string, q ports.Query) ([]ports.Document, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	docs := make([]ports.Document, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		doc, err := decodeHash(fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return applyQuery(docs, q), nil
}

// RunBatch applies the queued writes in a MULTI/EXEC transaction.
// Create and Expect preconditions are checked under WATCH, so a concurrent
// change to a watched document fails the batch with core.ErrConflict.
func (s *RedisStore) RunBatch(ctx context.Context, fn func(b ports.Batch) error) error {
	batch := &opBatch{}
	if err := fn(batch); err != nil {
		return err
	}
	if len(batch.ops) == 0 {
		return nil
	}

	// Encode up front so a bad value aborts before anything is queued
	encoded := make([]map[string]any, len(batch.ops))
	var watched []string
	for i, o := range batch.ops {
		if o.kind == opCreate || o.kind == opExpect {
			watched = append(watched, s.docKey(o.collection, o.id))
		}
		if o.kind != opSet && o.kind != opUpdate && o.kind != opCreate {
			continue
		}
		fields, err := encodeHash(o.doc, o.id)
		if err != nil {
			return err
		}
		encoded[i] = fields
	}

	queue := func(pipe redis.Pipeliner) error {
		for i, o := range batch.ops {
			key := s.docKey(o.collection, o.id)
			switch o.kind {
			case opSet, opCreate:
				pipe.Del(ctx, key)
				pipe.HSet(ctx, key, encoded[i])
				pipe.SAdd(ctx, s.indexKey(o.collection), o.id)
			case opUpdate:
				pipe.HSet(ctx, key, encoded[i])
				pipe.SAdd(ctx, s.indexKey(o.collection), o.id)
			case opIncrement:
				pipe.HSet(ctx, key, "id", mustEncode(o.id))
				pipe.HIncrBy(ctx, key, o.field, o.delta)
				pipe.SAdd(ctx, s.indexKey(o.collection), o.id)
			case opDelete:
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.indexKey(o.collection), o.id)
			}
		}
		return nil
	}

	if len(watched) == 0 {
		if _, err := s.client.TxPipelined(ctx, queue); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
		return nil
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, o := range batch.ops {
			if err := s.checkPrecondition(ctx, tx, o); err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, queue)
		return err
	}, watched...)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("batch: %w", core.ErrConflict)
	case errors.Is(err, core.ErrConflict):
		return err
	case err != nil:
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *RedisStore) checkPrecondition(ctx context.Context, tx *redis.Tx, o op) error {
	key := s.docKey(o.collection, o.id)
	switch o.kind {
	case opCreate:
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
		}
	case opExpect:
		fields := make([]string, 0, len(o.doc)+1)
		fields = append(fields, "id")
		for k := range o.doc {
			fields = append(fields, k)
		}
		vals, err := tx.HMGet(ctx, key, fields...).Result()
		if err != nil {
			return err
		}
		if vals[0] == nil {
			return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
		}
		for i, k := range fields[1:] {
			raw, ok := vals[i+1].(string)
			if !ok {
				return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
			}
			got, err := decodeValue(raw)
			if err != nil || !sameValue(got, o.doc[k]) {
				return fmt.Errorf("%s/%s: %w", o.collection, o.id, core.ErrConflict)
			}
		}
	}
	return nil
}

func encodeHash(doc ports.Document, id string) (map[string]any, error) {
	fields := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %q: %w", k, err)
		}
		fields[k] = string(data)
	}
	fields["id"] = mustEncode(id)
	return fields, nil
}

func mustEncode(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func decodeHash(fields map[string]string) (ports.Document, error) {
	doc := make(ports.Document, len(fields))
	for k, raw := range fields {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}
