package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Set(ctx, "users", "u1", ports.Document{"username": "alice", "totalMessages": 1}))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", doc["username"])
	assert.Equal(t, "u1", doc["id"])

	// Returned documents are copies
	doc["username"] = "mallory"
	doc, err = s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", doc["username"])

	// Set replaces, Update merges
	require.NoError(t, s.Set(ctx, "users", "u1", ports.Document{"displayName": "Alice"}))
	require.NoError(t, s.Update(ctx, "users", "u1", ports.Document{"username": "alice2"}))
	doc, err = s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", doc["displayName"])
	assert.Equal(t, "alice2", doc["username"])
	assert.NotContains(t, doc, "totalMessages")

	require.NoError(t, s.Delete(ctx, "users", "u1"))
	_, err = s.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryStoreUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	in := core.User{ID: "0xabc", Username: "@user_0abc", TotalMessages: 3, CreatedAt: 1700000000000}
	doc, err := ports.NewDocument(in)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, core.CollectionUsers, in.ID, doc))

	got, err := s.Get(ctx, core.CollectionUsers, in.ID)
	require.NoError(t, err)

	var out core.User
	require.NoError(t, got.Decode(&out))
	assert.Equal(t, in, out)
}

func TestMemoryStoreBatchCounters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.RunBatch(ctx, func(b ports.Batch) error {
		b.Set("communities", "c1", ports.Document{"name": "One", "memberCount": 0})
		b.Increment("communities", "c1", "memberCount", 1)
		b.Increment("users", "u1", "joinedCommunitiesCount", 1)
		return nil
	})
	require.NoError(t, err)

	c, err := s.Get(ctx, "communities", "c1")
	require.NoError(t, err)
	n, ok := toInt64(c["memberCount"])
	require.True(t, ok)
	assert.Equal(t, int64(1), n)

	u, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	n, ok = toInt64(u["joinedCommunitiesCount"])
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStoreBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "messages", "m1", ports.Document{"content": "hi", "upvotes": 0}))

	err := s.RunBatch(ctx, func(b ports.Batch) error {
		b.Increment("messages", "m1", "upvotes", 1)
		b.Increment("messages", "m1", "content", 1)
		return nil
	})
	require.Error(t, err)

	doc, err := s.Get(ctx, "messages", "m1")
	require.NoError(t, err)
	n, _ := toInt64(doc["upvotes"])
	assert.Equal(t, int64(0), n)

	abort := errors.New("abort")
	err = s.RunBatch(ctx, func(b ports.Batch) error {
		b.Delete("messages", "m1")
		return abort
	})
	assert.ErrorIs(t, err, abort)
	_, err = s.Get(ctx, "messages", "m1")
	assert.NoError(t, err)
}

func TestMemoryStoreBatchPreconditions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "messages", "m1", ports.Document{"views": 0}))

	create := func() error {
		return s.RunBatch(ctx, func(b ports.Batch) error {
			b.Create("message_views", "m1_u1", ports.Document{"messageId": "m1"})
			b.Increment("messages", "m1", "views", 1)
			return nil
		})
	}
	require.NoError(t, create())

	// A second create of the same document rolls back the whole batch
	assert.ErrorIs(t, create(), core.ErrConflict)
	doc, err := s.Get(ctx, "messages", "m1")
	require.NoError(t, err)
	n, _ := toInt64(doc["views"])
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Set(ctx, "message_votes", "m1_u1", ports.Document{"voteType": "up"}))
	expect := func(voteType string) error {
		return s.RunBatch(ctx, func(b ports.Batch) error {
			b.Expect("message_votes", "m1_u1", ports.Document{"voteType": voteType})
			b.Update("message_votes", "m1_u1", ports.Document{"voteType": "down"})
			return nil
		})
	}
	assert.ErrorIs(t, expect("down"), core.ErrConflict)
	require.NoError(t, expect("up"))

	doc, err = s.Get(ctx, "message_votes", "m1_u1")
	require.NoError(t, err)
	assert.Equal(t, "down", doc["voteType"])

	err = s.RunBatch(ctx, func(b ports.Batch) error {
		b.Expect("message_votes", "missing", ports.Document{"voteType": "up"})
		return nil
	})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i, c := range []struct {
		id, community string
		createdAt     int64
	}{
		{"m1", "dev", 100},
		{"m2", "dev", 300},
		{"m3", "news", 200},
		{"m4", "dev", 200},
	} {
		require.NoError(t, s.Set(ctx, "messages", c.id, ports.Document{
			"communityId": c.community,
			"createdAt":   c.createdAt,
			"isDeleted":   i == 3,
		}))
	}

	ids := func(docs []ports.Document) []string {
		var out []string
		for _, d := range docs {
			out = append(out, d["id"].(string))
		}
		return out
	}

	docs, err := s.Query(ctx, "messages", ports.Query{Where: map[string]any{"communityId": "dev"}, OrderBy: "createdAt", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m4", "m1"}, ids(docs))

	docs, err = s.Query(ctx, "messages", ports.Query{Where: map[string]any{"communityId": "dev"}, OrderBy: "createdAt", Desc: true, Limit: 1, After: "m2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m4"}, ids(docs))

	docs, err = s.Query(ctx, "messages", ports.Query{Where: map[string]any{"isDeleted": false}, OrderBy: "createdAt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3", "m2"}, ids(docs))

	// A cursor excluded by the filter still marks its position
	docs, err = s.Query(ctx, "messages", ports.Query{Where: map[string]any{"communityId": "dev", "isDeleted": false}, OrderBy: "createdAt", Desc: true, After: "m4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(docs))

	docs, err = s.Query(ctx, "messages", ports.Query{After: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.Query(ctx, "nothing", ports.Query{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
