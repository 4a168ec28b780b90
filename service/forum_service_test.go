package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/forum/adapters/docstore"
	"github.com/layer-3/forum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xaaaa00000000000000000000000000000000aaaa"
	bob   = "0xbbbb00000000000000000000000000000000bbbb"
)

type forumFixture struct {
	forum  *ForumService
	events *recordingPublisher
	clock  time.Time
}

func newForumFixture(t *testing.T) *forumFixture {
	t.Helper()
	f := &forumFixture{
		events: &recordingPublisher{},
		clock:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.forum = newForumService(t, docstore.NewMemoryStore(), f.events)
	f.forum.now = func() time.Time { return f.clock }

	ctx := context.Background()
	_, err := f.forum.SeedCommunities(ctx)
	require.NoError(t, err)
	require.NoError(t, f.forum.TouchUser(ctx, alice, true))
	require.NoError(t, f.forum.TouchUser(ctx, bob, true))
	return f
}

func (f *forumFixture) tick(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestSeedCommunitiesIsIdempotent(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()

	created, err := f.forum.SeedCommunities(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	communities, err := f.forum.ListCommunities(ctx)
	require.NoError(t, err)
	require.Len(t, communities, len(core.DefaultCommunities))

	names := make([]string, len(communities))
	for i, c := range communities {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"AI & Tech", "Announcements", "Developer", "Global Chat", "Q&A", "World News"}, names)
}

func TestJoinAndLeave(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()

	// Prime the cache, membership changes must invalidate it
	_, err := f.forum.ListCommunities(ctx)
	require.NoError(t, err)

	joined, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	assert.False(t, joined)

	community, err := f.forum.GetCommunity(ctx, "developer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), community.MemberCount)

	communities, err := f.forum.ListCommunities(ctx)
	require.NoError(t, err)
	for _, c := range communities {
		if c.ID == "developer" {
			assert.Equal(t, int64(1), c.MemberCount)
		}
	}

	user, err := f.forum.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.JoinedCommunitiesCount)

	mine, err := f.forum.ListUserCommunities(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "developer", mine[0].ID)

	members, err := f.forum.ListMembers(ctx, "developer", 0)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice, members[0].UserID)
	assert.Equal(t, core.RoleMember, members[0].Role)

	left, err := f.forum.LeaveCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	assert.True(t, left)

	left, err = f.forum.LeaveCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	assert.False(t, left)

	community, err = f.forum.GetCommunity(ctx, "developer")
	require.NoError(t, err)
	assert.Zero(t, community.MemberCount)

	_, err = f.forum.JoinCommunity(ctx, "missing", alice)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateMessage(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()

	_, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "hello"})
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)

	_, err = f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "   "})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: strings.Repeat("x", 501)})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "  hello world  "})
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg.Content)
	assert.Equal(t, "@user_aaaa", msg.AuthorUsername)

	community, err := f.forum.GetCommunity(ctx, "developer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), community.MessageCount)
	assert.Equal(t, "@user_aaaa", community.LastMessageBy)
	assert.Equal(t, msg.CreatedAt, community.LastMessageAt)

	user, err := f.forum.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.TotalMessages)

	require.Len(t, f.events.messages, 1)
	assert.Equal(t, msg.ID, f.events.messages[0].MessageID)
}

func TestReplyPreview(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "qa", alice)
	require.NoError(t, err)
	_, err = f.forum.JoinCommunity(ctx, "qa", bob)
	require.NoError(t, err)

	long := strings.Repeat("q", 150)
	parent, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "qa", AuthorID: alice, Content: long})
	require.NoError(t, err)

	reply, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "qa", AuthorID: bob, Content: "answer", ReplyToID: parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, parent.ID, reply.ReplyTo.MessageID)
	assert.Equal(t, strings.Repeat("q", 100)+"...", reply.ReplyTo.Content)

	parent, err = f.forum.GetMessage(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), parent.ReplyCount)

	_, err = f.forum.CreateMessage(ctx, NewMessage{CommunityID: "qa", AuthorID: bob, Content: "x", ReplyToID: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListMessagesPagination(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "m"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
		f.tick(time.Second)
	}
	require.NoError(t, f.forum.DeleteMessage(ctx, ids[2], alice))

	page, err := f.forum.ListMessages(ctx, "developer", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = f.forum.ListMessages(ctx, "developer", 2, page[1].ID)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[0], page[1].ID)

	latest, err := f.forum.LatestMessages(ctx, "developer", 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{ids[1], ids[3], ids[4]}, []string{latest[0].ID, latest[1].ID, latest[2].ID})
}

func TestListMessagesCursorDeleted(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 4; i++ {
		msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "m"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
		f.tick(time.Second)
	}

	page, err := f.forum.ListMessages(ctx, "developer", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	cursor := page[1].ID
	assert.Equal(t, ids[2], cursor)

	// The last message of the page disappears before the next page is read
	require.NoError(t, f.forum.DeleteMessage(ctx, cursor, alice))

	page, err = f.forum.ListMessages(ctx, "developer", 2, cursor)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[0], page[1].ID)
}

func TestEditMessage(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)

	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "first"})
	require.NoError(t, err)

	_, err = f.forum.EditMessage(ctx, msg.ID, bob, "hijack")
	assert.ErrorIs(t, err, core.ErrForbidden)

	f.tick(4 * time.Minute)
	edited, err := f.forum.EditMessage(ctx, msg.ID, alice, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Content)
	assert.True(t, edited.IsEdited)

	_, err = f.forum.EditMessage(ctx, msg.ID, alice, "third")
	assert.ErrorIs(t, err, core.ErrEditWindowClosed)

	late, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "late"})
	require.NoError(t, err)
	f.tick(5 * time.Minute)
	_, err = f.forum.EditMessage(ctx, late.ID, alice, "too late")
	assert.ErrorIs(t, err, core.ErrEditWindowClosed)
}

func TestDeleteMessage(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)

	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "bye"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.forum.DeleteMessage(ctx, msg.ID, bob), core.ErrForbidden)
	require.NoError(t, f.forum.DeleteMessage(ctx, msg.ID, alice))
	require.NoError(t, f.forum.DeleteMessage(ctx, msg.ID, alice))

	stored, err := f.forum.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)

	_, err = f.forum.Vote(ctx, msg.ID, bob, core.VoteUp)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecordView(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "look"})
	require.NoError(t, err)

	recorded, err := f.forum.RecordView(ctx, msg.ID, bob)
	require.NoError(t, err)
	assert.True(t, recorded)

	recorded, err = f.forum.RecordView(ctx, msg.ID, bob)
	require.NoError(t, err)
	assert.False(t, recorded)

	stored, err := f.forum.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Views)
}

func TestVote(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "vote me"})
	require.NoError(t, err)

	steps := []struct {
		vote      core.VoteType
		upvotes   int64
		downvotes int64
	}{
		{core.VoteUp, 1, 0},   // new vote
		{core.VoteDown, 0, 1}, // switch
		{core.VoteDown, 0, 0}, // toggle off
		{core.VoteUp, 1, 0},   // vote again
	}
	for _, step := range steps {
		updated, err := f.forum.Vote(ctx, msg.ID, bob, step.vote)
		require.NoError(t, err)
		assert.Equal(t, step.upvotes, updated.Upvotes)
		assert.Equal(t, step.downvotes, updated.Downvotes)
	}

	author, err := f.forum.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), author.TotalUpvotes)
	assert.Zero(t, author.TotalDownvotes)

	_, err = f.forum.Vote(ctx, msg.ID, bob, "meh")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestConcurrentViewsCountOnce(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "look"})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var recorded atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.forum.RecordView(ctx, msg.ID, bob)
			assert.NoError(t, err)
			if ok {
				recorded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), recorded.Load())
	stored, err := f.forum.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Views)
}

func TestConcurrentVotesKeepCountersConsistent(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "vote me"})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.forum.Vote(ctx, msg.ID, bob, core.VoteUp)
			if err != nil {
				assert.ErrorIs(t, err, core.ErrConflict)
			}
		}()
	}
	wg.Wait()

	var want int64
	hasVote, err := f.forum.exists(ctx, core.CollectionMessageVotes, core.PairID(msg.ID, userID(bob)))
	require.NoError(t, err)
	if hasVote {
		want = 1
	}

	stored, err := f.forum.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Upvotes)
	author, err := f.forum.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, want, author.TotalUpvotes)
}

func TestReport(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()
	_, err := f.forum.JoinCommunity(ctx, "developer", alice)
	require.NoError(t, err)
	msg, err := f.forum.CreateMessage(ctx, NewMessage{CommunityID: "developer", AuthorID: alice, Content: "spam spam"})
	require.NoError(t, err)

	_, err = f.forum.Report(ctx, msg.ID, bob, "rude", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	reported, err := f.forum.Report(ctx, msg.ID, bob, core.ReportSpam, "buy now")
	require.NoError(t, err)
	assert.True(t, reported)

	reported, err = f.forum.Report(ctx, msg.ID, bob, core.ReportOther, "")
	require.NoError(t, err)
	assert.False(t, reported)

	stored, err := f.forum.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ReportCount)
}

func TestUpdateProfile(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()

	name := "  Alice  "
	user, err := f.forum.UpdateProfile(ctx, alice, ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.Equal(t, "@user_aaaa", user.Username)

	empty := " "
	_, err = f.forum.UpdateProfile(ctx, alice, ProfileUpdate{DisplayName: &empty})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.forum.UpdateProfile(ctx, "0x9999999999999999999999999999999999999999", ProfileUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTouchUserRefreshesActivity(t *testing.T) {
	f := newForumFixture(t)
	ctx := context.Background()

	f.tick(time.Hour)
	require.NoError(t, f.forum.TouchUser(ctx, "0x"+strings.ToUpper(alice[2:]), false))

	user, err := f.forum.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.False(t, user.IsOrbVerified)
	assert.Equal(t, core.NewTimestamp(f.clock), user.LastActive)
	assert.True(t, user.CreatedAt < user.LastActive)
}
