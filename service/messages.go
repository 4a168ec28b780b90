package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
)

// NewMessage is the input of CreateMessage
type NewMessage struct {
	CommunityID string
	AuthorID    string
	Content     string
	ReplyToID   string
}

// CreateMessage posts a message to a community the author belongs to
func (s *ForumService) CreateMessage(ctx context.Context, in NewMessage) (*core.Message, error) {
	content, err := core.NormalizeContent(in.Content)
	if err != nil {
		return nil, err
	}

	authorID := userID(in.AuthorID)
	member, err := s.IsMember(ctx, in.CommunityID, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return nil, fmt.Errorf("%w: join the community to post", core.ErrForbidden)
	}

	username := core.DefaultUsername(authorID)
	var picture string
	if author, err := s.GetUser(ctx, authorID); err == nil {
		username = author.Username
		picture = author.ProfilePicture
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	var reply *core.ReplyPreview
	if in.ReplyToID != "" {
		parent, err := s.GetMessage(ctx, in.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent.IsDeleted || parent.CommunityID != in.CommunityID {
			return nil, fmt.Errorf("%w: cannot reply to this message", core.ErrInvalidInput)
		}
		reply = &core.ReplyPreview{
			MessageID:      parent.ID,
			AuthorUsername: parent.AuthorUsername,
			Content:        core.Truncate(parent.Content, core.ReplyPreviewLength),
		}
	}

	now := s.timestamp()
	msg := &core.Message{
		ID:                   uuid.New().String(),
		CommunityID:          in.CommunityID,
		AuthorID:             authorID,
		AuthorUsername:       username,
		AuthorProfilePicture: picture,
		Content:              content,
		ReplyTo:              reply,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	doc, err := ports.NewDocument(msg)
	if err != nil {
		return nil, err
	}

	err = s.store.RunBatch(ctx, func(b ports.Batch) error {
		b.Set(core.CollectionMessages, msg.ID, doc)
		b.Increment(core.CollectionCommunities, in.CommunityID, "messageCount", 1)
		b.Update(core.CollectionCommunities, in.CommunityID, ports.Document{
			"lastMessageAt": now,
			"lastMessageBy": username,
			"updatedAt":     now,
		})
		b.Increment(core.CollectionUsers, authorID, "totalMessages", 1)
		b.Update(core.CollectionUsers, authorID, ports.Document{"updatedAt": now})
		if reply != nil {
			b.Increment(core.CollectionMessages, reply.MessageID, "replyCount", 1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	s.invalidateCommunities(ctx)

	if s.eventPub != nil {
		event := core.MessageEvent{
			ID:          uuid.New().String(),
			MessageID:   msg.ID,
			CommunityID: msg.CommunityID,
			AuthorID:    msg.AuthorID,
			At:          msg.CreatedAt.Time(),
		}
		if err := s.eventPub.PublishMessage(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("message", msg.ID).Msg("Failed to publish message event")
		}
	}

	return msg, nil
}

// GetMessage returns a message by ID, including soft-deleted ones
func (s *ForumService) GetMessage(ctx context.Context, id string) (*core.Message, error) {
	var msg core.Message
	if err := s.get(ctx, core.CollectionMessages, id, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns visible messages of a community, newest first.
// after is the ID of the last message of the previous page.
func (s *ForumService) ListMessages(ctx context.Context, communityID string, limit int, after string) ([]core.Message, error) {
	docs, err := s.store.Query(ctx, core.CollectionMessages, ports.Query{
		Where:   map[string]any{"communityId": communityID, "isDeleted": false},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   PageSize(limit),
		After:   after,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return decodeAll[core.Message](docs)
}

// LatestMessages returns the newest n visible messages in chronological order
func (s *ForumService) LatestMessages(ctx context.Context, communityID string, n int) ([]core.Message, error) {
	messages, err := s.ListMessages(ctx, communityID, n, "")
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// EditMessage replaces the content of a message once, within the edit window, by its author
func (s *ForumService) EditMessage(ctx context.Context, messageID, address, content string) (*core.Message, error) {
	content, err := core.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != userID(address) {
		return nil, fmt.Errorf("%w: only the author can edit a message", core.ErrForbidden)
	}
	if !msg.CanEdit(s.now()) {
		return nil, core.ErrEditWindowClosed
	}

	now := s.timestamp()
	err = s.store.Update(ctx, core.CollectionMessages, messageID, ports.Document{
		"content":   content,
		"isEdited":  true,
		"editedAt":  now,
		"updatedAt": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}

	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = now
	msg.UpdatedAt = now
	return msg, nil
}

// DeleteMessage soft-deletes a message of its author
func (s *ForumService) DeleteMessage(ctx context.Context, messageID, address string) error {
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != userID(address) {
		return fmt.Errorf("%w: only the author can delete a message", core.ErrForbidden)
	}
	if msg.IsDeleted {
		return nil
	}

	now := s.timestamp()
	err = s.store.Update(ctx, core.CollectionMessages, messageID, ports.Document{
		"isDeleted": true,
		"deletedAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// visibleMessage loads a message that interactions may target
func (s *ForumService) visibleMessage(ctx context.Context, messageID string) (*core.Message, error) {
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("message %s: %w", messageID, core.ErrNotFound)
	}
	return msg, nil
}

// RecordView counts the first view of a message per user
func (s *ForumService) RecordView(ctx context.Context, messageID, address string) (bool, error) {
	msg, err := s.visibleMessage(ctx, messageID)
	if err != nil {
		return false, err
	}

	uid := userID(address)
	viewID := core.PairID(messageID, uid)
	seen, err := s.exists(ctx, core.CollectionMessageViews, viewID)
	if err != nil {
		return false, fmt.Errorf("failed to load view: %w", err)
	}
	if seen {
		return false, nil
	}

	now := s.timestamp()
	doc, err := ports.NewDocument(core.View{
		ID:          viewID,
		MessageID:   messageID,
		UserID:      uid,
		CommunityID: msg.CommunityID,
		ViewedAt:    now,
	})
	if err != nil {
		return false, err
	}

	err = s.store.RunBatch(ctx, func(b ports.Batch) error {
		b.Create(core.CollectionMessageViews, viewID, doc)
		b.Increment(core.CollectionMessages, messageID, "views", 1)
		return nil
	})
	if errors.Is(err, core.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record view: %w", err)
	}
	return true, nil
}

// voteAttempts bounds retries when a concurrent vote by the same user wins the race
const voteAttempts = 3

// Vote applies a vote of address. Repeating a vote removes it, the opposite vote switches it.
func (s *ForumService) Vote(ctx context.Context, messageID, address string, voteType core.VoteType) (*core.Message, error) {
	if !voteType.Valid() {
		return nil, fmt.Errorf("%w: unknown vote type %q", core.ErrInvalidInput, voteType)
	}

	msg, err := s.visibleMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.applyVote(ctx, msg, userID(address), voteType)
		if err == nil {
			break
		}
		if !errors.Is(err, core.ErrConflict) || attempt == voteAttempts {
			return nil, fmt.Errorf("failed to vote: %w", err)
		}
	}

	return s.GetMessage(ctx, messageID)
}

// applyVote commits one vote transition against the vote state it read.
// The batch fails with core.ErrConflict if that state changed meanwhile.
func (s *ForumService) applyVote(ctx context.Context, msg *core.Message, uid string, voteType core.VoteType) error {
	voteID := core.PairID(msg.ID, uid)

	var existing *core.Vote
	var prior core.Vote
	switch err := s.get(ctx, core.CollectionMessageVotes, voteID, &prior); {
	case err == nil:
		existing = &prior
	case !errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("failed to load vote: %w", err)
	}

	now := s.timestamp()
	return s.store.RunBatch(ctx, func(b ports.Batch) error {
		counter := func(v core.VoteType, delta int64) {
			b.Increment(core.CollectionMessages, msg.ID, v.CounterField(), delta)
			b.Increment(core.CollectionUsers, msg.AuthorID, authorCounter(v), delta)
		}

		switch {
		case existing == nil:
			doc, err := ports.NewDocument(core.Vote{
				ID:          voteID,
				MessageID:   msg.ID,
				UserID:      uid,
				CommunityID: msg.CommunityID,
				VoteType:    voteType,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return err
			}
			b.Create(core.CollectionMessageVotes, voteID, doc)
			counter(voteType, 1)
		case existing.VoteType == voteType:
			b.Expect(core.CollectionMessageVotes, voteID, ports.Document{"voteType": existing.VoteType})
			b.Delete(core.CollectionMessageVotes, voteID)
			counter(voteType, -1)
		default:
			b.Expect(core.CollectionMessageVotes, voteID, ports.Document{"voteType": existing.VoteType})
			b.Update(core.CollectionMessageVotes, voteID, ports.Document{"voteType": voteType, "updatedAt": now})
			counter(existing.VoteType, -1)
			counter(voteType, 1)
		}
		b.Update(core.CollectionMessages, msg.ID, ports.Document{"updatedAt": now})
		return nil
	})
}

func authorCounter(v core.VoteType) string {
	if v == core.VoteUp {
		return "totalUpvotes"
	}
	return "totalDownvotes"
}

// Report files a report of address against a message, at most once per user
func (s *ForumService) Report(ctx context.Context, messageID, address string, reason core.ReportReason, description string) (bool, error) {
	if !reason.Valid() {
		return false, fmt.Errorf("%w: unknown report reason %q", core.ErrInvalidInput, reason)
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > maxReportDescription {
		return false, fmt.Errorf("%w: description exceeds %d characters", core.ErrInvalidInput, maxReportDescription)
	}

	msg, err := s.visibleMessage(ctx, messageID)
	if err != nil {
		return false, err
	}

	uid := userID(address)
	reportID := core.PairID(messageID, uid)
	reported, err := s.exists(ctx, core.CollectionMessageReports, reportID)
	if err != nil {
		return false, fmt.Errorf("failed to load report: %w", err)
	}
	if reported {
		return false, nil
	}

	now := s.timestamp()
	doc, err := ports.NewDocument(core.Report{
		ID:          reportID,
		MessageID:   messageID,
		UserID:      uid,
		CommunityID: msg.CommunityID,
		Reason:      reason,
		Description: description,
		Status:      core.ReportPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return false, err
	}

	err = s.store.RunBatch(ctx, func(b ports.Batch) error {
		b.Create(core.CollectionMessageReports, reportID, doc)
		b.Increment(core.CollectionMessages, messageID, "reportCount", 1)
		b.Update(core.CollectionMessages, messageID, ports.Document{"updatedAt": now})
		return nil
	})
	if errors.Is(err, core.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to report message: %w", err)
	}
	return true, nil
}
