package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxMessageLength   = 500
	ReplyPreviewLength = 100
	MessageEditWindow  = 5 * time.Minute
)

// Collection names of the document store
const (
	CollectionUsers            = "users"
	CollectionCommunities      = "communities"
	CollectionCommunityMembers = "community_members"
	CollectionMessages         = "messages"
	CollectionMessageVotes     = "message_votes"
	CollectionMessageViews     = "message_views"
	CollectionMessageReports   = "message_reports"
)

// Timestamp is a UTC instant stored with millisecond precision so that
// documents order correctly by numeric comparison.
type Timestamp int64

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

func (ts Timestamp) IsZero() bool {
	return ts == 0
}

type User struct {
	ID                     string    `json:"id"` // wallet address, lower case
	Username               string    `json:"username"`
	DisplayName            string    `json:"displayName"`
	ProfilePicture         string    `json:"profilePicture,omitempty"`
	IsVerified             bool      `json:"isVerified"`
	IsOrbVerified          bool      `json:"isOrbVerified"`
	LastActive             Timestamp `json:"lastActive"`
	JoinedCommunitiesCount int64     `json:"joinedCommunitiesCount"`
	TotalMessages          int64     `json:"totalMessages"`
	TotalUpvotes           int64     `json:"totalUpvotes"`
	TotalDownvotes         int64     `json:"totalDownvotes"`
	CreatedAt              Timestamp `json:"createdAt"`
	UpdatedAt              Timestamp `json:"updatedAt"`
}

// DefaultUsername derives the placeholder handle shown before a profile is edited
func DefaultUsername(address string) string {
	suffix := address
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "@user_" + strings.ToLower(suffix)
}

type Community struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Color         string    `json:"color"`
	Category      string    `json:"category"`
	Rules         []string  `json:"rules"`
	Moderators    []string  `json:"moderators"`
	IsActive      bool      `json:"isActive"`
	MemberCount   int64     `json:"memberCount"`
	MessageCount  int64     `json:"messageCount"`
	LastMessageAt Timestamp `json:"lastMessageAt,omitempty"`
	LastMessageBy string    `json:"lastMessageBy,omitempty"`
	CreatedAt     Timestamp `json:"createdAt"`
	UpdatedAt     Timestamp `json:"updatedAt"`
}

type MemberRole string

const (
	RoleMember    MemberRole = "member"
	RoleModerator MemberRole = "moderator"
	RoleAdmin     MemberRole = "admin"
)

type Membership struct {
	ID          string     `json:"id"` // communityId_userId
	CommunityID string     `json:"communityId"`
	UserID      string     `json:"userId"`
	JoinedAt    Timestamp  `json:"joinedAt"`
	Role        MemberRole `json:"role"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   Timestamp  `json:"createdAt"`
	UpdatedAt   Timestamp  `json:"updatedAt"`
}

func MembershipID(communityID, userID string) string {
	return communityID + "_" + userID
}

type ReplyPreview struct {
	MessageID      string `json:"messageId"`
	AuthorUsername string `json:"authorUsername"`
	Content        string `json:"content"`
}

type Message struct {
	ID                   string        `json:"id"`
	CommunityID          string        `json:"communityId"`
	AuthorID             string        `json:"authorId"`
	AuthorUsername       string        `json:"authorUsername"`
	AuthorProfilePicture string        `json:"authorProfilePicture,omitempty"`
	Content              string        `json:"content"`
	IsEdited             bool          `json:"isEdited"`
	EditedAt             Timestamp     `json:"editedAt,omitempty"`
	Upvotes              int64         `json:"upvotes"`
	Downvotes            int64         `json:"downvotes"`
	Views                int64         `json:"views"`
	ReplyCount           int64         `json:"replyCount"`
	ReportCount          int64         `json:"reportCount"`
	IsDeleted            bool          `json:"isDeleted"`
	DeletedAt            Timestamp     `json:"deletedAt,omitempty"`
	ReplyTo              *ReplyPreview `json:"replyTo,omitempty"`
	CreatedAt            Timestamp     `json:"createdAt"`
	UpdatedAt            Timestamp     `json:"updatedAt"`
}

// CanEdit reports whether the message is still inside its single edit window
func (m *Message) CanEdit(now time.Time) bool {
	if m.IsEdited || m.IsDeleted {
		return false
	}
	return now.Before(m.CreatedAt.Time().Add(MessageEditWindow))
}

type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

// CounterField is the message counter a vote of this type contributes to
func (v VoteType) CounterField() string {
	if v == VoteUp {
		return "upvotes"
	}
	return "downvotes"
}

func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

type Vote struct {
	ID          string    `json:"id"` // messageId_userId
	MessageID   string    `json:"messageId"`
	UserID      string    `json:"userId"`
	CommunityID string    `json:"communityId"`
	VoteType    VoteType  `json:"voteType"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

type View struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId"`
	UserID      string    `json:"userId"`
	CommunityID string    `json:"communityId"`
	ViewedAt    Timestamp `json:"viewedAt"`
}

type ReportReason string

const (
	ReportSpam           ReportReason = "spam"
	ReportHarassment     ReportReason = "harassment"
	ReportInappropriate  ReportReason = "inappropriate"
	ReportMisinformation ReportReason = "misinformation"
	ReportOther          ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReportSpam, ReportHarassment, ReportInappropriate, ReportMisinformation, ReportOther:
		return true
	}
	return false
}

type ReportStatus string

const ReportPending ReportStatus = "pending"

type Report struct {
	ID          string       `json:"id"`
	MessageID   string       `json:"messageId"`
	UserID      string       `json:"userId"`
	CommunityID string       `json:"communityId"`
	Reason      ReportReason `json:"reason"`
	Description string       `json:"description,omitempty"`
	Status      ReportStatus `json:"status"`
	CreatedAt   Timestamp    `json:"createdAt"`
	UpdatedAt   Timestamp    `json:"updatedAt"`
}

// PairID keys documents that exist at most once per (message, user)
func PairID(messageID, userID string) string {
	return messageID + "_" + userID
}

// MessageEvent is published when a message is posted
type MessageEvent struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId"`
	CommunityID string    `json:"communityId"`
	AuthorID    string    `json:"authorId"`
	At          time.Time `json:"at"`
}

// NormalizeContent trims content and enforces the length bounds of a message
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, MaxMessageLength)
	}
	return content, nil
}

// Truncate shortens content for reply previews
func Truncate(content string, max int) string {
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:max])) + "..."
}
