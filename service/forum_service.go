package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goware/cachestore"
	"github.com/goware/cachestore/cachestorectl"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/rs/zerolog"
)

const (
	communityCacheKey = "communities:active"
	communityCacheTTL = 30 * time.Second

	defaultPageSize = 50
	maxPageSize     = 100

	maxDisplayNameLength = 50
	maxPictureURLLength  = 2048
	maxReportDescription = 500
)

// ForumService implements communities, membership, messages and profiles on a document store
type ForumService struct {
	store    ports.DocumentStore
	eventPub ports.EventPublisher
	cache    cachestore.Store[[]core.Community]
	logger   zerolog.Logger
	now      func() time.Time
}

// NewForumService creates a new forum service caching the community catalog in cacheBackend
func NewForumService(store ports.DocumentStore, eventPub ports.EventPublisher, cacheBackend cachestore.Backend, logger zerolog.Logger) (*ForumService, error) {
	cache, err := cachestorectl.Open[[]core.Community](cacheBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to open community cache: %w", err)
	}
	return &ForumService{
		store:    store,
		eventPub: eventPub,
		cache:    cache,
		logger:   logger.With().Str("component", "forum").Logger(),
		now:      time.Now,
	}, nil
}

// userID is the document ID of a wallet address
func userID(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (s *ForumService) timestamp() core.Timestamp {
	return core.NewTimestamp(s.now())
}

func decodeAll[T any](docs []ports.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *ForumService) get(ctx context.Context, collection, id string, v any) error {
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return doc.Decode(v)
}

func (s *ForumService) exists(ctx context.Context, collection, id string) (bool, error) {
	_, err := s.store.Get(ctx, collection, id)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *ForumService) invalidateCommunities(ctx context.Context) {
	if err := s.cache.Delete(ctx, communityCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to invalidate community cache")
	}
}

// PageSize clamps a requested page size, 0 selects the default
func PageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// Users

// TouchUser creates the profile of address on first sign-in and refreshes its activity afterwards
func (s *ForumService) TouchUser(ctx context.Context, address string, verified bool) error {
	id := userID(address)
	if id == "" {
		return fmt.Errorf("%w: empty address", core.ErrInvalidInput)
	}
	now := s.timestamp()

	found, err := s.exists(ctx, core.CollectionUsers, id)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if found {
		err = s.store.Update(ctx, core.CollectionUsers, id, ports.Document{
			"isVerified":    true,
			"isOrbVerified": verified,
			"lastActive":    now,
			"updatedAt":     now,
		})
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	}

	username := core.DefaultUsername(id)
	doc, err := ports.NewDocument(core.User{
		ID:            id,
		Username:      username,
		DisplayName:   username,
		IsVerified:    true,
		IsOrbVerified: verified,
		LastActive:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, core.CollectionUsers, id, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns the profile of address
func (s *ForumService) GetUser(ctx context.Context, address string) (*core.User, error) {
	var user core.User
	if err := s.get(ctx, core.CollectionUsers, userID(address), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate lists the editable profile fields, nil leaves a field unchanged
type ProfileUpdate struct {
	DisplayName    *string `json:"displayName"`
	ProfilePicture *string `json:"profilePicture"`
}

// UpdateProfile edits the profile owned by address
func (s *ForumService) UpdateProfile(ctx context.Context, address string, update ProfileUpdate) (*core.User, error) {
	fields := ports.Document{}

	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
			return nil, fmt.Errorf("%w: display name must be 1 to %d characters", core.ErrInvalidInput, maxDisplayNameLength)
		}
		fields["displayName"] = name
	}
	if update.ProfilePicture != nil {
		picture := strings.TrimSpace(*update.ProfilePicture)
		if len(picture) > maxPictureURLLength {
			return nil, fmt.Errorf("%w: profile picture URL is too long", core.ErrInvalidInput)
		}
		fields["profilePicture"] = picture
	}

	user, err := s.GetUser(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return user, nil
	}

	fields["updatedAt"] = s.timestamp()
	if err := s.store.Update(ctx, core.CollectionUsers, user.ID, fields); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.GetUser(ctx, address)
}

// Communities

// SeedCommunities creates the default communities that do not exist yet
func (s *ForumService) SeedCommunities(ctx context.Context) (int, error) {
	now := s.timestamp()
	created := 0

	err := s.store.RunBatch(ctx, func(b ports.Batch) error {
		for _, community := range core.DefaultCommunities {
			found, err := s.exists(ctx, core.CollectionCommunities, community.ID)
			if err != nil {
				return fmt.Errorf("failed to load community: %w", err)
			}
			if found {
				continue
			}

			community.CreatedAt = now
			community.UpdatedAt = now
			doc, err := ports.NewDocument(community)
			if err != nil {
				return err
			}
			b.Set(core.CollectionCommunities, community.ID, doc)
			created++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to seed communities: %w", err)
	}

	if created > 0 {
		s.invalidateCommunities(ctx)
		s.logger.Info().Int("created", created).Msg("Seeded default communities")
	}
	return created, nil
}

// ListCommunities returns the active communities ordered by name
func (s *ForumService) ListCommunities(ctx context.Context) ([]core.Community, error) {
	getter := func(ctx context.Context, _ string) ([]core.Community, error) {
		docs, err := s.store.Query(ctx, core.CollectionCommunities, ports.Query{
			Where:   map[string]any{"isActive": true},
			OrderBy: "name",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list communities: %w", err)
		}
		return decodeAll[core.Community](docs)
	}

	return s.cache.GetOrSetWithLockEx(ctx, communityCacheKey, getter, communityCacheTTL)
}

// GetCommunity returns a community by ID
func (s *ForumService) GetCommunity(ctx context.Context, id string) (*core.Community, error) {
	var community core.Community
	if err := s.get(ctx, core.CollectionCommunities, id, &community); err != nil {
		return nil, err
	}
	return &community, nil
}

// Membership

// JoinCommunity adds address to a community. Joining twice is a no-op reported as false.
func (s *ForumService) JoinCommunity(ctx context.Context, communityID, address string) (bool, error) {
	if _, err := s.GetCommunity(ctx, communityID); err != nil {
		return false, err
	}

	uid := userID(address)
	membershipID := core.MembershipID(communityID, uid)
	member, err := s.exists(ctx, core.CollectionCommunityMembers, membershipID)
	if err != nil {
		return false, fmt.Errorf("failed to load membership: %w", err)
	}
	if member {
		return false, nil
	}

	now := s.timestamp()
	doc, err := ports.NewDocument(core.Membership{
		ID:          membershipID,
		CommunityID: communityID,
		UserID:      uid,
		JoinedAt:    now,
		Role:        core.RoleMember,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return false, err
	}

	err = s.store.RunBatch(ctx, func(b ports.Batch) error {
		b.Set(core.CollectionCommunityMembers, membershipID, doc)
		b.Increment(core.CollectionCommunities, communityID, "memberCount", 1)
		b.Update(core.CollectionCommunities, communityID, ports.Document{"updatedAt": now})
		b.Increment(core.CollectionUsers, uid, "joinedCommunitiesCount", 1)
		b.Update(core.CollectionUsers, uid, ports.Document{"updatedAt": now})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to join community: %w", err)
	}

	s.invalidateCommunities(ctx)
	return true, nil
}

// LeaveCommunity removes address from a community. Leaving without membership is a no-op reported as false.
func (s *ForumService) LeaveCommunity(ctx context.Context, communityID, address string) (bool, error) {
	uid := userID(address)
	membershipID := core.MembershipID(communityID, uid)
	member, err := s.exists(ctx, core.CollectionCommunityMembers, membershipID)
	if err != nil {
		return false, fmt.Errorf("failed to load membership: %w", err)
	}
	if !member {
		return false, nil
	}

	now := s.timestamp()
	err = s.store.RunBatch(ctx, func(b ports.Batch) error {
		b.Delete(core.CollectionCommunityMembers, membershipID)
		b.Increment(core.CollectionCommunities, communityID, "memberCount", -1)
		b.Update(core.CollectionCommunities, communityID, ports.Document{"updatedAt": now})
		b.Increment(core.CollectionUsers, uid, "joinedCommunitiesCount", -1)
		b.Update(core.CollectionUsers, uid, ports.Document{"updatedAt": now})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to leave community: %w", err)
	}

	s.invalidateCommunities(ctx)
	return true, nil
}

// IsMember reports whether address belongs to a community
func (s *ForumService) IsMember(ctx context.Context, communityID, address string) (bool, error) {
	return s.exists(ctx, core.CollectionCommunityMembers, core.MembershipID(communityID, userID(address)))
}

// ListUserCommunities returns the communities address has joined
func (s *ForumService) ListUserCommunities(ctx context.Context, address string) ([]core.Community, error) {
	docs, err := s.store.Query(ctx, core.CollectionCommunityMembers, ports.Query{
		Where:   map[string]any{"userId": userID(address), "isActive": true},
		OrderBy: "joinedAt",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	memberships, err := decodeAll[core.Membership](docs)
	if err != nil {
		return nil, err
	}

	communities := make([]core.Community, 0, len(memberships))
	for _, m := range memberships {
		community, err := s.GetCommunity(ctx, m.CommunityID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		communities = append(communities, *community)
	}
	return communities, nil
}

// ListMembers returns the newest members of a community
func (s *ForumService) ListMembers(ctx context.Context, communityID string, limit int) ([]core.Membership, error) {
	docs, err := s.store.Query(ctx, core.CollectionCommunityMembers, ports.Query{
		Where:   map[string]any{"communityId": communityID, "isActive": true},
		OrderBy: "joinedAt",
		Desc:    true,
		Limit:   PageSize(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return decodeAll[core.Membership](docs)
}
