package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/service"
	"github.com/rs/zerolog"
)

// ForumHandlers serves communities, messages and profiles to signed-in users
type ForumHandlers struct {
	forum  *service.ForumService
	logger zerolog.Logger
}

func NewForumHandlers(forum *service.ForumService, logger zerolog.Logger) *ForumHandlers {
	return &ForumHandlers{forum: forum, logger: logger}
}

// InitDatabase seeds the default communities
func (h *ForumHandlers) InitDatabase(c *gin.Context) {
	created, err := h.forum.SeedCommunities(c.Request.Context())
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "created": created})
}

func (h *ForumHandlers) ListCommunities(c *gin.Context) {
	communities, err := h.forum.ListCommunities(c.Request.Context())
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": communities})
}

func (h *ForumHandlers) GetCommunity(c *gin.Context) {
	ctx := c.Request.Context()
	community, err := h.forum.GetCommunity(ctx, c.Param("id"))
	if err != nil {
		h.forumError(c, err)
		return
	}
	member, err := h.forum.IsMember(ctx, community.ID, principalFrom(c).Address)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"community": community, "isMember": member})
}

func (h *ForumHandlers) Join(c *gin.Context) {
	joined, err := h.forum.JoinCommunity(c.Request.Context(), c.Param("id"), principalFrom(c).Address)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "joined": joined})
}

func (h *ForumHandlers) Leave(c *gin.Context) {
	left, err := h.forum.LeaveCommunity(c.Request.Context(), c.Param("id"), principalFrom(c).Address)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "left": left})
}

func (h *ForumHandlers) Members(c *gin.Context) {
	members, err := h.forum.ListMembers(c.Request.Context(), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// Messages lists a community newest first. nextCursor is set when more pages may follow.
func (h *ForumHandlers) Messages(c *gin.Context) {
	limit := queryInt(c, "limit")
	messages, err := h.forum.ListMessages(c.Request.Context(), c.Param("id"), limit, c.Query("after"))
	if err != nil {
		h.forumError(c, err)
		return
	}

	body := gin.H{"messages": messages}
	if n := len(messages); n > 0 && n == service.PageSize(limit) {
		body["nextCursor"] = messages[n-1].ID
	}
	c.JSON(http.StatusOK, body)
}

func (h *ForumHandlers) LatestMessages(c *gin.Context) {
	messages, err := h.forum.LatestMessages(c.Request.Context(), c.Param("id"), queryInt(c, "n"))
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *ForumHandlers) PostMessage(c *gin.Context) {
	var req struct {
		Content   string `json:"content"`
		ReplyToID string `json:"replyToId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.forum.CreateMessage(c.Request.Context(), service.NewMessage{
		CommunityID: c.Param("id"),
		AuthorID:    principalFrom(c).Address,
		Content:     req.Content,
		ReplyToID:   req.ReplyToID,
	})
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ForumHandlers) EditMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.forum.EditMessage(c.Request.Context(), c.Param("id"), principalFrom(c).Address, req.Content)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *ForumHandlers) DeleteMessage(c *gin.Context) {
	if err := h.forum.DeleteMessage(c.Request.Context(), c.Param("id"), principalFrom(c).Address); err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ForumHandlers) RecordView(c *gin.Context) {
	recorded, err := h.forum.RecordView(c.Request.Context(), c.Param("id"), principalFrom(c).Address)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recorded": recorded})
}

func (h *ForumHandlers) Vote(c *gin.Context) {
	var req struct {
		VoteType core.VoteType `json:"voteType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.forum.Vote(c.Request.Context(), c.Param("id"), principalFrom(c).Address, req.VoteType)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *ForumHandlers) Report(c *gin.Context) {
	var req struct {
		Reason      core.ReportReason `json:"reason"`
		Description string            `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	reported, err := h.forum.Report(c.Request.Context(), c.Param("id"), principalFrom(c).Address, req.Reason, req.Description)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reported": reported})
}

// Me returns the profile of the signed-in user
func (h *ForumHandlers) Me(c *gin.Context) {
	user, err := h.forum.GetUser(c.Request.Context(), principalFrom(c).Address)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *ForumHandlers) UpdateMe(c *gin.Context) {
	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.forum.UpdateProfile(c.Request.Context(), principalFrom(c).Address, req)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *ForumHandlers) MyCommunities(c *gin.Context) {
	communities, err := h.forum.ListUserCommunities(c.Request.Context(), principalFrom(c).Address)
	if err != nil {
		h.forumError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": communities})
}

func (h *ForumHandlers) forumError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, core.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, core.ErrEditWindowClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Message can no longer be edited"})
	case errors.Is(err, core.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Concurrent update, retry the request"})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Forum request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// queryInt returns 0 for absent or malformed values, which selects the default
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
