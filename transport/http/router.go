package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/forum/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, forumService *service.ForumService, cookies CookieOptions, logger zerolog.Logger) *gin.Engine {
	logger = logger.With().Str("component", "http").Logger()

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	auth := NewAuthHandlers(authService, cookies)
	forum := NewForumHandlers(forumService, logger)

	router.GET("/health", auth.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sign-in routes
	api := router.Group("/api")
	{
		api.GET("/nonce", auth.Nonce)
		api.POST("/complete-siwe", auth.CompleteSIWE)
		api.POST("/create-session", auth.CreateSession)
		api.GET("/session", auth.Session)
		api.POST("/logout", auth.Logout)
	}

	// Forum routes require a live session
	protected := router.Group("/api")
	protected.Use(SessionMiddleware(authService, cookies))
	{
		protected.POST("/init-database", forum.InitDatabase)

		protected.GET("/communities", forum.ListCommunities)
		protected.GET("/communities/:id", forum.GetCommunity)
		protected.POST("/communities/:id/join", forum.Join)
		protected.POST("/communities/:id/leave", forum.Leave)
		protected.GET("/communities/:id/members", forum.Members)
		protected.GET("/communities/:id/messages", forum.Messages)
		protected.GET("/communities/:id/messages/latest", forum.LatestMessages)
		protected.POST("/communities/:id/messages", forum.PostMessage)

		protected.PATCH("/messages/:id", forum.EditMessage)
		protected.DELETE("/messages/:id", forum.DeleteMessage)
		protected.POST("/messages/:id/view", forum.RecordView)
		protected.POST("/messages/:id/vote", forum.Vote)
		protected.POST("/messages/:id/report", forum.Report)

		protected.GET("/me", forum.Me)
		protected.PATCH("/me", forum.UpdateMe)
		protected.GET("/me/communities", forum.MyCommunities)
	}

	return router
}
