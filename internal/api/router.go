package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/handler"
	"github.com/Gopher0727/GroupChat/internal/pkg/gateway"
	"github.com/Gopher0727/GroupChat/middleware/auth"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/utils/ratelimit"
)

// Handlers groups the HTTP and WebSocket endpoints the router mounts.
type Handlers struct {
	Group   *handler.GroupHandler
	Member  *handler.MemberHandler
	Invite  *handler.InviteHandler
	Message *handler.MessageHandler
	Gateway *gateway.Handler
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Tokens       auth.TokenParser
	Logger       *logger.Logger
	AllowOrigins []string
	// Limiter is optional; without it no rate limits are applied.
	Limiter ratelimit.Limiter
	Rules   map[string]ratelimit.Rule
	Health  map[string]HealthCheck
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(h Handlers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(cors.New(corsConfig(opts.AllowOrigins)))

	r.GET("/health", health(opts.Health))

	limit := func(rule string) gin.HandlerFunc {
		if opts.Limiter == nil {
			return noop
		}
		rl, ok := opts.Rules[rule]
		if !ok {
			return noop
		}
		return ratelimit.Middleware(opts.Limiter, rl, ratelimit.ByUserOrIP)
	}

	protected := r.Group("/api/v1")
	protected.Use(auth.Middleware(opts.Tokens), limit(ratelimit.RuleAPI))
	{
		groups := protected.Group("/groups")
		{
			groups.POST("", h.Group.CreateGroup)
			groups.GET("", h.Group.ListGroups)
			groups.GET("/:id", h.Group.GetGroup)
			groups.PATCH("/:id", h.Group.UpdateInfo)
			groups.DELETE("/:id", h.Group.DeleteGroup)
			groups.PATCH("/:id/settings", h.Group.UpdateSettings)
			groups.PUT("/:id/avatar", h.Group.SetAvatar)

			groups.GET("/:id/members", h.Member.ListMembers)
			groups.POST("/:id/members", h.Member.AddMember)
			groups.GET("/:id/candidates", h.Member.SearchCandidates)
			groups.DELETE("/:id/members/:user_id", h.Member.Remove)
			groups.POST("/:id/members/:user_id/promote", h.Member.Promote)
			groups.POST("/:id/members/:user_id/demote", h.Member.Demote)
			groups.POST("/:id/leave", h.Member.Leave)

			groups.GET("/:id/requests", h.Member.ListPending)
			groups.POST("/:id/requests/:user_id/approve", h.Member.Approve)
			groups.DELETE("/:id/requests/:user_id", h.Member.Reject)

			groups.GET("/:id/bans", h.Member.ListBans)
			groups.DELETE("/:id/bans/:user_id", h.Member.Unban)

			groups.POST("/:id/invite", h.Invite.Generate)
			groups.DELETE("/:id/invite", h.Invite.Revoke)

			groups.GET("/:id/messages", h.Message.GetMessages)
			groups.POST("/:id/messages", limit(ratelimit.RuleMessage), h.Message.SendMessage)
			groups.DELETE("/:id/messages/:message_id", h.Message.DeleteMessage)
		}

		invites := protected.Group("/invites")
		invites.Use(limit(ratelimit.RuleJoin))
		{
			invites.GET("/:code", h.Invite.Resolve)
			invites.POST("/:code/join", h.Invite.Join)
		}

		protected.GET("/direct", h.Message.ListDirectThreads)
		direct := protected.Group("/direct/:peer_id/messages")
		{
			direct.GET("", h.Message.GetMessages)
			direct.POST("", limit(ratelimit.RuleMessage), h.Message.SendMessage)
			direct.DELETE("/:message_id", h.Message.DeleteMessage)
		}

		messages := protected.Group("/messages")
		{
			messages.GET("/unread", h.Message.UnreadCount)
			messages.POST("/:message_id/read", h.Message.MarkRead)
			messages.POST("/:message_id/viewed", h.Message.MarkViewed)
		}
	}

	// 浏览器无法在 WebSocket 握手上设置 header，token 走查询参数
	r.GET("/ws", auth.Middleware(opts.Tokens), h.Gateway.ServeWS)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logger.TraceHeader}
	cfg.ExposeHeaders = []string{logger.TraceHeader}
	cfg.MaxAge = 12 * time.Hour
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		body := gin.H{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}

func noop(c *gin.Context) { c.Next() }
