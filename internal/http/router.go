package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alamor-network/vpn-fulfillment-service/internal/config"
)

// RateLimiter 简单的内存速率限制器
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int           // 最大请求数
	window   time.Duration // 时间窗口
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// 清理过期请求
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	// 检查是否超过限制
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	// 记录新请求
	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware 速率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 使用用户 ID 或 IP 作为限制 key
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
}

// 全局速率限制器: 每用户每分钟最多 30 次请求
var userRateLimiter = NewRateLimiter(30, time.Minute)

func NewServer(cfg *config.Config, handler *Handler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "vpn-fulfillment-service",
		})
	})

	// Internal API - called by the bot front-end after payment
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		// Fulfillment
		internal.POST("/provision", s.handler.Provision)
		internal.POST("/trial", s.handler.ProvisionTrial)

		// Purchase lifecycle
		internal.GET("/purchases/:id", s.handler.GetPurchase)
		internal.GET("/purchases/:id/logs", s.handler.GetPurchaseLogs)
		internal.DELETE("/purchases/:id", s.handler.DeactivatePurchase)
		internal.POST("/purchases/:id/traffic/reset", s.handler.ResetPurchaseTraffic)
		internal.GET("/purchases/:id/ips", s.handler.GetPurchaseIPs)
		internal.DELETE("/purchases/:id/ips", s.handler.ClearPurchaseIPs)
		internal.GET("/users/:user_id/purchases", s.handler.GetUserPurchases)

		// Server management
		internal.GET("/servers", s.handler.ListServers)
		internal.POST("/servers/check", s.handler.CheckAllServers)
		internal.POST("/servers/:id/check", s.handler.CheckServer)
		internal.GET("/servers/:id/inbounds", s.handler.ListPanelInbounds)
		internal.GET("/servers/:id/online", s.handler.GetOnlineClients)

		// Panel maintenance
		internal.POST("/servers/:id/traffic/reset", s.handler.ResetServerTraffics)
		internal.POST("/servers/:id/inbounds/:inbound_id/traffic/reset", s.handler.ResetInboundClientTraffics)
		internal.POST("/servers/:id/inbounds/:inbound_id/depleted/purge", s.handler.DeleteDepletedClients)
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter)) // 用户 API 速率限制
	{
		user.GET("/my/purchases", s.handler.GetMyPurchases)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
