package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"supportchat/backend/internal/config"
	logx "supportchat/backend/pkg/logger"
)

type App struct {
	cfg       config.Config
	store     Store
	analysis  AnalysisProvider
	ai        AIClient
	userLocks userLockRegistry
}

func New(cfg config.Config, pool *pgxpool.Pool, ai AIClient) *App {
	return NewApp(cfg, newPgxStore(pool), ai)
}

// NewApp wires an App around any Store implementation; tests inject fakes
// here.
func NewApp(cfg config.Config, store Store, ai AIClient) *App {
	return &App{
		cfg:      cfg,
		store:    store,
		analysis: storeAnalysisProvider{store: store},
		ai:       ai,
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestID(), requestLogger(), gin.Recovery())
	router.Use(cors.New(a.corsConfig()))

	router.GET("/health", a.health)
	router.POST("/chat", a.chat)
	router.GET("/conversation/:user_id/history", a.conversationHistory)
	router.GET("/user/:user_id/analysis", a.userAnalysis)
	router.GET("/user/:user_id/summary", a.userSummary)
	router.GET("/user/:user_id/greeting", a.userGreeting)

	return router
}

func (a *App) corsConfig() cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	origins := a.cfg.CORSAllowOrigins
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	corsCfg.AllowCredentials = true
	return corsCfg
}

const apiVersion = "1.0.0"

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "supportchat-api",
		"version": apiVersion,
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logx.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logx.Error()
		}
		event.
			Str("request_id", c.GetString("requestID")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// userLockRegistry serializes chat pipelines per user id so a request's
// analysis snapshot always includes its own freshly persisted message.
// Different users never contend. One mutex per user id is kept for the
// process lifetime, matching the unbounded growth of the message log.
type userLockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (r *userLockRegistry) acquire(userID string) *sync.Mutex {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := r.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[userID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock
}
