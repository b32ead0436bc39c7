// Package gateway 对外的 HTTP 接口和中间件链
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/catalog"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/session"
)

// SessionService 会话注册表
type SessionService interface {
	CreateSession(ctx context.Context, gameID int64, ownerID string, opts session.Options) (*models.GameSession, error)
	JoinSession(ctx context.Context, sessionID, userID string, role models.ParticipantRole) (*models.GameSession, error)
	LeaveSession(ctx context.Context, sessionID, userID string) (*models.GameSession, error)
	EndSession(ctx context.Context, sessionID, requesterID string) (*models.SessionHistory, error)
	ListActiveSessions(ctx context.Context, gameID *int64) ([]models.GameSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.GameSession, error)
	FindByJoinCode(ctx context.Context, code string) (*models.GameSession, error)
	Participants(ctx context.Context, sessionID string) ([]models.Participant, error)
	IsPresent(ctx context.Context, sessionID, userID string) (bool, error)
}

// ChatService 聊天记录
type ChatService interface {
	PostSystem(ctx context.Context, sessionID, content string) (*models.ChatMessage, error)
	History(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error)
}

// PresenceService 在线状态
type PresenceService interface {
	ListOnline(ctx context.Context) ([]string, error)
}

// CatalogService 游戏目录
type CatalogService interface {
	ListGames(ctx context.Context) ([]models.Game, error)
	Popular(ctx context.Context, limit int) ([]catalog.PopularGame, error)
}

// Deps 网关的协作者
type Deps struct {
	Sessions SessionService
	Chat     ChatService
	Presence PresenceService
	Catalog  CatalogService
	Auth     *Authenticator
	// Realtime 处理 /ws 的 WebSocket 服务
	Realtime http.Handler
}

// Gateway HTTP网关
type Gateway struct {
	cfg        config.ServerConfig
	deps       Deps
	log        *slog.Logger
	limiter    *RateLimiter
	cache      *CacheMiddleware
	httpServer *http.Server
}

// NewGateway 创建网关
func NewGateway(cfg config.ServerConfig, deps Deps, log *slog.Logger) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
		cache:   NewCacheMiddleware(),
	}
	g.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Run 启动HTTP服务器，ctx 取消后优雅关闭
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.log.Info("HTTP服务器启动", "port", g.cfg.HTTPPort)
		errCh <- g.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP服务器错误: %w", err)
	case <-ctx.Done():
	}

	timeout := g.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭HTTP服务器失败: %w", err)
	}
	g.log.Info("HTTP服务器已停止")
	return nil
}

// Handler 返回带完整中间件链的处理器
func (g *Gateway) Handler() http.Handler {
	return g.applyMiddleware(g.createHandler())
}

// createHandler 注册路由
func (g *Gateway) createHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)

	mux.HandleFunc("POST /sessions", g.requireUser(g.handleCreateSession))
	mux.HandleFunc("GET /sessions", g.requireUser(g.handleListSessions))
	mux.HandleFunc("GET /sessions/{id}", g.requireUser(g.handleGetSession))
	mux.HandleFunc("GET /join-codes/{code}", g.requireUser(g.handleFindByCode))
	mux.HandleFunc("GET /sessions/{id}/messages", g.requireUser(g.handleMessages))
	mux.HandleFunc("POST /sessions/{id}/join", g.requireUser(g.handleJoinSession))
	mux.HandleFunc("POST /sessions/{id}/leave", g.requireUser(g.handleLeaveSession))
	mux.HandleFunc("POST /sessions/{id}/end", g.requireUser(g.handleEndSession))

	mux.HandleFunc("GET /me", g.requireUser(g.handleMe))
	mux.HandleFunc("GET /presence", g.requireUser(g.handlePresence))

	mux.HandleFunc("GET /games", g.handleListGames)
	mux.HandleFunc("GET /games/popular", g.handlePopularGames)

	if g.deps.Realtime != nil {
		mux.Handle("GET /ws", g.deps.Realtime)
	}

	return mux
}

// applyMiddleware 应用中间件，日志在最外层，缓存紧贴路由
func (g *Gateway) applyMiddleware(handler http.Handler) http.Handler {
	handler = g.cache.Middleware(handler)
	handler = g.limiter.Middleware(handler)
	handler = NewCORSMiddleware(g.cfg.AllowedOrigins).Middleware(handler)
	handler = NewSecurityMiddleware().Middleware(handler)
	handler = NewLoggingMiddleware(g.log).Middleware(handler)
	return handler
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccessResponse(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}
