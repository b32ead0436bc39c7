package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/auth"
	"github.com/jacl-coder/PixelStream-Server/internal/catalog"
	"github.com/jacl-coder/PixelStream-Server/internal/chat"
	"github.com/jacl-coder/PixelStream-Server/internal/identity"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/presence"
	"github.com/jacl-coder/PixelStream-Server/internal/realtime"
	"github.com/jacl-coder/PixelStream-Server/internal/session"
	"github.com/jacl-coder/PixelStream-Server/internal/store/memory"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Code    string `json:"code"`
}

type fixture struct {
	server *httptest.Server
	tokens *auth.TokenValidator
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{HTTPPort: 0, AllowedOrigins: []string{"https://play.example.com"}, RequestsPerSecond: 1000, RequestBurst: 1000}
}

func newFixture(t *testing.T, serverCfg config.ServerConfig) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := memory.New()
	require.NoError(t, st.CreateGame(ctx, &models.Game{ID: 1, Title: "Street Fighter II", Platform: "snes", MaxPlayers: 2}))
	require.NoError(t, st.CreateGame(ctx, &models.Game{ID: 2, Title: "Bomberman", Platform: "snes", MaxPlayers: 4}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	popularity := catalog.NewPopularity(rdb)
	hub := realtime.NewHub(16, logger)
	registry := session.NewRegistry(st, session.LogProvisioner{Log: logger}, hub, config.SessionConfig{
		DefaultMaxPlayers: 4, MaxPlayersLimit: 8, JoinCodeAttempts: 3, ListPageSize: 20, StoreTimeout: time.Second,
	}, logger, session.WithPopularity(popularity))
	chatLog := chat.NewLog(st, hub, 200, time.Second, logger)
	resolver := identity.NewResolver(st, time.Second, logger)
	tracker := presence.NewTracker(rdb, config.PresenceConfig{TTL: time.Minute, HeartbeatInterval: 20 * time.Second}, logger)

	tokens := auth.NewTokenValidator("test-secret", "pixelstream")
	authn := NewAuthenticator(tokens, resolver)

	ws := realtime.NewServer(hub, realtime.Deps{
		Sessions:     registry,
		Chat:         chatLog,
		Presence:     tracker,
		Users:        resolver,
		Authenticate: authn.Authenticate,
	}, config.RealtimeConfig{MaxMessageSize: 64 * 1024, MessagesPerSecond: 100, MessageBurst: 100}, []string{"*"}, logger)

	g := NewGateway(serverCfg, Deps{
		Sessions: registry,
		Chat:     chatLog,
		Presence: tracker,
		Catalog:  catalog.NewService(st, popularity, logger),
		Auth:     authn,
		Realtime: ws,
	}, logger)

	ts := httptest.NewServer(g.Handler())
	t.Cleanup(func() {
		ws.Close()
		ts.Close()
	})
	return &fixture{server: ts, tokens: tokens}
}

func (f *fixture) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := f.tokens.Issue(subject, subject, strings.ToUpper(subject), time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

// me 返回令牌对应的本地用户ID
func (f *fixture) me(t *testing.T, token string) string {
	t.Helper()
	resp := f.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[models.UserProfile](t, resp).Data.ID
}

func (f *fixture) createSession(t *testing.T, token string, body map[string]interface{}) models.GameSession {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/sessions", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[models.GameSession](t, resp).Data
}

func TestHealthSetsSecurityHeaders(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())

	resp := f.do(t, http.MethodGet, "/health", "", nil)

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("PixelStream", resp.Header.Get("Server"))
	req.Equal("nosniff", resp.Header.Get("X-Content-Type-Options"))
	req.True(decode[map[string]string](t, resp).Success)
}

func TestRequiresBearerToken(t *testing.T) {
	f := newFixture(t, testServerConfig())

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)
			resp := f.do(t, http.MethodGet, "/me", tt.token, nil)
			r.Equal(http.StatusUnauthorized, resp.StatusCode)

			env := decode[any](t, resp)
			r.False(env.Success)
			r.Equal(string(apperr.Unauthorized), env.Code)
		})
	}
}

func TestMeResolvesSameUserAcrossRequests(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	token := f.token(t, "ext-alice")

	resp := f.do(t, http.MethodGet, "/me", token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	user := decode[models.UserProfile](t, resp).Data

	req.NotEmpty(user.ID)
	req.Equal("ext-alice", user.Username)
	req.Equal("EXT-ALICE", user.DisplayName)
	req.Equal(user.ID, f.me(t, token))
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	host := f.token(t, "ext-host")
	guest := f.token(t, "ext-guest")
	hostID := f.me(t, host)
	guestID := f.me(t, guest)

	// Given 房主创建会话
	sess := f.createSession(t, host, map[string]interface{}{"game_id": 1, "max_players": 2})
	req.Equal(models.SessionActive, sess.Status)
	req.Equal(hostID, sess.OwnerID)
	req.Equal(1, sess.CurrentPlayers)
	req.Len(sess.JoinCode, session.JoinCodeLength)

	// When 访客加入
	resp := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", guest, map[string]string{"role": "player"})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(2, decode[models.GameSession](t, resp).Data.CurrentPlayers)

	// Then 详情中有两名在场成员，聊天记录中有系统消息
	resp = f.do(t, http.MethodGet, "/sessions/"+sess.ID, guest, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	detail := decode[SessionDetail](t, resp).Data
	req.Len(detail.Participants, 2)

	resp = f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/messages", guest, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	messages := decode[[]models.ChatMessage](t, resp).Data
	req.Len(messages, 1)
	req.Equal(int64(1), messages[0].Seq)
	req.Equal(models.MessageSystem, messages[0].Type)
	req.Contains(messages[0].Content, "EXT-GUEST")

	// 非房主不能结束会话
	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/end", guest, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal(string(apperr.Forbidden), decode[any](t, resp).Code)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/leave", guest, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(1, decode[models.GameSession](t, resp).Data.CurrentPlayers)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/end", host, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	history := decode[models.SessionHistory](t, resp).Data
	req.Equal(models.SessionEnded, history.FinalStatus)
	req.Equal(2, history.ParticipantCount)
	req.Equal(2, history.PeakPlayers)

	// 重复结束返回 NOT_ACTIVE
	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/end", host, nil)
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal(string(apperr.NotActive), decode[any](t, resp).Code)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", guest, nil)
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal(string(apperr.NotActive), decode[any](t, resp).Code)
	req.NotEqual(hostID, guestID)
}

func TestJoinErrorsMapToStatus(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	host := f.token(t, "ext-host")
	a := f.token(t, "ext-a")
	b := f.token(t, "ext-b")

	sess := f.createSession(t, host, map[string]interface{}{"game_id": 1, "max_players": 2})

	resp := f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", a, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", a, nil)
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal(string(apperr.AlreadyPresent), decode[any](t, resp).Code)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", b, nil)
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal(string(apperr.Full), decode[any](t, resp).Code)

	// 观众不占玩家席位
	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", b, map[string]string{"role": "spectator"})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(1, decode[models.GameSession](t, resp).Data.SpectatorCount)

	resp = f.do(t, http.MethodPost, "/sessions/missing/join", b, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", b, map[string]string{"role": "admin"})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, testServerConfig())
	host := f.token(t, "ext-host")

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   apperr.Kind
	}{
		{"missing game", map[string]interface{}{}, http.StatusBadRequest, apperr.Invalid},
		{"unknown game", map[string]interface{}{"game_id": 99}, http.StatusNotFound, apperr.NotFound},
		{"bad fps", map[string]interface{}{"game_id": 1, "fps": 25}, http.StatusBadRequest, apperr.Invalid},
		{"too many players", map[string]interface{}{"game_id": 1, "max_players": 9}, http.StatusBadRequest, apperr.Invalid},
		{"malformed body", "not an object", http.StatusBadRequest, apperr.Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)
			resp := f.do(t, http.MethodPost, "/sessions", host, tt.body)
			r.Equal(tt.status, resp.StatusCode)
			r.Equal(string(tt.code), decode[any](t, resp).Code)
		})
	}
}

func TestOwnerCannotOpenTwoSessions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	host := f.token(t, "ext-host")

	f.createSession(t, host, map[string]interface{}{"game_id": 1})

	resp := f.do(t, http.MethodPost, "/sessions", host, map[string]interface{}{"game_id": 2})
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal(string(apperr.AlreadyActive), decode[any](t, resp).Code)
}

func TestListSessionsFiltersPublicByGame(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	viewer := f.token(t, "ext-viewer")

	first := f.createSession(t, f.token(t, "ext-h1"), map[string]interface{}{"game_id": 1})
	f.createSession(t, f.token(t, "ext-h2"), map[string]interface{}{"game_id": 2})
	f.createSession(t, f.token(t, "ext-h3"), map[string]interface{}{"game_id": 1, "is_private": true})

	resp := f.do(t, http.MethodGet, "/sessions", viewer, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(decode[[]models.GameSession](t, resp).Data, 2)

	resp = f.do(t, http.MethodGet, "/sessions?game_id=1", viewer, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	sessions := decode[[]models.GameSession](t, resp).Data
	req.Len(sessions, 1)
	req.Equal(first.ID, sessions[0].ID)

	resp = f.do(t, http.MethodGet, "/sessions?game_id=abc", viewer, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestPrivateSessionVisibility(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	host := f.token(t, "ext-host")
	stranger := f.token(t, "ext-stranger")

	sess := f.createSession(t, host, map[string]interface{}{"game_id": 1, "is_private": true})

	// 陌生人看不到邀请码，也不能读聊天记录
	resp := f.do(t, http.MethodGet, "/sessions/"+sess.ID, stranger, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Empty(decode[SessionDetail](t, resp).Data.Session.JoinCode)

	resp = f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/messages", stranger, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// 使用邀请码找到会话后加入，之后可以读聊天记录
	resp = f.do(t, http.MethodGet, "/join-codes/"+strings.ToLower(sess.JoinCode), stranger, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(sess.ID, decode[models.GameSession](t, resp).Data.ID)

	resp = f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/join", stranger, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/messages?after=0&limit=10", stranger, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/sessions/"+sess.ID, stranger, nil)
	req.Equal(sess.JoinCode, decode[SessionDetail](t, resp).Data.Session.JoinCode)

	resp = f.do(t, http.MethodGet, "/join-codes/0000", stranger, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestMessagesRejectsBadPaging(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	host := f.token(t, "ext-host")
	sess := f.createSession(t, host, map[string]interface{}{"game_id": 1})

	resp := f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/messages?after=-1", host, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/sessions/"+sess.ID+"/messages?limit=x", host, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestGamesCatalogAndCache(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())

	resp := f.do(t, http.MethodGet, "/games", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("MISS", resp.Header.Get("X-Cache"))
	req.Equal("application/json", resp.Header.Get("Content-Type"))
	req.Len(decode[[]models.Game](t, resp).Data, 2)
	etag := resp.Header.Get("ETag")
	req.NotEmpty(etag)

	resp = f.do(t, http.MethodGet, "/games", "", nil)
	req.Equal("HIT", resp.Header.Get("X-Cache"))
	req.Equal(etag, resp.Header.Get("ETag"))

	r, err := http.NewRequest(http.MethodGet, f.server.URL+"/games", nil)
	req.NoError(err)
	r.Header.Set("If-None-Match", etag)
	notModified, err := http.DefaultClient.Do(r)
	req.NoError(err)
	defer notModified.Body.Close()
	req.Equal(http.StatusNotModified, notModified.StatusCode)
}

func TestPopularGamesFollowSessionCreation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())

	f.createSession(t, f.token(t, "ext-h1"), map[string]interface{}{"game_id": 2})
	f.createSession(t, f.token(t, "ext-h2"), map[string]interface{}{"game_id": 2})
	f.createSession(t, f.token(t, "ext-h3"), map[string]interface{}{"game_id": 1})

	resp := f.do(t, http.MethodGet, "/games/popular?limit=5", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	popular := decode[[]catalog.PopularGame](t, resp).Data
	req.Len(popular, 2)
	req.Equal(int64(2), popular[0].ID)
	req.Equal(2.0, popular[0].Score)
	req.Equal(1, popular[0].Rank)

	resp = f.do(t, http.MethodGet, "/games/popular?limit=0", "", nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketUpgradeThroughMiddleware(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())
	token := f.token(t, "ext-alice")
	userID := f.me(t, token)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	defer conn.Close()
	req.Equal(http.StatusSwitchingProtocols, resp.StatusCode)

	req.Eventually(func() bool {
		resp := f.do(t, http.MethodGet, "/presence", token, nil)
		online := decode[struct {
			Users []string `json:"users"`
		}](t, resp).Data.Users
		return len(online) == 1 && online[0] == userID
	}, 2*time.Second, 20*time.Millisecond)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http")+"/ws", nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testServerConfig())

	preflight, err := http.NewRequest(http.MethodOptions, f.server.URL+"/sessions", nil)
	req.NoError(err)
	preflight.Header.Set("Origin", "https://play.example.com")
	resp, err := http.DefaultClient.Do(preflight)
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusNoContent, resp.StatusCode)
	req.Equal("https://play.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	req.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	other, err := http.NewRequest(http.MethodGet, f.server.URL+"/health", nil)
	req.NoError(err)
	other.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(other)
	req.NoError(err)
	defer resp2.Body.Close()
	req.Empty(resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimitPerClient(t *testing.T) {
	req := require.New(t)
	cfg := testServerConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.RequestBurst = 2
	f := newFixture(t, cfg)

	req.Equal(http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).StatusCode)
	req.Equal(http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).StatusCode)

	resp := f.do(t, http.MethodGet, "/health", "", nil)
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
	req.Equal(string(apperr.RateLimited), decode[any](t, resp).Code)
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	req := require.New(t)
	rl := NewRateLimiter(0.001, 1)

	req.True(rl.allowRequest("10.0.0.1"))
	req.False(rl.allowRequest("10.0.0.1"))
	req.True(rl.allowRequest("10.0.0.2"))
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.001, 1)
	rl.now = func() time.Time { return now }

	req.True(rl.allowRequest("10.0.0.1"))
	now = now.Add(rl.IdleTimeout + time.Minute)
	req.True(rl.allowRequest("10.0.0.2"))
	req.NotContains(rl.clients, "10.0.0.1")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:1234", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1234", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			require.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestResponseCacheEvictsEarliestExpiry(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newResponseCache(2)
	c.now = func() time.Time { return now }

	c.put("a", cachedResponse{expiresAt: now.Add(time.Minute)})
	c.put("b", cachedResponse{expiresAt: now.Add(2 * time.Minute)})
	c.put("c", cachedResponse{expiresAt: now.Add(3 * time.Minute)})

	_, ok := c.get("a")
	req.False(ok)
	_, ok = c.get("b")
	req.True(ok)
	_, ok = c.get("c")
	req.True(ok)

	// 过期条目不再命中
	now = now.Add(150 * time.Second)
	_, ok = c.get("b")
	req.False(ok)
}

func TestCacheTTLPrefersLongestPrefix(t *testing.T) {
	req := require.New(t)
	cm := NewCacheMiddleware()

	ttl, ok := cm.ttlFor("/games/popular")
	req.True(ok)
	req.Equal(30*time.Second, ttl)

	ttl, ok = cm.ttlFor("/games")
	req.True(ok)
	req.Equal(5*time.Minute, ttl)

	_, ok = cm.ttlFor("/sessions")
	req.False(ok)
}
