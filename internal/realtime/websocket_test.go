package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/chat"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/presence"
	"github.com/jacl-coder/PixelStream-Server/internal/session"
	"github.com/jacl-coder/PixelStream-Server/internal/store/memory"
	"github.com/stretchr/testify/require"
)

// userFlags 记录在线标记
type userFlags struct {
	mu     sync.Mutex
	online map[string]bool
}

func (u *userFlags) SetOnline(_ context.Context, userID string, online bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.online[userID] = online
}

func (u *userFlags) get(userID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.online[userID]
}

type wsFixture struct {
	server   *httptest.Server
	registry *session.Registry
	hub      *Hub
	flags    *userFlags
	session  *models.GameSession
}

func newWSFixture(t *testing.T, opts ...func(*Deps)) *wsFixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := memory.New()
	require.NoError(t, st.CreateGame(ctx, &models.Game{ID: 1, Title: "Street Fighter II", Platform: "snes", MaxPlayers: 2}))

	hub := NewHub(16, logger)
	registry := session.NewRegistry(st, session.LogProvisioner{Log: logger}, hub, config.SessionConfig{
		DefaultMaxPlayers: 2, MaxPlayersLimit: 8, JoinCodeAttempts: 3, ListPageSize: 20, StoreTimeout: time.Second,
	}, logger)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	tracker := presence.NewTracker(rdb, config.PresenceConfig{TTL: time.Minute, HeartbeatInterval: 20 * time.Second}, logger)

	flags := &userFlags{online: make(map[string]bool)}
	deps := Deps{
		Sessions: registry,
		Chat:     chat.NewLog(st, hub, 200, time.Second, logger),
		Presence: tracker,
		Users:    flags,
		Authenticate: func(r *http.Request) (*models.UserProfile, error) {
			user := r.URL.Query().Get("user")
			if user == "" {
				return nil, apperr.New(apperr.Unauthorized, "missing user")
			}
			return &models.UserProfile{ID: user}, nil
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(hub, deps, config.RealtimeConfig{MaxMessageSize: 64 * 1024, MessagesPerSecond: 100, MessageBurst: 100}, []string{"*"}, logger)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	sess, err := registry.CreateSession(ctx, 1, "host", session.Options{})
	require.NoError(t, err)

	return &wsFixture{server: ts, registry: registry, hub: hub, flags: flags, session: sess}
}

func (f *wsFixture) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: msgType, Payload: data}))
}

// expect 读取直到出现指定类型的事件
func expect(t *testing.T, conn *websocket.Conn, want models.EventType) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var evt models.Event
		require.NoError(t, conn.ReadJSON(&evt), "waiting for %s", want)
		if evt.Type == want {
			return evt
		}
	}
}

func TestServeHTTP_RejectsUnauthenticated(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionRoomFlow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newWSFixture(t)

	_, err := f.registry.JoinSession(ctx, f.session.ID, "alice", models.RolePlayer)
	req.NoError(err)

	host := f.dial(t, "host")
	alice := f.dial(t, "alice")

	// 加入房间后收到参与者快照
	send(t, host, MessageJoinRoom, roomRequest{SessionID: f.session.ID})
	snapshot := expect(t, host, models.EventSessionParticipants)
	var participants []models.Participant
	req.NoError(json.Unmarshal(snapshot.Payload, &participants))
	req.Len(participants, 2)

	send(t, alice, MessageJoinRoom, roomRequest{SessionID: f.session.ID})
	expect(t, alice, models.EventSessionParticipants)
	req.Eventually(func() bool { return f.hub.GroupSize(f.session.ID) == 2 }, time.Second, 10*time.Millisecond)

	// 信令转发给其他成员
	send(t, host, MessageSignalRelay, signalRequest{
		SessionID: f.session.ID,
		Kind:      models.EventOffer,
		Payload:   json.RawMessage(`{"sdp":"offer"}`),
	})
	offer := expect(t, alice, models.EventOffer)
	req.Equal("host", offer.From)
	req.JSONEq(`{"sdp":"offer"}`, string(offer.Payload))

	// 聊天消息广播给所有成员
	send(t, alice, MessageSendMessage, chatRequest{SessionID: f.session.ID, Message: "ready?"})
	for _, conn := range []*websocket.Conn{host, alice} {
		evt := expect(t, conn, models.EventNewMessage)
		var msg models.ChatMessage
		req.NoError(json.Unmarshal(evt.Payload, &msg))
		req.Equal(int64(1), msg.Seq)
		req.Equal("alice", msg.UserID)
	}

	// 断开连接等同于离开会话
	req.True(f.flags.get("alice"))
	req.NoError(alice.Close())
	left := expect(t, host, models.EventUserLeft)
	var payload models.ParticipantEvent
	req.NoError(json.Unmarshal(left.Payload, &payload))
	req.Equal("alice", payload.UserID)
	req.Equal(1, payload.CurrentPlayers)
	req.Eventually(func() bool { return !f.flags.get("alice") }, time.Second, 10*time.Millisecond)

	present, err := f.registry.IsPresent(ctx, f.session.ID, "alice")
	req.NoError(err)
	req.False(present)

	// 房主结束会话
	_, err = f.registry.EndSession(ctx, f.session.ID, "host")
	req.NoError(err)
	ended := expect(t, host, models.EventSessionEnded)
	req.Equal(f.session.ID, ended.SessionID)
	req.Zero(f.hub.GroupSize(f.session.ID))
}

func TestJoinRoom_RequiresParticipation(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	stranger := f.dial(t, "stranger")
	send(t, stranger, MessageJoinRoom, roomRequest{SessionID: f.session.ID})

	evt := expect(t, stranger, models.EventError)
	var payload models.ErrorEvent
	req.NoError(json.Unmarshal(evt.Payload, &payload))
	req.Equal(string(apperr.Forbidden), payload.Code)

	// 未加入房间不能发言或转发信令
	send(t, stranger, MessageSendMessage, chatRequest{SessionID: f.session.ID, Message: "hi"})
	evt = expect(t, stranger, models.EventError)
	req.NoError(json.Unmarshal(evt.Payload, &payload))
	req.Equal(string(apperr.Forbidden), payload.Code)
}

func TestHandleMessage_InvalidInput(t *testing.T) {
	f := newWSFixture(t)
	host := f.dial(t, "host")

	tests := []struct {
		name    string
		message string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"teleport","payload":{}}`},
		{"missing payload", `{"type":"join_session_room"}`},
		{"missing session id", `{"type":"join_session_room","payload":{}}`},
		{"unknown signal kind", `{"type":"signal_relay","payload":{"session_id":"s","kind":"hangup"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)
			r.NoError(host.WriteMessage(websocket.TextMessage, []byte(tt.message)))
			evt := expect(t, host, models.EventError)
			var payload models.ErrorEvent
			r.NoError(json.Unmarshal(evt.Payload, &payload))
			r.Equal(string(apperr.Invalid), payload.Code)
		})
	}
}

func TestDisconnect_KeepsParticipationWhileAnotherConnectionIsInRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newWSFixture(t)

	first := f.dial(t, "host")
	second := f.dial(t, "host")
	for _, conn := range []*websocket.Conn{first, second} {
		send(t, conn, MessageJoinRoom, roomRequest{SessionID: f.session.ID})
		expect(t, conn, models.EventSessionParticipants)
	}

	req.NoError(first.Close())
	req.Eventually(func() bool { return f.hub.GroupSize(f.session.ID) == 1 }, time.Second, 10*time.Millisecond)

	present, err := f.registry.IsPresent(ctx, f.session.ID, "host")
	req.NoError(err)
	req.True(present)
	req.True(f.flags.get("host"))
}

func TestLeaveSession_StopsRoomDelivery(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newWSFixture(t)

	_, err := f.registry.JoinSession(ctx, f.session.ID, "alice", models.RolePlayer)
	req.NoError(err)

	host := f.dial(t, "host")
	alice := f.dial(t, "alice")
	for _, conn := range []*websocket.Conn{host, alice} {
		send(t, conn, MessageJoinRoom, roomRequest{SessionID: f.session.ID})
		expect(t, conn, models.EventSessionParticipants)
	}
	req.Eventually(func() bool { return f.hub.GroupSize(f.session.ID) == 2 }, time.Second, 10*time.Millisecond)

	// When 通过注册表离开，连接仍然保持
	_, err = f.registry.LeaveSession(ctx, f.session.ID, "alice")
	req.NoError(err)
	expect(t, host, models.EventUserLeft)
	req.Equal(1, f.hub.GroupSize(f.session.ID))

	// Then 不能再转发信令或发言
	send(t, alice, MessageSignalRelay, signalRequest{
		SessionID: f.session.ID,
		Kind:      models.EventInput,
		Payload:   json.RawMessage(`{"btn":"A"}`),
	})
	evt := expect(t, alice, models.EventError)
	var payload models.ErrorEvent
	req.NoError(json.Unmarshal(evt.Payload, &payload))
	req.Equal(string(apperr.Forbidden), payload.Code)

	send(t, alice, MessageSendMessage, chatRequest{SessionID: f.session.ID, Message: "still here"})
	evt = expect(t, alice, models.EventError)
	req.NoError(json.Unmarshal(evt.Payload, &payload))
	req.Equal(string(apperr.Forbidden), payload.Code)

	// 房主之后只收到自己的消息
	send(t, host, MessageSendMessage, chatRequest{SessionID: f.session.ID, Message: "bye"})
	req.NoError(host.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		var got models.Event
		req.NoError(host.ReadJSON(&got))
		req.NotEqual(models.EventInput, got.Type)
		if got.Type == models.EventNewMessage {
			var msg models.ChatMessage
			req.NoError(json.Unmarshal(got.Payload, &msg))
			req.Equal("host", msg.UserID)
			break
		}
	}
}

// endsOnFirstCheck 第一次在场检查返回之前结束会话
type endsOnFirstCheck struct {
	SessionService
	end  func(ctx context.Context, sessionID string)
	once sync.Once
}

func (e *endsOnFirstCheck) IsPresent(ctx context.Context, sessionID, userID string) (bool, error) {
	present, err := e.SessionService.IsPresent(ctx, sessionID, userID)
	e.once.Do(func() { e.end(ctx, sessionID) })
	return present, err
}

func TestJoinRoom_RollsBackWhenSessionEndsConcurrently(t *testing.T) {
	req := require.New(t)
	endErr := make(chan error, 1)
	f := newWSFixture(t, func(d *Deps) {
		registry := d.Sessions.(*session.Registry)
		d.Sessions = &endsOnFirstCheck{
			SessionService: registry,
			end: func(ctx context.Context, sessionID string) {
				_, err := registry.EndSession(ctx, sessionID, "host")
				endErr <- err
			},
		}
	})

	host := f.dial(t, "host")
	send(t, host, MessageJoinRoom, roomRequest{SessionID: f.session.ID})

	evt := expect(t, host, models.EventError)
	var payload models.ErrorEvent
	req.NoError(json.Unmarshal(evt.Payload, &payload))
	req.Equal(string(apperr.Forbidden), payload.Code)
	req.NoError(<-endErr)
	req.Zero(f.hub.GroupSize(f.session.ID))
}
