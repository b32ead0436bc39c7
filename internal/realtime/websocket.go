// websocket.go

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"golang.org/x/time/rate"
)

const (
	// 写入超时时间
	writeWait = 10 * time.Second

	// 读取超时时间
	pongWait = 60 * time.Second

	// 发送 ping 的间隔时间
	pingPeriod = (pongWait * 9) / 10

	// 断开连接后清理操作的超时时间
	cleanupTimeout = 5 * time.Second
)

// 上行消息类型
const (
	MessageJoinRoom    = "join_session_room"
	MessageLeaveRoom   = "leave_session_room"
	MessageSendMessage = "send_message"
	MessageSignalRelay = "signal_relay"
)

// Message 上行消息信封
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type chatRequest struct {
	SessionID string             `json:"session_id" validate:"required"`
	Message   string             `json:"message" validate:"required"`
	Type      models.MessageType `json:"type"`
}

type signalRequest struct {
	SessionID string           `json:"session_id" validate:"required"`
	Kind      models.EventType `json:"kind" validate:"required"`
	Payload   json.RawMessage  `json:"payload"`
}

// SessionService 会话注册表中实时通道依赖的部分
type SessionService interface {
	LeaveSession(ctx context.Context, sessionID, userID string) (*models.GameSession, error)
	IsPresent(ctx context.Context, sessionID, userID string) (bool, error)
	Participants(ctx context.Context, sessionID string) ([]models.Participant, error)
}

// ChatService 聊天记录
type ChatService interface {
	Post(ctx context.Context, sessionID, userID string, msgType models.MessageType, content string) (*models.ChatMessage, error)
}

// PresenceService 在线状态
type PresenceService interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// UserStatus 持久化的用户在线标记
type UserStatus interface {
	SetOnline(ctx context.Context, userID string, online bool)
}

// Relayer 信令转发，默认由本地 Hub 完成
type Relayer interface {
	Relay(from *Client, sessionID string, evt models.Event) error
}

// Authenticator 升级前校验请求并返回用户
type Authenticator func(r *http.Request) (*models.UserProfile, error)

// Deps 实时服务的协作者
type Deps struct {
	Sessions     SessionService
	Chat         ChatService
	Presence     PresenceService
	Users        UserStatus
	Authenticate Authenticator
	Relay        Relayer
}

// Server WebSocket 服务
type Server struct {
	hub      *Hub
	deps     Deps
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
	validate *validator.Validate
	log      *slog.Logger
}

// NewServer 创建 WebSocket 服务
func NewServer(hub *Hub, deps Deps, cfg config.RealtimeConfig, allowedOrigins []string, log *slog.Logger) *Server {
	if deps.Relay == nil {
		deps.Relay = hub
	}
	return &Server{
		hub:  hub,
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		validate: validator.New(),
		log:      log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeHTTP 处理WebSocket连接，连接存续期间阻塞
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Authenticate(r)
	if err != nil {
		http.Error(w, "未授权", apperr.HTTPStatus(err))
		return
	}

	// 升级HTTP连接为WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket升级失败", "error", err)
		return
	}

	client := s.hub.Register(user.ID)
	ctx := context.WithoutCancel(r.Context())
	if err := s.deps.Presence.MarkOnline(ctx, user.ID); err != nil {
		s.log.Warn("记录在线状态失败", "user_id", user.ID, "error", err)
	}
	s.deps.Users.SetOnline(ctx, user.ID, true)
	s.log.Info("用户已连接", "user_id", user.ID, "client_id", client.ID)

	go s.writePump(conn, client)
	s.readPump(ctx, conn, client)
}

// readPump 从WebSocket读取数据
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, c *Client) {
	defer func() {
		s.disconnect(c)
		conn.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)

	// 设置读取参数
	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("WebSocket错误", "client_id", c.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			s.sendError(c, "", apperr.New(apperr.RateLimited, "消息过于频繁"))
			continue
		}
		s.handleMessage(ctx, c, data)
	}
}

// writePump 向WebSocket写入数据
func (s *Server) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// 每条事件单独一帧，客户端按 JSON 解析
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect 断开连接等同于离开所在的会话
func (s *Server) disconnect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for _, sessionID := range s.hub.Unregister(c) {
		// 同一用户的其他连接仍在房间中时保留参与者身份
		if s.hub.UserInGroup(c.UserID, sessionID) {
			continue
		}
		if _, err := s.deps.Sessions.LeaveSession(ctx, sessionID, c.UserID); err != nil && !apperr.IsKind(err, apperr.NotFound) {
			s.log.Warn("断开连接时离开会话失败", "session_id", sessionID, "user_id", c.UserID, "error", err)
		}
	}

	if err := s.deps.Presence.MarkOffline(ctx, c.UserID); err != nil {
		s.log.Warn("记录离线状态失败", "user_id", c.UserID, "error", err)
	}
	if !s.hub.UserConnected(c.UserID) {
		s.deps.Users.SetOnline(ctx, c.UserID, false)
	}
	s.log.Info("用户已断开连接", "user_id", c.UserID, "client_id", c.ID)
}

// handleMessage 处理接收到的消息
func (s *Server) handleMessage(ctx context.Context, c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(c, "", apperr.Wrap(apperr.Invalid, "无法解析消息", err))
		return
	}

	var err error
	switch msg.Type {
	case MessageJoinRoom:
		err = s.handleJoinRoom(ctx, c, msg.Payload)
	case MessageLeaveRoom:
		err = s.handleLeaveRoom(c, msg.Payload)
	case MessageSendMessage:
		err = s.handleSendMessage(ctx, c, msg.Payload)
	case MessageSignalRelay:
		err = s.handleSignalRelay(c, msg.Payload)
	default:
		err = apperr.New(apperr.Invalid, "未知消息类型: "+msg.Type)
	}
	if err != nil {
		s.sendError(c, msg.Type, err)
	}
}

func (s *Server) decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return apperr.New(apperr.Invalid, "缺少 payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Wrap(apperr.Invalid, "payload 格式错误", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return apperr.Wrap(apperr.Invalid, "payload 字段缺失", err)
	}
	return nil
}

// handleJoinRoom 订阅会话事件，需要已经是在场参与者
func (s *Server) handleJoinRoom(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req roomRequest
	if err := s.decode(payload, &req); err != nil {
		return err
	}

	present, err := s.deps.Sessions.IsPresent(ctx, req.SessionID, c.UserID)
	if err != nil {
		return err
	}
	if !present {
		return apperr.New(apperr.Forbidden, "请先加入会话")
	}

	s.hub.JoinGroup(c, req.SessionID)

	// 加入期间会话可能已结束或用户已离开，再确认一次，否则撤销
	if present, err = s.deps.Sessions.IsPresent(ctx, req.SessionID, c.UserID); err != nil || !present {
		s.hub.LeaveGroup(c, req.SessionID)
		if err != nil {
			return err
		}
		return apperr.New(apperr.Forbidden, "请先加入会话")
	}

	participants, err := s.deps.Sessions.Participants(ctx, req.SessionID)
	if err != nil {
		return err
	}
	evt, err := models.NewEvent(models.EventSessionParticipants, req.SessionID, participants)
	if err != nil {
		return err
	}
	s.hub.Send(c, evt)
	return nil
}

func (s *Server) handleLeaveRoom(c *Client, payload json.RawMessage) error {
	var req roomRequest
	if err := s.decode(payload, &req); err != nil {
		return err
	}
	s.hub.LeaveGroup(c, req.SessionID)
	return nil
}

func (s *Server) handleSendMessage(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req chatRequest
	if err := s.decode(payload, &req); err != nil {
		return err
	}
	if !s.hub.InGroup(c, req.SessionID) {
		return apperr.New(apperr.Forbidden, "未加入会话房间")
	}
	_, err := s.deps.Chat.Post(ctx, req.SessionID, c.UserID, req.Type, req.Message)
	return err
}

func (s *Server) handleSignalRelay(c *Client, payload json.RawMessage) error {
	var req signalRequest
	if err := s.decode(payload, &req); err != nil {
		return err
	}
	if !req.Kind.IsSignal() {
		return apperr.New(apperr.Invalid, "未知的信令类型: "+string(req.Kind))
	}
	return s.deps.Relay.Relay(c, req.SessionID, models.Event{Type: req.Kind, Payload: req.Payload})
}

// sendError 向连接发送错误事件
func (s *Server) sendError(c *Client, request string, err error) {
	code := apperr.KindOf(err)
	message := "内部错误"
	var e *apperr.Error
	if errors.As(err, &e) {
		code = e.Kind
		message = e.Message
	}
	if code == apperr.Internal {
		s.log.Error("处理消息失败", "client_id", c.ID, "request", request, "error", err)
	}

	evt, mErr := models.NewEvent(models.EventError, "", models.ErrorEvent{Code: string(code), Message: message})
	if mErr != nil {
		return
	}
	s.hub.Send(c, evt)
}

// Close 关闭所有连接
func (s *Server) Close() {
	s.hub.CloseAll()
}
