// Package realtime 维护会话广播组并通过 WebSocket 投递事件
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/samber/lo"
)

// Client 一个传输连接
type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	mu     sync.Mutex
	closed bool

	// 由 Hub.mu 保护
	groups map[string]struct{}
}

// enqueue 非阻塞写入发送队列，队列已满时关闭连接
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		c.closed = true
		close(c.Send)
		return false
	}
}

// Close 关闭发送队列，写协程随后关闭底层连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub 会话ID到连接集合的映射
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[*Client]struct{}

	sendBuffer int
	log        *slog.Logger
}

// NewHub 创建广播中心
func NewHub(sendBuffer int, log *slog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[*Client]struct{}),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// Register 为用户创建并登记一个连接
func (h *Hub) Register(userID string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Send:   make(chan []byte, h.sendBuffer),
		groups: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// Unregister 移除连接并返回它所在的会话组
func (h *Hub) Unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return nil
	}
	delete(h.clients, c.ID)

	sessionIDs := lo.Keys(c.groups)
	for _, sessionID := range sessionIDs {
		h.removeLocked(c, sessionID)
	}
	c.Close()
	return sessionIDs
}

// JoinGroup 将连接加入会话组
func (h *Hub) JoinGroup(c *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	members, ok := h.groups[sessionID]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[sessionID] = members
	}
	members[c] = struct{}{}
	c.groups[sessionID] = struct{}{}
}

// LeaveGroup 将连接移出会话组
func (h *Hub) LeaveGroup(c *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, sessionID)
}

func (h *Hub) removeLocked(c *Client, sessionID string) {
	delete(c.groups, sessionID)
	members, ok := h.groups[sessionID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, sessionID)
	}
}

// LeaveUser 将用户的所有连接移出会话组
func (h *Hub) LeaveUser(sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.groups[sessionID] {
		if c.UserID == userID {
			h.removeLocked(c, sessionID)
		}
	}
}

// InGroup 连接是否在会话组中
func (h *Hub) InGroup(c *Client, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.groups[sessionID][c]
	return ok
}

// UserInGroup 用户是否还有其他连接在会话组中
func (h *Hub) UserInGroup(userID, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.groups[sessionID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// UserConnected 用户在本实例上是否还有连接
func (h *Hub) UserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.SomeBy(lo.Values(h.clients), func(c *Client) bool { return c.UserID == userID })
}

// GroupSize 会话组中的连接数
func (h *Hub) GroupSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}

// ConnectionCount 当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 发送给会话组内所有连接，session_ended 之后解散该组
func (h *Hub) Broadcast(sessionID string, evt models.Event) {
	evt.SessionID = sessionID
	data, ok := h.marshal(evt)
	if !ok {
		return
	}

	if evt.Type == models.EventSessionEnded {
		h.mu.Lock()
		defer h.mu.Unlock()
		for c := range h.groups[sessionID] {
			c.enqueue(data)
			delete(c.groups, sessionID)
		}
		delete(h.groups, sessionID)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.groups[sessionID] {
		if !c.enqueue(data) {
			h.log.Warn("发送队列已满，断开连接", "client_id", c.ID, "user_id", c.UserID)
		}
	}
}

// Relay 将信令转发给会话组内除发送者以外的连接
func (h *Hub) Relay(from *Client, sessionID string, evt models.Event) error {
	evt.SessionID = sessionID
	evt.From = from.UserID
	data, ok := h.marshal(evt)
	if !ok {
		return apperr.New(apperr.Internal, "事件序列化失败")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.groups[sessionID]
	if _, ok := members[from]; !ok {
		return apperr.New(apperr.Forbidden, "未加入会话房间")
	}
	for c := range members {
		if c != from {
			c.enqueue(data)
		}
	}
	return nil
}

// BroadcastAll 发送给所有连接
func (h *Hub) BroadcastAll(evt models.Event) {
	data, ok := h.marshal(evt)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(data)
	}
}

// Send 发送给单个连接
func (h *Hub) Send(c *Client, evt models.Event) {
	if data, ok := h.marshal(evt); ok {
		c.enqueue(data)
	}
}

// CloseAll 关闭所有连接，用于停机
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Close()
	}
}

func (h *Hub) marshal(evt models.Event) ([]byte, bool) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("序列化事件失败", "type", evt.Type, "error", err)
		return nil, false
	}
	return data, true
}
