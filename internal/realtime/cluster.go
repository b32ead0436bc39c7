package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
)

// SessionEventsChannel 跨实例转发会话事件的频道
const SessionEventsChannel = "realtime:session_events"

const publishTimeout = 2 * time.Second

// 转发消息的动作
const (
	actionBroadcast    = "broadcast"
	actionBroadcastAll = "broadcast_all"
	actionLeaveUser    = "leave_user"
	actionRelay        = "relay"
)

type clusterMessage struct {
	Origin    string        `json:"origin"`
	Action    string        `json:"action"`
	SessionID string        `json:"session_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Event     *models.Event `json:"event,omitempty"`
}

// Cluster 先投递给本地 Hub，再经 Redis 转发给其他实例
type Cluster struct {
	hub    *Hub
	client redis.UniversalClient
	id     string
	log    *slog.Logger
}

// NewCluster 创建跨实例广播
func NewCluster(hub *Hub, client redis.UniversalClient, log *slog.Logger) *Cluster {
	return &Cluster{
		hub:    hub,
		client: client,
		id:     uuid.NewString(),
		log:    log,
	}
}

// Broadcast 发送给所有实例上的会话组
func (c *Cluster) Broadcast(sessionID string, evt models.Event) {
	c.hub.Broadcast(sessionID, evt)
	c.publish(clusterMessage{Action: actionBroadcast, SessionID: sessionID, Event: &evt})
}

// BroadcastAll 发送给所有实例上的连接
func (c *Cluster) BroadcastAll(evt models.Event) {
	c.hub.BroadcastAll(evt)
	c.publish(clusterMessage{Action: actionBroadcastAll, Event: &evt})
}

// LeaveUser 在所有实例上将用户移出会话组
func (c *Cluster) LeaveUser(sessionID, userID string) {
	c.hub.LeaveUser(sessionID, userID)
	c.publish(clusterMessage{Action: actionLeaveUser, SessionID: sessionID, UserID: userID})
}

// Relay 发送者必须在本实例的会话组中，其他实例上的成员全部收到
func (c *Cluster) Relay(from *Client, sessionID string, evt models.Event) error {
	if err := c.hub.Relay(from, sessionID, evt); err != nil {
		return err
	}
	evt.From = from.UserID
	c.publish(clusterMessage{Action: actionRelay, SessionID: sessionID, Event: &evt})
	return nil
}

func (c *Cluster) publish(msg clusterMessage) {
	msg.Origin = c.id
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("序列化转发消息失败", "action", msg.Action, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.client.Publish(ctx, SessionEventsChannel, data).Err(); err != nil {
		c.log.Warn("转发会话事件失败", "action", msg.Action, "session_id", msg.SessionID, "error", err)
	}
}

// Run 接收其他实例转发的会话事件，直到 ctx 结束
func (c *Cluster) Run(ctx context.Context) error {
	pubsub := c.client.Subscribe(ctx, SessionEventsChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.log.Info("跨实例会话事件已订阅", "instance", c.id)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.deliver([]byte(msg.Payload))
		}
	}
}

func (c *Cluster) deliver(data []byte) {
	var msg clusterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("无法解析转发消息", "error", err)
		return
	}
	if msg.Origin == c.id {
		return
	}

	switch msg.Action {
	case actionLeaveUser:
		c.hub.LeaveUser(msg.SessionID, msg.UserID)
	case actionBroadcast, actionRelay:
		if msg.Event != nil {
			c.hub.Broadcast(msg.SessionID, *msg.Event)
		}
	case actionBroadcastAll:
		if msg.Event != nil {
			c.hub.BroadcastAll(*msg.Event)
		}
	default:
		c.log.Warn("未知的转发动作", "action", msg.Action)
	}
}
