// Package presence 跟踪在线用户并发布上下线事件
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/samber/lo"
)

// Redis 键名
const (
	// OnlineKey 在线用户集合，分数为过期时间（毫秒）
	OnlineKey = "presence:online"
	// EventsChannel 上下线事件频道
	EventsChannel = "presence:events"
)

// Tracker 在线状态跟踪器，本地按连接计数，Redis 中按心跳续期
type Tracker struct {
	client redis.UniversalClient
	cfg    config.PresenceConfig
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	conns map[string]int
}

// NewTracker 创建在线状态跟踪器
func NewTracker(client redis.UniversalClient, cfg config.PresenceConfig, log *slog.Logger) *Tracker {
	return &Tracker{
		client: client,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		conns:  make(map[string]int),
	}
}

func (t *Tracker) expiry() float64 {
	return float64(t.now().Add(t.cfg.TTL).UnixMilli())
}

// MarkOnline 记录一个新连接，用户的第一个连接会发布 user_online
func (t *Tracker) MarkOnline(ctx context.Context, userID string) error {
	t.mu.Lock()
	t.conns[userID]++
	first := t.conns[userID] == 1
	t.mu.Unlock()

	if err := t.client.ZAdd(ctx, OnlineKey, &redis.Z{Score: t.expiry(), Member: userID}).Err(); err != nil {
		return err
	}
	if first {
		return t.publish(ctx, models.EventUserOnline, userID)
	}
	return nil
}

// MarkOffline 释放一个连接，用户的最后一个连接断开时发布 user_offline
func (t *Tracker) MarkOffline(ctx context.Context, userID string) error {
	t.mu.Lock()
	n, ok := t.conns[userID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	last := n <= 1
	if last {
		delete(t.conns, userID)
	} else {
		t.conns[userID] = n - 1
	}
	t.mu.Unlock()

	if !last {
		return nil
	}
	if err := t.client.ZRem(ctx, OnlineKey, userID).Err(); err != nil {
		return err
	}
	return t.publish(ctx, models.EventUserOffline, userID)
}

// IsOnline 本实例上用户是否有连接
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[userID] > 0
}

// ListOnline 返回所有实例上未过期的在线用户
func (t *Tracker) ListOnline(ctx context.Context) ([]string, error) {
	users, err := t.client.ZRangeByScore(ctx, OnlineKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(t.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Refresh 为本实例的在线用户续期并清理过期成员
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	users := lo.Keys(t.conns)
	t.mu.Unlock()

	expiry := t.expiry()
	_, err := t.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(users) > 0 {
			members := lo.Map(users, func(u string, _ int) *redis.Z {
				return &redis.Z{Score: expiry, Member: u}
			})
			pipe.ZAdd(ctx, OnlineKey, members...)
		}
		pipe.ZRemRangeByScore(ctx, OnlineKey, "-inf", "("+strconv.FormatInt(t.now().UnixMilli(), 10))
		return nil
	})
	return err
}

// Run 周期性续期，直到 ctx 结束
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	t.log.Info("在线状态心跳已启动", "interval", t.cfg.HeartbeatInterval, "ttl", t.cfg.TTL)
	for {
		select {
		case <-ctx.Done():
			t.log.Info("在线状态心跳已停止")
			return nil
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				t.log.Warn("在线状态续期失败", "error", err)
			}
		}
	}
}

// Subscribe 订阅所有实例发布的上下线事件，ctx 结束后关闭通道
func (t *Tracker) Subscribe(ctx context.Context) (<-chan models.Event, error) {
	pubsub := t.client.Subscribe(ctx, EventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan models.Event)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					t.log.Warn("无法解析在线状态事件", "error", err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Tracker) publish(ctx context.Context, eventType models.EventType, userID string) error {
	evt, err := models.NewEvent(eventType, "", models.PresenceEvent{UserID: userID})
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, EventsChannel, data).Err()
}
