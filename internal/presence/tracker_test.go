package presence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *redis.Client, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	tracker := NewTracker(client, config.PresenceConfig{TTL: time.Minute, HeartbeatInterval: 20 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	tracker.now = func() time.Time { return now }
	return tracker, client, &now
}

func TestMarkOnlineOffline_CountsConnections(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tracker, _, _ := newTestTracker(t)

	// Given 同一用户两个连接
	req.NoError(tracker.MarkOnline(ctx, "alice"))
	req.NoError(tracker.MarkOnline(ctx, "alice"))
	req.NoError(tracker.MarkOnline(ctx, "bob"))

	online, err := tracker.ListOnline(ctx)
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, online)

	// When 关闭其中一个连接
	req.NoError(tracker.MarkOffline(ctx, "alice"))

	// Then 仍然在线
	req.True(tracker.IsOnline("alice"))
	online, err = tracker.ListOnline(ctx)
	req.NoError(err)
	req.Contains(online, "alice")

	req.NoError(tracker.MarkOffline(ctx, "alice"))
	req.False(tracker.IsOnline("alice"))
	online, err = tracker.ListOnline(ctx)
	req.NoError(err)
	req.Equal([]string{"bob"}, online)

	// 多余的下线调用被忽略
	req.NoError(tracker.MarkOffline(ctx, "alice"))
}

func TestListOnline_ExpiresWithoutHeartbeat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tracker, client, now := newTestTracker(t)

	req.NoError(tracker.MarkOnline(ctx, "alice"))

	// 其他实例异常退出后遗留的成员
	stale := float64(now.Add(-time.Second).UnixMilli())
	req.NoError(client.ZAdd(ctx, OnlineKey, &redis.Z{Score: stale, Member: "ghost"}).Err())

	*now = now.Add(2 * time.Minute)
	online, err := tracker.ListOnline(ctx)
	req.NoError(err)
	req.Empty(online)

	// When 心跳续期
	req.NoError(tracker.Refresh(ctx))

	// Then 本实例的连接恢复，过期成员被清理
	online, err = tracker.ListOnline(ctx)
	req.NoError(err)
	req.Equal([]string{"alice"}, online)

	count, err := client.ZCard(ctx, OnlineKey).Result()
	req.NoError(err)
	req.Equal(int64(1), count)
}

func TestSubscribe_PublishesTransitionsOnly(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker, _, _ := newTestTracker(t)

	events, err := tracker.Subscribe(ctx)
	req.NoError(err)

	req.NoError(tracker.MarkOnline(ctx, "alice"))
	req.NoError(tracker.MarkOnline(ctx, "alice"))
	req.NoError(tracker.MarkOffline(ctx, "alice"))
	req.NoError(tracker.MarkOffline(ctx, "alice"))

	var got []models.EventType
	for len(got) < 2 {
		select {
		case evt := <-events:
			got = append(got, evt.Type)
			var payload models.PresenceEvent
			req.NoError(json.Unmarshal(evt.Payload, &payload))
			req.Equal("alice", payload.UserID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for presence events, got %v", got)
		}
	}
	req.Equal([]models.EventType{models.EventUserOnline, models.EventUserOffline}, got)

	select {
	case evt := <-events:
		t.Fatalf("unexpected event %v", evt.Type)
	case <-time.After(100 * time.Millisecond):
	}

	// ctx 结束后通道关闭
	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRun_StopsOnCancel(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.cfg.HeartbeatInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tracker.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
