//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../../mocks/mock_collaborators.go -package=mocks

package session

import (
	"context"
	"log/slog"

	"github.com/jacl-coder/PixelStream-Server/internal/models"
)

// Provisioner 媒体容器编排的握手点
type Provisioner interface {
	// NotifyProvisionStart 会话从 starting 进入 active 时调用
	NotifyProvisionStart(ctx context.Context, session models.GameSession) error
	// NotifyProvisionStop 会话从 ending 进入 ended 时调用
	NotifyProvisionStop(ctx context.Context, session models.GameSession) error
}

// Broadcaster 会话事件的下行通道
type Broadcaster interface {
	// Broadcast 发送给会话组内所有连接
	Broadcast(sessionID string, evt models.Event)
	// BroadcastAll 发送给所有连接
	BroadcastAll(evt models.Event)
	// LeaveUser 将用户的所有连接移出会话组
	LeaveUser(sessionID, userID string)
}

// PopularityRecorder 记录游戏热度
type PopularityRecorder interface {
	RecordPlay(ctx context.Context, gameID int64) error
}

// LogProvisioner 只记录日志的编排器，容器编排由外部系统负责时使用
type LogProvisioner struct {
	Log *slog.Logger
}

// NotifyProvisionStart 记录会话启动
func (p LogProvisioner) NotifyProvisionStart(_ context.Context, session models.GameSession) error {
	p.Log.Info("会话开始推流", "session_id", session.ID, "game_id", session.GameID,
		"video_quality", session.VideoQuality, "fps", session.FPS)
	return nil
}

// NotifyProvisionStop 记录会话停止
func (p LogProvisioner) NotifyProvisionStop(_ context.Context, session models.GameSession) error {
	p.Log.Info("会话停止推流", "session_id", session.ID, "status", session.Status)
	return nil
}
