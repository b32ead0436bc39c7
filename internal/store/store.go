// Package store 定义持久化存储的接口
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jacl-coder/PixelStream-Server/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrJoinCodeTaken 邀请码已被占用
	ErrJoinCodeTaken = errors.New("邀请码已被占用")
	// ErrOwnerBusy 房主已有进行中的会话
	ErrOwnerBusy = errors.New("房主已有进行中的会话")
)

// SessionFilter 会话列表过滤条件
type SessionFilter struct {
	GameID *int64
	Limit  int
}

// Store 持久化存储
type Store interface {
	// InTx 在一个事务中执行 fn，fn 返回错误时整体回滚
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// UpsertUser 按外部ID插入用户，已存在时只刷新 last_seen 并返回已有记录
	UpsertUser(ctx context.Context, user *models.UserProfile) (*models.UserProfile, error)
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error

	GetGame(ctx context.Context, id int64) (*models.Game, error)
	ListGames(ctx context.Context) ([]models.Game, error)
	CreateGame(ctx context.Context, game *models.Game) error

	GetSession(ctx context.Context, id string) (*models.GameSession, error)
	GetSessionByJoinCode(ctx context.Context, code string) (*models.GameSession, error)
	// ListOpenPublicSessions 返回公开的 starting/active 会话，按开始时间倒序
	ListOpenPublicSessions(ctx context.Context, filter SessionFilter) ([]models.GameSession, error)
	ListParticipants(ctx context.Context, sessionID string, presentOnly bool) ([]models.Participant, error)
	GetHistory(ctx context.Context, sessionID string) (*models.SessionHistory, error)

	// ListChatMessages 返回 seq 大于 afterSeq 的消息，按 seq 升序
	ListChatMessages(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error)

	Close() error
}

// Tx 事务内可用的操作，会话的所有修改都必须先 LockSession
type Tx interface {
	IncrementPlayCount(ctx context.Context, gameID int64) error
	OwnerHasOpenSession(ctx context.Context, ownerID string) (bool, error)

	// InsertSession 邀请码冲突返回 ErrJoinCodeTaken，房主冲突返回 ErrOwnerBusy
	InsertSession(ctx context.Context, session *models.GameSession) error
	// LockSession 读取会话并锁定该行直到事务结束
	LockSession(ctx context.Context, id string) (*models.GameSession, error)
	UpdateSession(ctx context.Context, session *models.GameSession) error

	GetParticipant(ctx context.Context, sessionID, userID string) (*models.Participant, error)
	// SaveParticipant 按 (session, user) 插入或覆盖参与者记录
	SaveParticipant(ctx context.Context, p *models.Participant) error
	ListPresentParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	CountParticipants(ctx context.Context, sessionID string) (int, error)

	InsertHistory(ctx context.Context, history *models.SessionHistory) error
	InsertChatMessage(ctx context.Context, msg *models.ChatMessage) error
}
