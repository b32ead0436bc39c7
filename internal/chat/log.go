// Package chat 会话内只追加的聊天记录
package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
)

const (
	lockStripes = 64

	// DefaultHistoryLimit 历史记录默认条数
	DefaultHistoryLimit = 50
	// MaxHistoryLimit 历史记录单页上限
	MaxHistoryLimit = 200
)

// Broadcaster 新消息的下行通道
type Broadcaster interface {
	Broadcast(sessionID string, evt models.Event)
}

type postRequest struct {
	Type    models.MessageType `validate:"oneof=text emote"`
	Content string             `validate:"required"`
}

// Log 聊天记录
type Log struct {
	store     store.Store
	events    Broadcaster
	maxLength int
	timeout   time.Duration
	validate  *validator.Validate
	log       *slog.Logger
	now       func() time.Time

	// 同一会话的写入和广播在同一把锁内完成，保证所有订阅者看到相同顺序
	stripes [lockStripes]sync.Mutex
}

// NewLog 创建聊天记录
func NewLog(st store.Store, events Broadcaster, maxLength int, timeout time.Duration, log *slog.Logger) *Log {
	return &Log{
		store:     st,
		events:    events,
		maxLength: maxLength,
		timeout:   timeout,
		validate:  validator.New(),
		log:       log,
		now:       time.Now,
	}
}

func (l *Log) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &l.stripes[h.Sum32()%lockStripes]
}

func (l *Log) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Post 发送用户消息，只有在场的参与者可以发言
func (l *Log) Post(ctx context.Context, sessionID, userID string, msgType models.MessageType, content string) (*models.ChatMessage, error) {
	if msgType == "" {
		msgType = models.MessageText
	}
	content = strings.TrimSpace(content)

	if err := l.validate.Struct(postRequest{Type: msgType, Content: content}); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "消息格式错误", err)
	}
	if l.maxLength > 0 && len([]rune(content)) > l.maxLength {
		return nil, apperr.New(apperr.Invalid, fmt.Sprintf("消息长度不能超过 %d", l.maxLength))
	}

	return l.append(ctx, &models.ChatMessage{
		SessionID: sessionID,
		UserID:    userID,
		Type:      msgType,
		Content:   content,
	})
}

// PostSystem 发送系统消息
func (l *Log) PostSystem(ctx context.Context, sessionID, content string) (*models.ChatMessage, error) {
	return l.append(ctx, &models.ChatMessage{
		SessionID: sessionID,
		Type:      models.MessageSystem,
		Content:   content,
	})
}

func (l *Log) append(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	mu := l.lockFor(msg.SessionID)
	mu.Lock()
	defer mu.Unlock()

	err := l.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := tx.LockSession(ctx, msg.SessionID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "会话不存在")
		}
		if err != nil {
			return err
		}
		if sess.Status != models.SessionActive {
			return apperr.New(apperr.NotActive, "会话未在进行中")
		}

		if msg.UserID != "" {
			p, err := tx.GetParticipant(ctx, msg.SessionID, msg.UserID)
			if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsPresent()) {
				return apperr.New(apperr.Forbidden, "不在会话中")
			}
			if err != nil {
				return err
			}
		}

		now := l.now()
		sess.ChatSeq++
		sess.LastActivity = now
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}

		msg.Seq = sess.ChatSeq
		msg.CreatedAt = now
		return tx.InsertChatMessage(ctx, msg)
	})
	if err != nil {
		return nil, apperr.WrapStore("保存聊天消息失败", err)
	}

	evt, err := models.NewEvent(models.EventNewMessage, msg.SessionID, msg)
	if err != nil {
		l.log.Error("事件序列化失败", "error", err)
		return msg, nil
	}
	l.events.Broadcast(msg.SessionID, evt)
	return msg, nil
}

// History 读取 seq 大于 afterSeq 的消息
func (l *Log) History(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if _, err := l.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "会话不存在")
		}
		return nil, apperr.WrapStore("查询会话失败", err)
	}

	messages, err := l.store.ListChatMessages(ctx, sessionID, afterSeq, limit)
	if err != nil {
		return nil, apperr.WrapStore("查询聊天记录失败", err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}
