// Package identity 将外部身份映射为内部用户资料
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
	"golang.org/x/sync/singleflight"
)

const maxUsernameLength = 50

// Hints 令牌中携带的可选资料
type Hints struct {
	Username    string
	DisplayName string
}

// Resolver 身份解析器
type Resolver struct {
	store   store.Store
	log     *slog.Logger
	timeout time.Duration
	group   singleflight.Group
}

// NewResolver 创建身份解析器
func NewResolver(st store.Store, timeout time.Duration, log *slog.Logger) *Resolver {
	return &Resolver{store: st, timeout: timeout, log: log}
}

// Resolve 按外部ID查找用户，不存在时创建
func (r *Resolver) Resolve(ctx context.Context, externalID string, hints Hints) (*models.UserProfile, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperr.New(apperr.Invalid, "外部ID不能为空")
	}

	// 同一外部ID的并发首访合并为一次写入
	v, err, _ := r.group.Do(externalID, func() (interface{}, error) {
		ctx, cancel := r.withTimeout(context.WithoutCancel(ctx))
		defer cancel()

		user, err := r.store.UpsertUser(ctx, newProfile(externalID, hints))
		if err != nil {
			return nil, apperr.WrapStore("解析用户身份失败", err)
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	user := *v.(*models.UserProfile)
	return &user, nil
}

// Get 按内部ID获取用户
func (r *Resolver) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	user, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "用户不存在")
	}
	if err != nil {
		return nil, apperr.WrapStore("查询用户失败", err)
	}
	return user, nil
}

// SetOnline 记录用户上线或下线
func (r *Resolver) SetOnline(ctx context.Context, userID string, online bool) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.SetUserOnline(ctx, userID, online, time.Now()); err != nil {
		r.log.Warn("更新用户在线状态失败", "user_id", userID, "online", online, "error", err)
	}
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func newProfile(externalID string, hints Hints) *models.UserProfile {
	username := strings.TrimSpace(hints.Username)
	if username == "" {
		username = "player_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	if len(username) > maxUsernameLength {
		username = username[:maxUsernameLength]
	}
	displayName := strings.TrimSpace(hints.DisplayName)
	if displayName == "" {
		displayName = username
	}
	return &models.UserProfile{
		ExternalID:  externalID,
		Username:    username,
		DisplayName: displayName,
	}
}
