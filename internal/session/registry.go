// Package session 管理游戏会话的生命周期和参与者名单
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
	"github.com/samber/lo"
)

// Options 创建会话的参数
type Options struct {
	MaxPlayers   int                `json:"max_players" validate:"min=1"`
	IsPrivate    bool               `json:"is_private"`
	VideoQuality string             `json:"video_quality" validate:"oneof=low medium high ultra"`
	FPS          int                `json:"fps" validate:"oneof=30 60"`
	Kind         models.SessionKind `json:"kind" validate:"oneof=single multiplayer spectate"`
}

// Option Registry 的可选配置
type Option func(*Registry)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCodeGenerator 替换邀请码生成器
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.newCode = gen }
}

// WithPopularity 创建会话后记录游戏热度
func WithPopularity(p PopularityRecorder) Option {
	return func(r *Registry) { r.popularity = p }
}

// Registry 会话注册表
type Registry struct {
	store       store.Store
	provisioner Provisioner
	events      Broadcaster
	popularity  PopularityRecorder
	cfg         config.SessionConfig
	log         *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
	newCode     func() (string, error)
}

// NewRegistry 创建会话注册表
func NewRegistry(st store.Store, prov Provisioner, events Broadcaster, cfg config.SessionConfig, log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:       st,
		provisioner: prov,
		events:      events,
		cfg:         cfg,
		log:         log,
		validate:    validator.New(),
		now:         time.Now,
		newCode:     NewJoinCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.StoreTimeout)
}

// normalizeOptions 填充默认值并校验
func (r *Registry) normalizeOptions(opts Options) (Options, error) {
	if opts.Kind == "" {
		opts.Kind = models.KindMultiplayer
	}
	if opts.VideoQuality == "" {
		opts.VideoQuality = "high"
	}
	if opts.FPS == 0 {
		opts.FPS = 60
	}
	if opts.MaxPlayers == 0 {
		opts.MaxPlayers = r.cfg.DefaultMaxPlayers
	}
	if opts.Kind == models.KindSingle {
		opts.MaxPlayers = 1
	}

	if err := r.validate.Struct(opts); err != nil {
		return opts, apperr.Wrap(apperr.Invalid, "会话参数无效", err)
	}
	if r.cfg.MaxPlayersLimit > 0 && opts.MaxPlayers > r.cfg.MaxPlayersLimit {
		return opts, apperr.New(apperr.Invalid, "玩家人数超过上限")
	}
	return opts, nil
}

// CreateSession 创建会话，房主作为玩家加入并立即进入 active
func (r *Registry) CreateSession(ctx context.Context, gameID int64, ownerID string, opts Options) (*models.GameSession, error) {
	opts, err := r.normalizeOptions(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var sess *models.GameSession
	for attempt := 1; attempt <= r.cfg.JoinCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "生成邀请码失败", err)
		}

		sess, err = r.createInTx(ctx, gameID, ownerID, code, opts)
		if errors.Is(err, store.ErrJoinCodeTaken) {
			r.log.Debug("邀请码冲突，重新生成", "attempt", attempt, "owner_id", ownerID)
			continue
		}
		if errors.Is(err, store.ErrOwnerBusy) {
			return nil, apperr.New(apperr.AlreadyActive, "已有进行中的会话")
		}
		if err != nil {
			return nil, apperr.WrapStore("创建会话失败", err)
		}
		break
	}
	if sess == nil {
		return nil, apperr.New(apperr.Conflict, "无法分配唯一的邀请码")
	}

	if err := r.provisioner.NotifyProvisionStart(ctx, *sess); err != nil {
		r.log.Error("会话启动失败", "session_id", sess.ID, "error", err)
		if _, ferr := r.FailSession(ctx, sess.ID, "provision_failed"); ferr != nil {
			r.log.Error("标记会话失败状态出错", "session_id", sess.ID, "error", ferr)
		}
		return nil, apperr.Wrap(apperr.Transient, "会话启动失败", err)
	}

	if r.popularity != nil {
		if err := r.popularity.RecordPlay(ctx, gameID); err != nil {
			r.log.Warn("记录游戏热度失败", "game_id", gameID, "error", err)
		}
	}
	if !sess.IsPrivate {
		r.broadcastAll(models.EventSessionCreated, sess)
	}

	r.log.Info("会话已创建", "session_id", sess.ID, "game_id", gameID, "owner_id", ownerID, "kind", sess.Kind)
	return sess, nil
}

func (r *Registry) createInTx(ctx context.Context, gameID int64, ownerID, code string, opts Options) (*models.GameSession, error) {
	var created *models.GameSession
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		busy, err := tx.OwnerHasOpenSession(ctx, ownerID)
		if err != nil {
			return err
		}
		if busy {
			return apperr.New(apperr.AlreadyActive, "已有进行中的会话")
		}

		if err := tx.IncrementPlayCount(ctx, gameID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.New(apperr.NotFound, "游戏不存在")
			}
			return err
		}

		now := r.now()
		sess := &models.GameSession{
			ID:             uuid.NewString(),
			GameID:         gameID,
			OwnerID:        ownerID,
			JoinCode:       code,
			Status:         models.SessionStarting,
			Kind:           opts.Kind,
			IsPrivate:      opts.IsPrivate,
			MaxPlayers:     opts.MaxPlayers,
			CurrentPlayers: 1,
			PeakPlayers:    1,
			VideoQuality:   opts.VideoQuality,
			FPS:            opts.FPS,
			StartedAt:      now,
			LastActivity:   now,
		}
		if err := tx.InsertSession(ctx, sess); err != nil {
			return err
		}

		host := &models.Participant{
			SessionID: sess.ID,
			UserID:    ownerID,
			Role:      models.RolePlayer,
			IsHost:    true,
			JoinedAt:  now,
		}
		if err := tx.SaveParticipant(ctx, host); err != nil {
			return err
		}

		if err := transition(sess, models.SessionActive); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		created = sess
		return nil
	})
	return created, err
}

// JoinSession 加入会话，玩家席位已满时返回 Full
func (r *Registry) JoinSession(ctx context.Context, sessionID, userID string, role models.ParticipantRole) (*models.GameSession, error) {
	if !role.Valid() {
		return nil, apperr.New(apperr.Invalid, "未知的角色")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var updated *models.GameSession
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != models.SessionActive {
			return apperr.New(apperr.NotActive, "会话未在进行中")
		}

		prev, err := tx.GetParticipant(ctx, sessionID, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if prev != nil && prev.IsPresent() {
			return apperr.New(apperr.AlreadyPresent, "已在会话中")
		}

		if role.IsPlayer() && !sess.HasPlayerSeat() {
			return apperr.New(apperr.Full, "玩家席位已满")
		}

		now := r.now()
		p := &models.Participant{
			SessionID: sessionID,
			UserID:    userID,
			Role:      role,
			IsHost:    userID == sess.OwnerID,
			JoinedAt:  now,
		}
		// 重新加入时沿用之前累计的时长
		if prev != nil {
			p.DurationSeconds = prev.DurationSeconds
		}
		if err := tx.SaveParticipant(ctx, p); err != nil {
			return err
		}

		if role.IsPlayer() {
			sess.CurrentPlayers++
			sess.PeakPlayers = max(sess.PeakPlayers, sess.CurrentPlayers)
		} else {
			sess.SpectatorCount++
		}
		sess.LastActivity = now
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		updated = sess
		return nil
	})
	if err != nil {
		return nil, apperr.WrapStore("加入会话失败", err)
	}

	r.broadcast(updated.ID, models.EventUserJoined, participantEvent(updated, userID, role))
	r.log.Info("用户加入会话", "session_id", sessionID, "user_id", userID, "role", role)
	return updated, nil
}

// LeaveSession 离开会话，重复离开返回 NotFound
func (r *Registry) LeaveSession(ctx context.Context, sessionID, userID string) (*models.GameSession, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		updated *models.GameSession
		role    models.ParticipantRole
	)
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		p, err := tx.GetParticipant(ctx, sessionID, userID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsPresent()) {
			return apperr.New(apperr.NotFound, "不在会话中")
		}
		if err != nil {
			return err
		}

		now := r.now()
		p.Finalize(now)
		if err := tx.SaveParticipant(ctx, p); err != nil {
			return err
		}

		if p.Role.IsPlayer() {
			sess.CurrentPlayers = max(sess.CurrentPlayers-1, 0)
		} else {
			sess.SpectatorCount = max(sess.SpectatorCount-1, 0)
		}
		sess.LastActivity = now
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		updated = sess
		role = p.Role
		return nil
	})
	if err != nil {
		return nil, apperr.WrapStore("离开会话失败", err)
	}

	r.broadcast(updated.ID, models.EventUserLeft, participantEvent(updated, userID, role))
	r.events.LeaveUser(updated.ID, userID)
	r.log.Info("用户离开会话", "session_id", sessionID, "user_id", userID)
	return updated, nil
}

// EndSession 结束会话，只有房主可以执行
func (r *Registry) EndSession(ctx context.Context, sessionID, requesterID string) (*models.SessionHistory, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		ended   *models.GameSession
		history *models.SessionHistory
	)
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.OwnerID != requesterID {
			return apperr.New(apperr.Forbidden, "只有房主可以结束会话")
		}
		if sess.Status != models.SessionActive {
			return apperr.New(apperr.NotActive, "会话未在进行中")
		}

		if err := transition(sess, models.SessionEnding); err != nil {
			return err
		}
		history, err = r.closeInTx(ctx, tx, sess, models.SessionEnded)
		if err != nil {
			return err
		}
		ended = sess
		return nil
	})
	if err != nil {
		return nil, apperr.WrapStore("结束会话失败", err)
	}

	if err := r.provisioner.NotifyProvisionStop(ctx, *ended); err != nil {
		r.log.Warn("通知停止推流失败", "session_id", sessionID, "error", err)
	}
	r.broadcast(sessionID, models.EventSessionEnded, models.SessionEndedEvent{
		Status:          ended.Status,
		DurationSeconds: history.DurationSeconds,
	})
	r.log.Info("会话已结束", "session_id", sessionID, "duration_seconds", history.DurationSeconds,
		"participants", history.ParticipantCount)
	return history, nil
}

// FailSession 将未终止的会话置为 error，供编排失败时调用
func (r *Registry) FailSession(ctx context.Context, sessionID, reason string) (*models.SessionHistory, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var history *models.SessionHistory
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.IsTerminal() {
			return apperr.New(apperr.NotActive, "会话已终止")
		}
		history, err = r.closeInTx(ctx, tx, sess, models.SessionError)
		return err
	})
	if err != nil {
		return nil, apperr.WrapStore("标记会话失败状态出错", err)
	}

	r.broadcast(sessionID, models.EventSessionEnded, models.SessionEndedEvent{
		Status:          models.SessionError,
		Reason:          reason,
		DurationSeconds: history.DurationSeconds,
	})
	r.log.Warn("会话进入错误状态", "session_id", sessionID, "reason", reason)
	return history, nil
}

// closeInTx 结算所有在场参与者，写入汇总并迁移到终止状态
func (r *Registry) closeInTx(ctx context.Context, tx store.Tx, sess *models.GameSession, final models.SessionStatus) (*models.SessionHistory, error) {
	now := r.now()

	present, err := tx.ListPresentParticipants(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	for i := range present {
		p := present[i]
		p.Finalize(now)
		if err := tx.SaveParticipant(ctx, &p); err != nil {
			return nil, err
		}
	}

	if err := transition(sess, final); err != nil {
		return nil, err
	}
	sess.CurrentPlayers = 0
	sess.SpectatorCount = 0
	sess.EndedAt = &now
	sess.LastActivity = now
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	total, err := tx.CountParticipants(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	history := &models.SessionHistory{
		SessionID:        sess.ID,
		GameID:           sess.GameID,
		OwnerID:          sess.OwnerID,
		FinalStatus:      final,
		StartedAt:        sess.StartedAt,
		EndedAt:          now,
		DurationSeconds:  int64(now.Sub(sess.StartedAt) / time.Second),
		ParticipantCount: total,
		PeakPlayers:      sess.PeakPlayers,
	}
	if err := tx.InsertHistory(ctx, history); err != nil {
		return nil, err
	}
	return history, nil
}

// ListActiveSessions 列出公开的进行中会话
func (r *Registry) ListActiveSessions(ctx context.Context, gameID *int64) ([]models.GameSession, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sessions, err := r.store.ListOpenPublicSessions(ctx, store.SessionFilter{GameID: gameID, Limit: r.cfg.ListPageSize})
	if err != nil {
		return nil, apperr.WrapStore("查询会话列表失败", err)
	}
	if sessions == nil {
		sessions = []models.GameSession{}
	}
	return sessions, nil
}

// GetSession 获取会话
func (r *Registry) GetSession(ctx context.Context, sessionID string) (*models.GameSession, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sess, err := r.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "会话不存在")
	}
	return sess, apperr.WrapStore("查询会话失败", err)
}

// FindByJoinCode 按邀请码查找会话
func (r *Registry) FindByJoinCode(ctx context.Context, code string) (*models.GameSession, error) {
	normalized, ok := NormalizeJoinCode(code)
	if !ok {
		return nil, apperr.New(apperr.Invalid, "邀请码格式错误")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sess, err := r.store.GetSessionByJoinCode(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "会话不存在")
	}
	return sess, apperr.WrapStore("查询会话失败", err)
}

// Participants 列出会话当前在场的参与者
func (r *Registry) Participants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	participants, err := r.store.ListParticipants(ctx, sessionID, true)
	if err != nil {
		return nil, apperr.WrapStore("查询参与者失败", err)
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	return participants, nil
}

// IsPresent 用户当前是否在会话中
func (r *Registry) IsPresent(ctx context.Context, sessionID, userID string) (bool, error) {
	participants, err := r.Participants(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return lo.ContainsBy(participants, func(p models.Participant) bool { return p.UserID == userID }), nil
}

// History 获取已结束会话的汇总
func (r *Registry) History(ctx context.Context, sessionID string) (*models.SessionHistory, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	h, err := r.store.GetHistory(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "会话汇总不存在")
	}
	return h, apperr.WrapStore("查询会话汇总失败", err)
}

func lockSession(ctx context.Context, tx store.Tx, sessionID string) (*models.GameSession, error) {
	sess, err := tx.LockSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "会话不存在")
	}
	return sess, err
}

func transition(sess *models.GameSession, next models.SessionStatus) error {
	if !sess.Status.CanTransitionTo(next) {
		return apperr.New(apperr.NotActive, "非法的状态迁移: "+string(sess.Status)+" -> "+string(next))
	}
	sess.Status = next
	return nil
}

func participantEvent(sess *models.GameSession, userID string, role models.ParticipantRole) models.ParticipantEvent {
	return models.ParticipantEvent{
		UserID:         userID,
		Role:           role,
		CurrentPlayers: sess.CurrentPlayers,
		SpectatorCount: sess.SpectatorCount,
	}
}

func (r *Registry) broadcast(sessionID string, eventType models.EventType, payload interface{}) {
	evt, err := models.NewEvent(eventType, sessionID, payload)
	if err != nil {
		r.log.Error("事件序列化失败", "type", eventType, "error", err)
		return
	}
	r.events.Broadcast(sessionID, evt)
}

func (r *Registry) broadcastAll(eventType models.EventType, payload interface{}) {
	evt, err := models.NewEvent(eventType, "", payload)
	if err != nil {
		r.log.Error("事件序列化失败", "type", eventType, "error", err)
		return
	}
	r.events.BroadcastAll(evt)
}
