// session.go

package models

import (
	"time"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	// SessionStarting 正在启动
	SessionStarting SessionStatus = "starting"
	// SessionActive 进行中
	SessionActive SessionStatus = "active"
	// SessionEnding 正在结束
	SessionEnding SessionStatus = "ending"
	// SessionEnded 已结束
	SessionEnded SessionStatus = "ended"
	// SessionError 启动或运行失败
	SessionError SessionStatus = "error"
)

// 合法的状态迁移，不允许回退
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStarting: {SessionActive, SessionError},
	SessionActive:   {SessionEnding, SessionError},
	SessionEnding:   {SessionEnded, SessionError},
}

// CanTransitionTo 检查能否迁移到目标状态
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终止状态
func (s SessionStatus) IsTerminal() bool {
	return s == SessionEnded || s == SessionError
}

// IsOpen 是否占用房主的会话名额
func (s SessionStatus) IsOpen() bool {
	return s == SessionStarting || s == SessionActive
}

// SessionKind 会话类型
type SessionKind string

const (
	// KindSingle 单人游戏
	KindSingle SessionKind = "single"
	// KindMultiplayer 多人游戏
	KindMultiplayer SessionKind = "multiplayer"
	// KindSpectate 观战直播
	KindSpectate SessionKind = "spectate"
)

// ParticipantRole 参与者角色
type ParticipantRole string

const (
	// RolePlayer 玩家，占用玩家席位
	RolePlayer ParticipantRole = "player"
	// RoleSpectator 观众
	RoleSpectator ParticipantRole = "spectator"
	// RoleModerator 管理员，计入观众人数
	RoleModerator ParticipantRole = "moderator"
)

// IsPlayer 是否占用玩家席位
func (r ParticipantRole) IsPlayer() bool {
	return r == RolePlayer
}

// Valid 是否为已知角色
func (r ParticipantRole) Valid() bool {
	switch r {
	case RolePlayer, RoleSpectator, RoleModerator:
		return true
	}
	return false
}

// GameSession 游戏会话
type GameSession struct {
	ID             string        `json:"id"`
	GameID         int64         `json:"game_id"`
	OwnerID        string        `json:"owner_id"`
	JoinCode       string        `json:"join_code,omitempty"`
	Status         SessionStatus `json:"status"`
	Kind           SessionKind   `json:"kind"`
	IsPrivate      bool          `json:"is_private"`
	MaxPlayers     int           `json:"max_players"`
	CurrentPlayers int           `json:"current_players"`
	SpectatorCount int           `json:"spectator_count"`
	PeakPlayers    int           `json:"-"`
	VideoQuality   string        `json:"video_quality"`
	FPS            int           `json:"fps"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	LastActivity   time.Time     `json:"last_activity"`

	// 最后分配的聊天序号
	ChatSeq int64 `json:"-"`
}

// HasPlayerSeat 玩家席位是否还有空余
func (s *GameSession) HasPlayerSeat() bool {
	return s.CurrentPlayers < s.MaxPlayers
}

// Participant 会话参与者，(SessionID, UserID) 唯一
type Participant struct {
	SessionID       string          `json:"session_id"`
	UserID          string          `json:"user_id"`
	Role            ParticipantRole `json:"role"`
	IsHost          bool            `json:"is_host"`
	JoinedAt        time.Time       `json:"joined_at"`
	LeftAt          *time.Time      `json:"left_at,omitempty"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// IsPresent 是否当前在场
func (p *Participant) IsPresent() bool {
	return p.LeftAt == nil
}

// Finalize 记录离开时间并累计时长，已离开的参与者不会重复累计
func (p *Participant) Finalize(now time.Time) {
	if !p.IsPresent() {
		return
	}
	left := now
	p.LeftAt = &left
	if d := now.Sub(p.JoinedAt); d > 0 {
		p.DurationSeconds += int64(d / time.Second)
	}
}

// SessionHistory 会话结束后的汇总快照，写入后不再修改
type SessionHistory struct {
	SessionID        string        `json:"session_id"`
	GameID           int64         `json:"game_id"`
	OwnerID          string        `json:"owner_id"`
	FinalStatus      SessionStatus `json:"final_status"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	DurationSeconds  int64         `json:"duration_seconds"`
	ParticipantCount int           `json:"participant_count"`
	PeakPlayers      int           `json:"peak_players"`
}
