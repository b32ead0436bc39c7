package gateway

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/session"
	"github.com/samber/lo"
)

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	GameID int64 `json:"game_id"`
	session.Options
}

// JoinSessionRequest 加入会话请求
type JoinSessionRequest struct {
	Role models.ParticipantRole `json:"role"`
}

// SessionDetail 会话详情
type SessionDetail struct {
	Session      *models.GameSession  `json:"session"`
	Participants []models.Participant `json:"participants"`
}

func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	if req.GameID <= 0 {
		g.sendErrorResponse(w, apperr.New(apperr.Invalid, "game_id 必须为正数"))
		return
	}

	user := currentUser(r)
	sess, err := g.deps.Sessions.CreateSession(r.Context(), req.GameID, user.ID, req.Options)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}

	sendSuccessResponse(w, http.StatusCreated, "会话已创建", sess)
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var gameID *int64
	if raw := r.URL.Query().Get("game_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			g.sendErrorResponse(w, apperr.New(apperr.Invalid, "无效的 game_id"))
			return
		}
		gameID = &id
	}

	sessions, err := g.deps.Sessions.ListActiveSessions(r.Context(), gameID)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "获取会话列表成功", sessions)
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(r)
	sessionID := r.PathValue("id")

	sess, err := g.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	participants, err := g.deps.Sessions.Participants(ctx, sessionID)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}

	// 私密会话的邀请码只对房主和在场成员可见
	if sess.IsPrivate && sess.OwnerID != user.ID && !lo.ContainsBy(participants, func(p models.Participant) bool { return p.UserID == user.ID }) {
		sess.JoinCode = ""
	}

	sendSuccessResponse(w, http.StatusOK, "获取会话成功", SessionDetail{Session: sess, Participants: participants})
}

func (g *Gateway) handleFindByCode(w http.ResponseWriter, r *http.Request) {
	sess, err := g.deps.Sessions.FindByJoinCode(r.Context(), r.PathValue("code"))
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "获取会话成功", sess)
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(r)
	sessionID := r.PathValue("id")

	query := r.URL.Query()
	afterSeq, err := parseIntParam(query.Get("after"), 0)
	if err != nil || afterSeq < 0 {
		g.sendErrorResponse(w, apperr.New(apperr.Invalid, "无效的 after"))
		return
	}
	limit, err := parseIntParam(query.Get("limit"), 0)
	if err != nil || limit < 0 {
		g.sendErrorResponse(w, apperr.New(apperr.Invalid, "无效的 limit"))
		return
	}

	sess, err := g.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	if sess.IsPrivate && sess.OwnerID != user.ID {
		present, err := g.deps.Sessions.IsPresent(ctx, sessionID, user.ID)
		if err != nil {
			g.sendErrorResponse(w, err)
			return
		}
		if !present {
			g.sendErrorResponse(w, apperr.New(apperr.Forbidden, "只有会话成员可以查看私密会话的聊天记录"))
			return
		}
	}

	messages, err := g.deps.Chat.History(ctx, sessionID, afterSeq, int(limit))
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "获取聊天记录成功", messages)
}

func (g *Gateway) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RolePlayer
	}

	user := currentUser(r)
	sessionID := r.PathValue("id")
	sess, err := g.deps.Sessions.JoinSession(r.Context(), sessionID, user.ID, req.Role)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}

	g.postSystem(r, sessionID, fmt.Sprintf("%s 加入了会话", displayName(user)))
	sendSuccessResponse(w, http.StatusOK, "已加入会话", sess)
}

func (g *Gateway) handleLeaveSession(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	sessionID := r.PathValue("id")
	sess, err := g.deps.Sessions.LeaveSession(r.Context(), sessionID, user.ID)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}

	g.postSystem(r, sessionID, fmt.Sprintf("%s 离开了会话", displayName(user)))
	sendSuccessResponse(w, http.StatusOK, "已离开会话", sess)
}

func (g *Gateway) handleEndSession(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	history, err := g.deps.Sessions.EndSession(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "会话已结束", history)
}

// postSystem 发送系统消息，失败只记录日志
func (g *Gateway) postSystem(r *http.Request, sessionID, content string) {
	if g.deps.Chat == nil {
		return
	}
	if _, err := g.deps.Chat.PostSystem(r.Context(), sessionID, content); err != nil {
		g.log.Warn("发送系统消息失败", "session_id", sessionID, "error", err)
	}
}

func displayName(user *models.UserProfile) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}

func parseIntParam(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
