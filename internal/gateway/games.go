package gateway

import (
	"net/http"

	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 100
)

func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	sendSuccessResponse(w, http.StatusOK, "获取用户信息成功", currentUser(r))
}

func (g *Gateway) handlePresence(w http.ResponseWriter, r *http.Request) {
	online, err := g.deps.Presence.ListOnline(r.Context())
	if err != nil {
		g.sendErrorResponse(w, apperr.WrapStore("查询在线用户失败", err))
		return
	}
	if online == nil {
		online = []string{}
	}
	sendSuccessResponse(w, http.StatusOK, "获取在线用户成功", map[string]interface{}{
		"users": online,
		"count": len(online),
	})
}

func (g *Gateway) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := g.deps.Catalog.ListGames(r.Context())
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "获取游戏列表成功", games)
}

func (g *Gateway) handlePopularGames(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"), defaultPopularLimit)
	if err != nil || limit <= 0 {
		g.sendErrorResponse(w, apperr.New(apperr.Invalid, "无效的 limit"))
		return
	}
	limit = min(limit, maxPopularLimit)

	games, err := g.deps.Catalog.Popular(r.Context(), int(limit))
	if err != nil {
		g.sendErrorResponse(w, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "获取热门游戏成功", games)
}
