// Package catalog 游戏目录和热度排行
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
	"github.com/samber/lo"
)

// PopularGame 带热度的游戏
type PopularGame struct {
	models.Game
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Service 游戏目录服务
type Service struct {
	store      store.Store
	popularity *Popularity
	log        *slog.Logger
}

// NewService 创建游戏目录服务
func NewService(st store.Store, popularity *Popularity, log *slog.Logger) *Service {
	return &Service{store: st, popularity: popularity, log: log}
}

// ListGames 列出所有游戏
func (s *Service) ListGames(ctx context.Context) ([]models.Game, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, apperr.WrapStore("查询游戏目录失败", err)
	}
	if games == nil {
		games = []models.Game{}
	}
	return games, nil
}

// GetGame 获取游戏
func (s *Service) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	game, err := s.store.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "游戏不存在")
	}
	if err != nil {
		return nil, apperr.WrapStore("查询游戏失败", err)
	}
	return game, nil
}

// Popular 热度排行，排行中已下架的游戏会被跳过
func (s *Service) Popular(ctx context.Context, limit int) ([]PopularGame, error) {
	entries, err := s.popularity.Top(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "查询热度排行失败", err)
	}

	games, err := s.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(games, func(g models.Game) int64 { return g.ID })

	result := make([]PopularGame, 0, len(entries))
	for _, e := range entries {
		game, ok := byID[e.GameID]
		if !ok {
			continue
		}
		result = append(result, PopularGame{Game: game, Score: e.Score, Rank: len(result) + 1})
	}
	return result, nil
}

// RebuildPopularity 启动时用数据库的播放次数重建排行
func (s *Service) RebuildPopularity(ctx context.Context) error {
	games, err := s.ListGames(ctx)
	if err != nil {
		return err
	}
	if err := s.popularity.Rebuild(ctx, games); err != nil {
		return apperr.Wrap(apperr.Transient, "重建热度排行失败", err)
	}
	s.log.Info("游戏热度排行已重建", "games", len(games))
	return nil
}
