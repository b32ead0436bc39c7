package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacl-coder/PixelStream-Server/internal/models"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
)

// DefaultGames 初始游戏目录
var DefaultGames = []models.Game{
	{ID: 1, Title: "Super Mario Bros.", Platform: "nes", MaxPlayers: 2},
	{ID: 2, Title: "The Legend of Zelda", Platform: "nes", MaxPlayers: 1},
	{ID: 3, Title: "Street Fighter II", Platform: "snes", MaxPlayers: 2},
	{ID: 4, Title: "Super Bomberman", Platform: "snes", MaxPlayers: 4},
	{ID: 5, Title: "Sonic the Hedgehog 2", Platform: "genesis", MaxPlayers: 2},
	{ID: 6, Title: "Tetris", Platform: "gameboy", MaxPlayers: 2},
	{ID: 7, Title: "Mario Kart 64", Platform: "n64", MaxPlayers: 4},
	{ID: 8, Title: "Pac-Man", Platform: "arcade", MaxPlayers: 1},
}

// Seed 写入初始游戏目录，目录非空时跳过，返回写入的数量
func Seed(ctx context.Context, st store.Store, log *slog.Logger) (int, error) {
	existing, err := st.ListGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("查询游戏目录失败: %w", err)
	}
	if len(existing) > 0 {
		log.Info("游戏目录已有数据，跳过初始化", "count", len(existing))
		return 0, nil
	}

	for _, g := range DefaultGames {
		game := g
		if err := st.CreateGame(ctx, &game); err != nil {
			return 0, fmt.Errorf("写入游戏 %q 失败: %w", g.Title, err)
		}
	}
	log.Info("游戏目录初始化完成", "count", len(DefaultGames))
	return len(DefaultGames), nil
}
