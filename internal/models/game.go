// game.go

package models

// Game 游戏目录条目
type Game struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Platform   string `json:"platform"`
	MaxPlayers int    `json:"max_players"`
	PlayCount  int64  `json:"play_count"`
}

// GamePopularity 游戏热度
type GamePopularity struct {
	GameID int64   `json:"game_id"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}
