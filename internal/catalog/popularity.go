package catalog

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
)

// PopularityKey 游戏热度排行的Redis键名
const PopularityKey = "games:popularity"

// Popularity Redis游戏热度排行
type Popularity struct {
	client redis.UniversalClient
}

// NewPopularity 创建游戏热度排行
func NewPopularity(client redis.UniversalClient) *Popularity {
	return &Popularity{client: client}
}

// RecordPlay 游戏热度加一
func (p *Popularity) RecordPlay(ctx context.Context, gameID int64) error {
	return p.client.ZIncrBy(ctx, PopularityKey, 1, strconv.FormatInt(gameID, 10)).Err()
}

// Top 获取热度最高的游戏（按分数降序）
func (p *Popularity) Top(ctx context.Context, limit int) ([]models.GamePopularity, error) {
	if limit <= 0 {
		return []models.GamePopularity{}, nil
	}
	members, err := p.client.ZRevRangeWithScores(ctx, PopularityKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.GamePopularity, 0, len(members))
	for _, member := range members {
		gameID, err := strconv.ParseInt(member.Member.(string), 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, models.GamePopularity{
			GameID: gameID,
			Score:  member.Score,
			Rank:   len(entries) + 1,
		})
	}
	return entries, nil
}

// Rank 获取游戏排名，不在排行中返回 -1
func (p *Popularity) Rank(ctx context.Context, gameID int64) (int, error) {
	rank, err := p.client.ZRevRank(ctx, PopularityKey, strconv.FormatInt(gameID, 10)).Result()
	if err != nil {
		if err == redis.Nil {
			return -1, nil
		}
		return -1, err
	}
	// Redis排名从0开始
	return int(rank) + 1, nil
}

// Rebuild 用数据库中的播放次数重建排行
func (p *Popularity) Rebuild(ctx context.Context, games []models.Game) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, PopularityKey)
		for _, g := range games {
			if g.PlayCount == 0 {
				continue
			}
			pipe.ZAdd(ctx, PopularityKey, &redis.Z{Score: float64(g.PlayCount), Member: strconv.FormatInt(g.ID, 10)})
		}
		return nil
	})
	return err
}
