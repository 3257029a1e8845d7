package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// LeaderboardTopKey 首页排行榜快照键名前缀，实际键为 leaderboard:top:<代数>
	LeaderboardTopKey = "leaderboard:top"
	// LeaderboardGenKey 排行榜代数计数器，每次写入新成绩加一
	LeaderboardGenKey = "leaderboard:gen"
	// LeaderboardCacheTTL 默认缓存时间
	LeaderboardCacheTTL = 2 * time.Minute
)

// LeaderboardSnapshotKey 指定代数的快照键名
func LeaderboardSnapshotKey(gen int64) string {
	return fmt.Sprintf("%s:%d", LeaderboardTopKey, gen)
}

// RedisLeaderboard Redis排行榜快照。
// 只缓存首页的前 LeaderboardSize 条。快照按代数存放，写入新成绩时代数加一，
// 因此按旧代数回填的快照不会再被读到。
type RedisLeaderboard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLeaderboard 创建Redis排行榜快照管理器
func NewRedisLeaderboard(client *redis.Client, ttl time.Duration) *RedisLeaderboard {
	if ttl <= 0 {
		ttl = LeaderboardCacheTTL
	}
	return &RedisLeaderboard{
		client: client,
		ttl:    ttl,
	}
}

// Get 读取当前代数的快照。未命中时 ok 为 false，gen 仍然有效，
// 调用方查询数据库后应以同一个 gen 调用 Set。
func (rl *RedisLeaderboard) Get(ctx context.Context) ([]RankingEntry, int64, bool, error) {
	gen, err := rl.client.Get(ctx, LeaderboardGenKey).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, 0, false, fmt.Errorf("读取排行榜代数失败: %w", err)
		}
		gen = 0
	}

	key := LeaderboardSnapshotKey(gen)
	data, err := rl.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gen, false, nil
		}
		return nil, gen, false, fmt.Errorf("读取排行榜缓存失败: %w", err)
	}

	var entries []RankingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// 损坏的快照直接丢弃
		rl.client.Del(ctx, key)
		return nil, gen, false, fmt.Errorf("解析排行榜缓存失败: %w", err)
	}

	return entries, gen, true, nil
}

// Set 以 Get 返回的代数写入快照
func (rl *RedisLeaderboard) Set(ctx context.Context, gen int64, entries []RankingEntry) error {
	if entries == nil {
		entries = []RankingEntry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	if err := rl.client.Set(ctx, LeaderboardSnapshotKey(gen), data, rl.ttl).Err(); err != nil {
		return fmt.Errorf("写入排行榜缓存失败: %w", err)
	}
	return nil
}

// Invalidate 代数加一并删除上一代快照
func (rl *RedisLeaderboard) Invalidate(ctx context.Context) error {
	gen, err := rl.client.Incr(ctx, LeaderboardGenKey).Result()
	if err != nil {
		return fmt.Errorf("清除排行榜缓存失败: %w", err)
	}
	if err := rl.client.Del(ctx, LeaderboardSnapshotKey(gen-1)).Err(); err != nil {
		return fmt.Errorf("清除排行榜缓存失败: %w", err)
	}
	return nil
}
