package db

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
)

const insertRankingSQL = `
	INSERT INTO rankings (user_name, score, play_time, player_count, timestamp)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
`

const topRankingsSQL = `
	SELECT id, user_name, score, play_time, player_count, timestamp
	FROM rankings
	ORDER BY score DESC, timestamp DESC
	LIMIT $1
`

// InsertEntry 追加一条成绩记录，成功后回填 ID 和 Timestamp
func (s *Store) InsertEntry(ctx context.Context, entry *models.RankingEntry) error {
	conn, err := s.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	timestamp := models.FormatTimestamp(s.now())

	var id int64
	err = conn.QueryRowContext(ctx, insertRankingSQL,
		entry.UserName, entry.Score, entry.PlayTime, entry.PlayerCount, timestamp,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("保存成绩失败: %w", err)
	}

	entry.ID = id
	entry.Timestamp = timestamp
	return nil
}

// TopEntries 按分数降序、时间降序返回前 limit 条。
// 数据库不可达时返回空列表，不返回错误。
func (s *Store) TopEntries(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	entries := make([]models.RankingEntry, 0, limit)
	if limit <= 0 {
		return entries, nil
	}

	conn, err := s.Conn(ctx)
	if err != nil {
		if errors.Is(err, ErrNoConnection) {
			log.Printf("排行榜查询跳过，数据库不可用: %v", err)
			return entries, nil
		}
		return entries, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, topRankingsSQL, limit)
	if err != nil {
		return entries, fmt.Errorf("查询排行榜失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.RankingEntry
		if err := rows.Scan(
			&entry.ID, &entry.UserName, &entry.Score,
			&entry.PlayTime, &entry.PlayerCount, &entry.Timestamp,
		); err != nil {
			return entries[:0], fmt.Errorf("扫描排行榜数据失败: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return entries[:0], fmt.Errorf("遍历排行榜数据失败: %w", err)
	}

	return entries, nil
}
