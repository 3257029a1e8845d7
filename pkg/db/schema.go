// schema.go

package db

import (
	"context"
	"fmt"
	"log"
)

// CreateRankingsTableSQL rankings 表结构，重复执行无副作用
const CreateRankingsTableSQL = `
CREATE TABLE IF NOT EXISTS rankings (
    id BIGSERIAL PRIMARY KEY,
    user_name TEXT NOT NULL,
    score INTEGER NOT NULL,
    play_time INTEGER NOT NULL,
    player_count INTEGER NOT NULL,
    timestamp TEXT NOT NULL
);
`

// EnsureSchema 确保 rankings 表存在
func (s *Store) EnsureSchema(ctx context.Context) error {
	log.Println("正在初始化数据库表结构...")

	conn, err := s.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, CreateRankingsTableSQL); err != nil {
		return fmt.Errorf("创建rankings表失败: %w", err)
	}

	log.Println("数据库表结构初始化完成")
	return nil
}
