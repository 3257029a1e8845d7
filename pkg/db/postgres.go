package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jacl-coder/PixelStorm-Scoreboard/config"
	_ "github.com/lib/pq"
)

// ErrNoConnection 无法从数据库获取连接
var ErrNoConnection = errors.New("database connection error")

// Store 排行榜存储网关，所有读写都经过这里
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开PostgreSQL连接池。
// sql.Open 不会真正建立连接，数据库不可达时这里仍然返回可用的 Store，
// 之后每个请求获取连接时再报告 ErrNoConnection。
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	sqlDB, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return NewStore(sqlDB), nil
}

// NewStore 使用已有的 *sql.DB 创建存储网关
func NewStore(sqlDB *sql.DB) *Store {
	return &Store{
		db:  sqlDB,
		now: time.Now,
	}
}

// SetClock 替换时间来源
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Conn 获取一个请求级别的连接，用完必须 Close
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	return conn, nil
}

// Ping 检查数据库是否可达
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("关闭数据库连接时发生错误: %v", err)
			return
		}
		log.Println("数据库连接已关闭")
	}
}
