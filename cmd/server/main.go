// main.go

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacl-coder/PixelStorm-Scoreboard/config"
	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/gateway"
	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
	"github.com/jacl-coder/PixelStorm-Scoreboard/pkg/db"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库连接
	store, err := db.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("初始化PostgreSQL失败: %v", err)
	}
	defer store.Close()

	// 表结构初始化失败时仍然启动，排行榜显示为空
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := store.EnsureSchema(schemaCtx); err != nil {
		log.Printf("警告: 数据库初始化失败，服务以降级模式运行: %v", err)
	}
	cancel()

	var cache gateway.LeaderboardCache
	if cfg.Redis.Enabled {
		client, err := db.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			log.Printf("警告: Redis不可用，排行榜直接查询数据库: %v", err)
		} else {
			defer db.CloseRedis(client)
			cache = models.NewRedisLeaderboard(client, cfg.Redis.LeaderboardTTL)
		}
	}

	server, err := gateway.NewGateway(cfg, store, cache)
	if err != nil {
		log.Fatalf("创建HTTP服务失败: %v", err)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("启动HTTP服务失败: %v", err)
	}

	// 等待中断信号
	<-ctx.Done()
	log.Println("接收到关闭信号，正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭服务器失败: %v", err)
	}

	log.Println("服务器已安全关闭")
}
