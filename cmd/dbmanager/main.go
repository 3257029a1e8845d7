// main.go

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jacl-coder/PixelStorm-Scoreboard/config"
	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
	"github.com/jacl-coder/PixelStorm-Scoreboard/pkg/db"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dbmanager",
		Usage: "PixelStorm 排行榜数据库管理工具",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/config.yaml",
				Usage:   "配置文件路径",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "数据库操作超时时间",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "初始化数据库（创建 rankings 表）",
				Action: initAction,
			},
			{
				Name:  "top",
				Usage: "显示排行榜",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: models.LeaderboardSize,
						Usage: "显示条数",
					},
				},
				Action: topAction,
			},
		},
	}
}

// openStore 加载配置并打开数据库
func openStore(c *cli.Context) (*db.Store, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return db.Open(&cfg.Database)
}

// initAction 初始化数据库
func initAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("初始化数据库表失败: %w", err)
	}

	log.Println("✅ 数据库初始化完成")
	return nil
}

// topAction 打印排行榜
func topAction(c *cli.Context) error {
	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("无效的显示条数: %d", limit)
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		return err
	}

	entries, err := store.TopEntries(ctx, limit)
	if err != nil {
		return err
	}

	return printEntries(c.App.Writer, entries)
}

// printEntries 以表格形式输出
func printEntries(out io.Writer, entries []models.RankingEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "暂无记录")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tSCORE\tPLAY TIME\tPLAYERS\tTIMESTAMP")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n", i+1, e.UserName, e.Score, e.PlayTime, e.PlayerCount, e.Timestamp)
	}
	return w.Flush()
}
