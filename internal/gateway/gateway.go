package gateway

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jacl-coder/PixelStorm-Scoreboard/config"
	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
	"github.com/jacl-coder/PixelStorm-Scoreboard/web"
)

// RankingStore 排行榜存储
type RankingStore interface {
	InsertEntry(ctx context.Context, entry *models.RankingEntry) error
	TopEntries(ctx context.Context, limit int) ([]models.RankingEntry, error)
	Ping(ctx context.Context) error
}

// LeaderboardCache 排行榜快照缓存。
// Get 返回当前代数，未命中时调用方以该代数 Set；Invalidate 使代数前进，
// 之后按旧代数写入的快照不会再被读到。
type LeaderboardCache interface {
	Get(ctx context.Context) ([]models.RankingEntry, int64, bool, error)
	Set(ctx context.Context, gen int64, entries []models.RankingEntry) error
	Invalidate(ctx context.Context) error
}

// Gateway HTTP服务
type Gateway struct {
	config      *config.Config
	store       RankingStore
	cache       LeaderboardCache
	templates   *template.Template
	metrics     *Metrics
	rateLimiter *RateLimiter
	httpServer  *http.Server
	mutex       sync.Mutex
	isRunning   bool
}

// NewGateway 创建HTTP服务。cache 可以为 nil。
func NewGateway(cfg *config.Config, store RankingStore, cache LeaderboardCache) (*Gateway, error) {
	templates, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("加载页面模板失败: %w", err)
	}

	g := &Gateway{
		config:    cfg,
		store:     store,
		cache:     cache,
		templates: templates,
		metrics:   NewMetrics(),
	}
	if cfg.Server.SubmitRatePerMinute > 0 {
		trusted, err := cfg.Server.TrustedPrefixes()
		if err != nil {
			return nil, err
		}
		g.rateLimiter = NewRateLimiter(cfg.Server.SubmitRatePerMinute, cfg.Server.SubmitBurst, SubmitScorePath)
		g.rateLimiter.TrustProxies(trusted...)
	}

	return g, nil
}

// Handler 返回带中间件的HTTP处理器
func (g *Gateway) Handler() http.Handler {
	return g.applyMiddleware(g.createHandler())
}

// Start 启动HTTP服务
func (g *Gateway) Start() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.isRunning {
		return errors.New("服务已经在运行")
	}

	g.httpServer = &http.Server{
		Addr:              g.config.Server.Addr(),
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP服务启动，监听端口: %d", g.config.Server.Port)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP服务器错误: %v", err)
		}
	}()

	g.isRunning = true
	return nil
}

// Shutdown 停止HTTP服务，等待进行中的请求完成
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.rateLimiter != nil {
		g.rateLimiter.Stop()
	}

	if !g.isRunning {
		return nil
	}

	g.isRunning = false
	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭HTTP服务失败: %w", err)
	}
	log.Println("HTTP服务已停止")
	return nil
}

// createHandler 注册路由
func (g *Gateway) createHandler() *http.ServeMux {
	mux := http.NewServeMux()

	rankingHandler := NewRankingHandler(g.store, g.cache, g.templates, g.metrics)
	pageHandler := NewPageHandler(g.templates)

	rankingHandler.RegisterHandlers(mux)
	pageHandler.RegisterHandlers(mux)

	// 健康检查端点
	mux.HandleFunc("GET /health", g.handleHealth)

	mux.Handle("GET /metrics", g.metrics.Handler())

	return mux
}

// applyMiddleware 应用中间件（从外到内）
func (g *Gateway) applyMiddleware(handler http.Handler) http.Handler {
	if g.rateLimiter != nil {
		handler = g.rateLimiter.Middleware(handler)
	}
	handler = NewSecurityMiddleware().Middleware(handler)
	handler = NewRecoveryMiddleware().Middleware(handler)
	handler = NewLoggingMiddleware(g.metrics).Middleware(handler)

	return handler
}

// handleHealth 数据库可达时返回200
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := g.store.Ping(ctx); err != nil {
		log.Printf("健康检查失败: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("UNAVAILABLE"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
