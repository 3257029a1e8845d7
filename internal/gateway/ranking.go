package gateway

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
	"github.com/jacl-coder/PixelStorm-Scoreboard/pkg/db"
	"github.com/jacl-coder/PixelStorm-Scoreboard/web"
)

// SubmitScorePath 成绩提交路径
const SubmitScorePath = "/submit_score"

// maxSubmitBodyBytes 提交请求体上限
const maxSubmitBodyBytes = 64 << 10

// SubmitResponse 成绩提交响应
type SubmitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IndexPage 排行榜页面数据
type IndexPage struct {
	Rankings []models.RankingView
}

// RankingHandler 排行榜和成绩提交处理器
type RankingHandler struct {
	store     RankingStore
	cache     LeaderboardCache
	templates *template.Template
	metrics   *Metrics
}

// NewRankingHandler 创建排行榜处理器，cache 可以为 nil
func NewRankingHandler(store RankingStore, cache LeaderboardCache, templates *template.Template, metrics *Metrics) *RankingHandler {
	return &RankingHandler{
		store:     store,
		cache:     cache,
		templates: templates,
		metrics:   metrics,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *RankingHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	// 前端提交成绩后跳转到 /index
	mux.HandleFunc("GET /index", h.handleIndex)
	mux.HandleFunc(SubmitScorePath, h.handleSubmitScore)
}

// handleIndex 渲染排行榜页面。任何错误都只记录日志，页面照常显示。
func (h *RankingHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	entries := h.leaderboard(r.Context())
	renderPage(w, h.templates, web.IndexTemplate, IndexPage{Rankings: models.ToViews(entries)})
}

// leaderboard 获取前 LeaderboardSize 条，优先读取Redis快照
func (h *RankingHandler) leaderboard(ctx context.Context) []models.RankingEntry {
	// 缓存出错时本次请求不回填
	refill := false
	var gen int64
	if h.cache != nil {
		entries, g, ok, err := h.cache.Get(ctx)
		if err != nil {
			log.Printf("读取排行榜缓存失败，回退到数据库查询: %v", err)
		} else if ok {
			h.metrics.leaderboard(leaderboardSourceCache)
			return entries
		} else {
			refill = true
			gen = g
		}
	}

	entries, err := h.store.TopEntries(ctx, models.LeaderboardSize)
	if err != nil {
		log.Printf("[%s] 排行榜获取失败: %v", RequestIDFromContext(ctx), err)
		h.metrics.leaderboard(leaderboardSourceFallback)
		return nil
	}
	h.metrics.leaderboard(leaderboardSourceStore)

	// 空结果可能是数据库不可用，不写入缓存
	if refill && len(entries) > 0 {
		if err := h.cache.Set(ctx, gen, entries); err != nil {
			log.Printf("写入排行榜缓存失败: %v", err)
		}
	}

	return entries
}

// handleSubmitScore 处理成绩提交，始终返回JSON
func (h *RankingHandler) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, SubmitResponse{Success: false, Error: "仅支持POST方法"})
		return
	}

	requestID := RequestIDFromContext(r.Context())
	log.Printf("[%s] 收到成绩提交请求", requestID)

	submission, err := DecodeSubmission(http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes))
	if err != nil {
		log.Printf("[%s] 成绩提交参数错误: %v", requestID, err)
		h.metrics.submission(submitResultInvalid)
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Success: false, Error: err.Error()})
		return
	}

	entry := submission.Entry()
	log.Printf("[%s] 处理数据: score=%d, time_left=%d, player_count=%d, user_name=%s, play_time=%d",
		requestID, entry.Score, submission.TimeLeft, entry.PlayerCount, entry.UserName, entry.PlayTime)

	if err := h.store.InsertEntry(r.Context(), entry); err != nil {
		log.Printf("[%s] 保存成绩失败: %v", requestID, err)
		if errors.Is(err, db.ErrNoConnection) {
			h.metrics.submission(submitResultNoConnection)
			writeJSON(w, http.StatusInternalServerError, SubmitResponse{Success: false, Error: db.ErrNoConnection.Error()})
			return
		}
		h.metrics.submission(submitResultStoreError)
		writeJSON(w, http.StatusInternalServerError, SubmitResponse{Success: false, Error: err.Error()})
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			log.Printf("[%s] %v", requestID, err)
		}
	}

	log.Printf("[%s] 成绩保存完成: id=%d", requestID, entry.ID)
	h.metrics.submission(submitResultSuccess)
	writeJSON(w, http.StatusOK, SubmitResponse{Success: true})
}

// renderPage 先渲染到缓冲区，模板出错时只影响当前请求
func renderPage(w http.ResponseWriter, templates *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("渲染页面 %s 失败: %v", name, err)
		http.Error(w, "页面渲染失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
