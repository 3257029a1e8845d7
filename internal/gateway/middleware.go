package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext 获取请求ID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RateLimiter 按客户端IP限制指定路径的提交频率
type RateLimiter struct {
	clients map[string]*ClientInfo
	mutex   sync.Mutex
	paths   map[string]bool
	trusted []netip.Prefix

	// 配置
	RequestsPerMinute int
	BurstSize         int
	CleanupInterval   time.Duration
	IdleTimeout       time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// ClientInfo 客户端信息
type ClientInfo struct {
	Limiter  *rate.Limiter
	LastSeen time.Time
}

// NewRateLimiter 创建新的频率限制器，只对 paths 中的 POST 请求生效
func NewRateLimiter(requestsPerMinute, burstSize int, paths ...string) *RateLimiter {
	rl := &RateLimiter{
		clients:           make(map[string]*ClientInfo),
		paths:             make(map[string]bool, len(paths)),
		RequestsPerMinute: requestsPerMinute,
		BurstSize:         burstSize,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
		stop:              make(chan struct{}),
	}
	for _, p := range paths {
		rl.paths[p] = true
	}

	// 启动清理协程
	go rl.cleanup()

	return rl
}

// TrustProxies 设置可信反向代理。只有来自这些地址的请求才读取转发头。
func (rl *RateLimiter) TrustProxies(prefixes ...netip.Prefix) {
	rl.trusted = append([]netip.Prefix(nil), prefixes...)
}

// Middleware 频率限制中间件
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !rl.paths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.allowRequest(getClientIP(r, rl.trusted)) {
			rl.sendRateLimitError(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop 停止清理协程
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// allowRequest 检查是否允许请求
func (rl *RateLimiter) allowRequest(clientIP string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[clientIP]
	if !exists {
		client = &ClientInfo{
			Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.RequestsPerMinute)), rl.BurstSize),
		}
		rl.clients[clientIP] = client
	}
	client.LastSeen = time.Now()

	return client.Limiter.Allow()
}

// sendRateLimitError 发送频率限制错误响应
func (rl *RateLimiter) sendRateLimitError(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, SubmitResponse{
		Success: false,
		Error:   fmt.Sprintf("请求过于频繁，每分钟最多允许 %d 次提交", rl.RequestsPerMinute),
	})
}

// cleanup 清理长时间未访问的客户端
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now().Add(-rl.IdleTimeout))
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(cutoff time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for ip, client := range rl.clients {
		if client.LastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// getClientIP 获取客户端IP。
// 默认使用TCP对端地址；对端是可信代理时，从右向左跳过可信代理，
// 取 X-Forwarded-For 中第一个不可信的地址。
func getClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(hops[i])
		if err != nil {
			// 无法解析的地址不可信
			return peer
		}
		if !containsAddr(trusted, addr) {
			return addr.String()
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}

	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return containsAddr(trusted, addr)
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// SecurityMiddleware 安全头中间件
type SecurityMiddleware struct{}

// NewSecurityMiddleware 创建安全中间件
func NewSecurityMiddleware() *SecurityMiddleware {
	return &SecurityMiddleware{}
}

// Middleware 安全头中间件
func (sm *SecurityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// 游戏页面从CDN加载Phaser；Phaser用XHR取素材再转成blob图片
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' https://cdn.jsdelivr.net; style-src 'self'; "+
				"img-src 'self' data: blob: https://labs.phaser.io; connect-src 'self' https://labs.phaser.io")
		w.Header().Set("Server", "PixelStorm")

		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware 捕获panic，单个请求出错不影响进程
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware 创建恢复中间件
func NewRecoveryMiddleware() *RecoveryMiddleware {
	return &RecoveryMiddleware{}
}

// Middleware 恢复中间件。响应头已经发出时只记录日志，不再写入错误响应。
func (rm *RecoveryMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log.Printf("[%s] 请求处理发生panic: %v\n%s", RequestIDFromContext(r.Context()), rec, debug.Stack())
			if recorder.wroteHeader {
				return
			}
			writeJSON(w, http.StatusInternalServerError, SubmitResponse{
				Success: false,
				Error:   "internal server error",
			})
		}()

		next.ServeHTTP(recorder, r)
	})
}

// LoggingMiddleware 日志中间件
type LoggingMiddleware struct {
	metrics *Metrics
}

// NewLoggingMiddleware 创建日志中间件，metrics 可以为 nil
func NewLoggingMiddleware(metrics *Metrics) *LoggingMiddleware {
	return &LoggingMiddleware{metrics: metrics}
}

// Middleware 日志中间件
func (lm *LoggingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		log.Printf("[%s] %s %s %d %v", requestID, r.Method, r.URL.Path, recorder.statusCode, duration)

		lm.metrics.ObserveRequest(r.Method, recorder.statusCode, duration)
	})
}

// responseRecorder 响应记录器
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader 记录状态码
func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wroteHeader {
		rr.statusCode = code
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

// Write 未显式写状态码时按200处理
func (rr *responseRecorder) Write(data []byte) (int, error) {
	rr.wroteHeader = true
	return rr.ResponseWriter.Write(data)
}

// writeJSON 写入JSON响应
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("编码响应失败: %v", err)
	}
}
