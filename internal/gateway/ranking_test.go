package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
	"github.com/jacl-coder/PixelStorm-Scoreboard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, store RankingStore, cache LeaderboardCache) http.Handler {
	t.Helper()
	g, err := NewGateway(testConfig(), store, cache)
	require.NoError(t, err)
	return g.Handler()
}

func submit(t *testing.T, handler http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, SubmitScorePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func getPage(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSubmitScore_Success(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(t, store, nil)

	rec, resp := submit(t, handler, `{"score": 42, "timeLeft": 15, "playerCount": 2, "userName": " Ada "}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{"success": true}, resp)

	rows := store.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].UserName)
	assert.Equal(t, 42, rows[0].Score)
	assert.Equal(t, 45, rows[0].PlayTime)
	assert.Equal(t, 2, rows[0].PlayerCount)
	assert.NotEmpty(t, rows[0].Timestamp)
}

func TestSubmitScore_Defaults(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(t, store, nil)

	rec, _ := submit(t, handler, `{"userName": "  "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rows := store.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, models.RankingEntry{
		ID:          1,
		UserName:    "Anonymous",
		Score:       0,
		PlayTime:    60,
		PlayerCount: 1,
		Timestamp:   rows[0].Timestamp,
	}, rows[0])
}

func TestSubmitScore_BadRequest(t *testing.T) {
	bodies := []string{
		`not json`,
		`[{"score": 1}]`,
		`"score"`,
		`{"score": "many"}`,
		``,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			store := newFakeStore()
			handler := newTestServer(t, store, nil)

			rec, resp := submit(t, handler, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["error"])
			assert.Empty(t, store.rows())
		})
	}
}

func TestSubmitScore_NoConnection(t *testing.T) {
	store := newFakeStore()
	store.insertErr = fmt.Errorf("%w: dial tcp: connection refused", db.ErrNoConnection)
	handler := newTestServer(t, store, nil)

	rec, resp := submit(t, handler, `{"score": 1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "database connection error", resp["error"])
}

func TestSubmitScore_StoreError(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("保存成绩失败: disk full")
	handler := newTestServer(t, store, nil)

	rec, resp := submit(t, handler, `{"score": 1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "disk full")
}

func TestSubmitScore_MethodNotAllowed(t *testing.T) {
	handler := newTestServer(t, newFakeStore(), nil)

	rec := getPage(t, handler, SubmitScorePath)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestLeaderboard_Empty(t *testing.T) {
	handler := newTestServer(t, newFakeStore(), nil)

	rec := getPage(t, handler, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `id="no-rankings"`)
}

func TestLeaderboard_StoreError(t *testing.T) {
	store := newFakeStore()
	store.topErr = errors.New("relation \"rankings\" does not exist")
	handler := newTestServer(t, store, nil)

	rec := getPage(t, handler, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="no-rankings"`)
}

func TestLeaderboard_OrderAndLimit(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(t, store, nil)

	for i := 1; i <= 12; i++ {
		rec, _ := submit(t, handler, fmt.Sprintf(`{"score": %d, "userName": "player-%02d"}`, i*10, i))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	body := getPage(t, handler, "/").Body.String()
	assert.Equal(t, models.LeaderboardSize, strings.Count(body, `class="user-name"`))
	assert.NotContains(t, body, "player-01")
	assert.NotContains(t, body, "player-02")
	assert.Less(t, strings.Index(body, "player-12"), strings.Index(body, "player-11"))
	assert.Less(t, strings.Index(body, "player-04"), strings.Index(body, "player-03"))
}

func TestLeaderboard_TieBreaksByNewest(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(t, store, nil)

	submit(t, handler, `{"score": 50, "userName": "older"}`)
	submit(t, handler, `{"score": 50, "userName": "newer"}`)

	body := getPage(t, handler, "/").Body.String()
	assert.Less(t, strings.Index(body, "newer"), strings.Index(body, "older"))
}

func TestLeaderboard_IndexAlias(t *testing.T) {
	store := newFakeStore()
	handler := newTestServer(t, store, nil)
	submit(t, handler, `{"score": 9, "userName": "Ada"}`)

	rec := getPage(t, handler, "/index")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ada")
}

func TestLeaderboard_RedisSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := newFakeStore()
	handler := newTestServer(t, store, models.NewRedisLeaderboard(client, time.Minute))

	submit(t, handler, `{"score": 10, "userName": "Ada"}`)

	// 提交已使代数前进到 1
	getPage(t, handler, "/")
	assert.True(t, mr.Exists(models.LeaderboardSnapshotKey(1)))
	assert.Equal(t, 1, store.topCalls)

	// 命中缓存时不再查询数据库
	assert.Contains(t, getPage(t, handler, "/").Body.String(), "Ada")
	assert.Equal(t, 1, store.topCalls)

	// 新成绩使快照失效，下一次访问能看到
	submit(t, handler, `{"score": 99, "userName": "Bob"}`)
	assert.False(t, mr.Exists(models.LeaderboardSnapshotKey(1)))

	body := getPage(t, handler, "/").Body.String()
	assert.Equal(t, 2, store.topCalls)
	assert.Less(t, strings.Index(body, "Bob"), strings.Index(body, "Ada"))
}

func TestLeaderboard_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	store := newFakeStore()
	handler := newTestServer(t, store, models.NewRedisLeaderboard(client, time.Minute))
	mr.Close()

	rec, resp := submit(t, handler, `{"score": 10, "userName": "Ada"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])

	page := getPage(t, handler, "/")
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Ada")
}

func TestLeaderboard_EmptyResultNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	handler := newTestServer(t, newFakeStore(), models.NewRedisLeaderboard(client, time.Minute))

	getPage(t, handler, "/")
	assert.False(t, mr.Exists(models.LeaderboardSnapshotKey(0)))
}

func TestLeaderboard_InsertDuringRefillIsVisible(t *testing.T) {
	tests := []struct {
		name    string
		inserts []string
		want    []string
	}{
		{
			name:    "single insert",
			inserts: []string{`{"score": 99, "userName": "Bob"}`},
			want:    []string{"Bob", "Ada"},
		},
		{
			name: "several inserts",
			inserts: []string{
				`{"score": 5, "userName": "Cy"}`,
				`{"score": 77, "userName": "Dee"}`,
			},
			want: []string{"Dee", "Ada", "Cy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })

			store := newFakeStore()
			handler := newTestServer(t, store, models.NewRedisLeaderboard(client, time.Minute))
			submit(t, handler, `{"score": 10, "userName": "Ada"}`)

			store.mu.Lock()
			store.topStarted = make(chan struct{}, 1)
			store.topGate = make(chan struct{})
			gate := store.topGate
			store.mu.Unlock()

			// 读者未命中缓存，已经从数据库取到旧数据但还没回填
			done := make(chan struct{})
			go func() {
				defer close(done)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			}()
			<-store.topStarted

			for _, body := range tt.inserts {
				rec, _ := submit(t, handler, body)
				require.Equal(t, http.StatusOK, rec.Code)
			}

			close(gate)
			<-done

			body := getPage(t, handler, "/").Body.String()
			last := -1
			for _, name := range tt.want {
				idx := strings.Index(body, name)
				require.NotEqual(t, -1, idx, "%s 应出现在排行榜中", name)
				assert.Greater(t, idx, last, "%s 排序错误", name)
				last = idx
			}
		})
	}
}
