package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jacl-coder/PixelStorm-Scoreboard/config"
	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
)

// fakeStore 内存实现，排序规则与SQL一致
type fakeStore struct {
	mu        sync.Mutex
	entries   []models.RankingEntry
	nextID    int64
	base      time.Time
	insertErr error
	topErr    error
	pingErr   error
	topCalls  int

	// topGate 非空时，下一次 TopEntries 取完数据后通知 topStarted 并等待放行
	topStarted chan struct{}
	topGate    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{base: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)}
}

func (f *fakeStore) InsertEntry(_ context.Context, entry *models.RankingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	entry.ID = f.nextID
	entry.Timestamp = models.FormatTimestamp(f.base.Add(time.Duration(f.nextID) * time.Second))
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeStore) TopEntries(_ context.Context, limit int) ([]models.RankingEntry, error) {
	f.mu.Lock()
	f.topCalls++
	if f.topErr != nil {
		f.mu.Unlock()
		return nil, f.topErr
	}

	sorted := append([]models.RankingEntry(nil), f.entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	started, gate := f.topStarted, f.topGate
	f.topGate = nil
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}
	return sorted, nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeStore) rows() []models.RankingEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RankingEntry(nil), f.entries...)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            5000,
			ShutdownTimeout: time.Second,
		},
		Database: config.DatabaseConfig{Host: "localhost"},
	}
}
