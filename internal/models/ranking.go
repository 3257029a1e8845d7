// ranking.go

package models

import "time"

const (
	// SessionLength 一局游戏的固定时长(秒)，play_time = SessionLength - timeLeft
	SessionLength = 60
	// DefaultUserName 未填写名字时使用的玩家名
	DefaultUserName = "Anonymous"
	// DefaultPlayerCount 未提供玩家人数时的默认值
	DefaultPlayerCount = 1
	// LeaderboardSize 首页排行榜显示的条目数
	LeaderboardSize = 10
	// TimestampLayout 存储的时间格式 YYYY-MM-DD HH:MM:SS
	TimestampLayout = "2006-01-02 15:04:05"
)

// RankingEntry 一次游戏结果记录，对应 rankings 表的一行
type RankingEntry struct {
	ID          int64  `json:"id"`
	UserName    string `json:"user_name"`
	Score       int    `json:"score"`
	PlayTime    int    `json:"play_time"`
	PlayerCount int    `json:"player_count"`
	Timestamp   string `json:"timestamp"`
}

// RankingView 页面展示用的排行榜条目
type RankingView struct {
	UserName    string `json:"userName"`
	Score       int    `json:"score"`
	PlayTime    int    `json:"playTime"`
	PlayerCount int    `json:"playerCount"`
	Timestamp   string `json:"timestamp"`
}

// NewRankingEntry 根据提交的结果构建记录，ID 和时间戳由存储层分配
func NewRankingEntry(userName string, score, timeLeft, playerCount int) *RankingEntry {
	return &RankingEntry{
		UserName:    userName,
		Score:       score,
		PlayTime:    SessionLength - timeLeft,
		PlayerCount: playerCount,
	}
}

// View 转换为展示结构
func (e *RankingEntry) View() RankingView {
	return RankingView{
		UserName:    e.UserName,
		Score:       e.Score,
		PlayTime:    e.PlayTime,
		PlayerCount: e.PlayerCount,
		Timestamp:   e.Timestamp,
	}
}

// FormatTimestamp 按存储格式格式化本地时间
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// ToViews 批量转换，nil 输入返回空切片
func ToViews(entries []RankingEntry) []RankingView {
	views := make([]RankingView, 0, len(entries))
	for i := range entries {
		views = append(views, entries[i].View())
	}
	return views
}
