package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jacl-coder/PixelStorm-Scoreboard/internal/models"
)

// ErrInvalidSubmission 请求体格式或字段类型错误
var ErrInvalidSubmission = errors.New("invalid submission")

// ErrInvalidField 单个字段无法转换
var ErrInvalidField = errors.New("invalid field")

// Submission 客户端提交的成绩，字段已经过转换
type Submission struct {
	Score       int
	TimeLeft    int
	PlayerCount int
	UserName    string
}

// Entry 构建待保存的排行榜记录
func (s *Submission) Entry() *models.RankingEntry {
	return models.NewRankingEntry(s.UserName, s.Score, s.TimeLeft, s.PlayerCount)
}

// DecodeSubmission 解析请求体。
// 请求体必须是一个JSON对象，字段全部可选，缺省值见各解析函数。
func DecodeSubmission(body io.Reader) (*Submission, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: 无效的JSON: %v", ErrInvalidSubmission, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: JSON之后存在多余内容", ErrInvalidSubmission)
	}

	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: 请求体必须是JSON对象", ErrInvalidSubmission)
	}

	var (
		s   Submission
		err error
	)
	if s.Score, err = parseScore(fields["score"]); err != nil {
		return nil, err
	}
	if s.TimeLeft, err = parseTimeLeft(fields["timeLeft"]); err != nil {
		return nil, err
	}
	if s.PlayerCount, err = parsePlayerCount(fields["playerCount"]); err != nil {
		return nil, err
	}
	if s.UserName, err = parseUserName(fields["userName"]); err != nil {
		return nil, err
	}

	// play_time 也是 INTEGER 列
	if playTime := int64(models.SessionLength) - int64(s.TimeLeft); playTime < math.MinInt32 || playTime > math.MaxInt32 {
		return nil, fieldError("timeLeft", errors.New("超出范围"))
	}

	return &s, nil
}

// parseScore 缺省或为假值时为 0
func parseScore(v any) (int, error) {
	n, err := parseIntField(v, 0)
	if err != nil {
		return 0, fieldError("score", err)
	}
	return n, nil
}

// parseTimeLeft 缺省或为假值时为 0，即 play_time 为整局时长
func parseTimeLeft(v any) (int, error) {
	n, err := parseIntField(v, 0)
	if err != nil {
		return 0, fieldError("timeLeft", err)
	}
	return n, nil
}

// parsePlayerCount 缺省或为假值时为 1
func parsePlayerCount(v any) (int, error) {
	n, err := parseIntField(v, models.DefaultPlayerCount)
	if err != nil {
		return 0, fieldError("playerCount", err)
	}
	return n, nil
}

// parseIntField 把JSON值转换为整数。
//
//	null, false, 0, "", [], {}  -> def
//	true                        -> 1
//	小数                         -> 向零截断
//	非空字符串                    -> 去掉首尾空白后按十进制整数解析
//
// 其他情况返回错误。结果必须在 INTEGER 列的范围内。
func parseIntField(v any, def int) (int, error) {
	switch x := v.(type) {
	case nil:
		return def, nil
	case bool:
		if !x {
			return def, nil
		}
		return 1, nil
	case json.Number:
		return parseNumber(x, def)
	case string:
		if x == "" {
			return def, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("无法解析为整数: %q", x)
		}
		return checkInt32(n)
	case []any:
		if len(x) == 0 {
			return def, nil
		}
		return 0, errors.New("数组不能转换为整数")
	case map[string]any:
		if len(x) == 0 {
			return def, nil
		}
		return 0, errors.New("对象不能转换为整数")
	default:
		return 0, fmt.Errorf("不支持的类型 %T", v)
	}
}

func parseNumber(x json.Number, def int) (int, error) {
	if n, err := x.Int64(); err == nil {
		if n == 0 {
			return def, nil
		}
		return checkInt32(n)
	}

	f, err := x.Float64()
	if err != nil {
		return 0, fmt.Errorf("无法解析为数字: %s", x)
	}
	if f == 0 {
		return def, nil
	}

	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, fmt.Errorf("超出范围: %s", x)
	}
	return int(t), nil
}

func checkInt32(n int64) (int, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("超出范围: %d", n)
	}
	return int(n), nil
}

// parseUserName 去掉首尾空白，为空时使用 DefaultUserName。
// 假值视为未填写，其他非字符串类型返回错误。
func parseUserName(v any) (string, error) {
	var name string

	switch x := v.(type) {
	case nil:
	case string:
		name = strings.TrimSpace(x)
	case bool:
		if x {
			return "", fieldError("userName", errors.New("必须是字符串"))
		}
	case json.Number:
		if f, err := x.Float64(); err != nil || f != 0 {
			return "", fieldError("userName", errors.New("必须是字符串"))
		}
	case []any:
		if len(x) != 0 {
			return "", fieldError("userName", errors.New("必须是字符串"))
		}
	case map[string]any:
		if len(x) != 0 {
			return "", fieldError("userName", errors.New("必须是字符串"))
		}
	default:
		return "", fieldError("userName", fmt.Errorf("不支持的类型 %T", v))
	}

	if name == "" {
		return models.DefaultUserName, nil
	}
	return name, nil
}

func fieldError(field string, err error) error {
	return fmt.Errorf("%w %s: %v", ErrInvalidField, field, err)
}
