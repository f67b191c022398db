package exchange

import (
	"context"
	"time"
)

// maxHistoryPages 单个交易对一次查询最多翻页数，剩余部分由下一周期从游标处继续
const maxHistoryPages = 50

// tradePage 单页成交：fills 为解析成功的成交，size 为交易所返回的原始条数，last 为本页最后一笔的成交时间
type tradePage struct {
	fills []*Fill
	size  int
	last  time.Time
}

// pageTrades 从 start 开始逐页查询直到返回不足一页。
// 下一页从上一页最后一笔的时间（含）继续，重叠部分按成交ID去掉
func pageTrades(ctx context.Context, start time.Time, limit int, fetch func(ctx context.Context, start time.Time) (tradePage, error)) ([]*Fill, error) {
	seen := make(map[string]struct{})
	result := make([]*Fill, 0)

	for page := 0; page < maxHistoryPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := fetch(ctx, start)
		if err != nil {
			return nil, err
		}
		for _, f := range p.fills {
			if _, ok := seen[f.HistoryID]; ok {
				continue
			}
			seen[f.HistoryID] = struct{}{}
			result = append(result, f)
		}

		if limit <= 0 || p.size < limit {
			break
		}
		if p.last.After(start) {
			start = p.last
		} else {
			// 整页都落在同一毫秒
			start = start.Add(time.Millisecond)
		}
	}
	return result, nil
}
