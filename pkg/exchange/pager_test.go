package exchange

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory 模拟只支持 startTime + limit 的成交历史接口
func fakeHistory(fills []*Fill, limit int, calls *int) func(ctx context.Context, start time.Time) (tradePage, error) {
	return func(ctx context.Context, start time.Time) (tradePage, error) {
		*calls++
		page := tradePage{}
		for _, f := range fills {
			if f.ExecutedAt.Before(start) {
				continue
			}
			if limit > 0 && page.size >= limit {
				break
			}
			page.fills = append(page.fills, f)
			page.size++
			page.last = f.ExecutedAt
		}
		return page, nil
	}
}

func TestPageTrades_FetchesAllPages(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := make([]*Fill, 0)
	for i := 0; i < 7; i++ {
		fills = append(fills, &Fill{HistoryID: strconv.Itoa(i + 1), ExecutedAt: at.Add(time.Duration(i) * time.Second)})
	}

	calls := 0
	result, err := pageTrades(context.Background(), at, 3, fakeHistory(fills, 3, &calls))
	require.NoError(t, err)
	require.Len(t, result, 7)
	for i, f := range result {
		assert.Equal(t, strconv.Itoa(i+1), f.HistoryID)
	}
	assert.Equal(t, 4, calls)
}

func TestPageTrades_SameMillisecondFullPage(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []*Fill{
		{HistoryID: "1", ExecutedAt: at},
		{HistoryID: "2", ExecutedAt: at},
		{HistoryID: "3", ExecutedAt: at.Add(time.Second)},
	}

	calls := 0
	result, err := pageTrades(context.Background(), at, 2, fakeHistory(fills, 2, &calls))
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "3", result[2].HistoryID)
	assert.Equal(t, 2, calls)
}

func TestPageTrades_SinglePageWithoutLimit(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []*Fill{{HistoryID: "1", ExecutedAt: at}, {HistoryID: "2", ExecutedAt: at.Add(time.Second)}}

	calls := 0
	result, err := pageTrades(context.Background(), at, 0, fakeHistory(fills, 0, &calls))
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, 1, calls)
}

func TestPageTrades_StopsAtPageCap(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := make([]*Fill, 0)
	for i := 0; i < maxHistoryPages+10; i++ {
		fills = append(fills, &Fill{HistoryID: strconv.Itoa(i), ExecutedAt: at.Add(time.Duration(i) * time.Second)})
	}

	calls := 0
	_, err := pageTrades(context.Background(), at, 1, fakeHistory(fills, 1, &calls))
	require.NoError(t, err)
	assert.Equal(t, maxHistoryPages, calls)
}

func TestPageTrades_FetchError(t *testing.T) {
	boom := errors.New("-1003 too many requests")
	_, err := pageTrades(context.Background(), time.Now(), 10, func(ctx context.Context, start time.Time) (tradePage, error) {
		return tradePage{}, boom
	})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pageTrades(ctx, time.Now(), 10, func(ctx context.Context, start time.Time) (tradePage, error) {
		t.Fatal("fetch after cancel")
		return tradePage{}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
