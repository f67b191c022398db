package pnl

import (
	"math"
	"sort"
	"time"

	"github.com/dushixiang/tfc/pkg/exchange"
)

// Epsilon 判定仓位归零、分数相等时使用的容差
const Epsilon = 1e-7

// Trade 参与计算的一笔成交（单个参赛者、单场对战内）
type Trade struct {
	Symbol     string        `json:"symbol"`
	Side       exchange.Side `json:"side"`
	Amount     float64       `json:"amount"` // 成交数量，恒为正
	Price      float64       `json:"price"`
	Fee        float64       `json:"fee"`
	Pnl        float64       `json:"pnl"` // 交易所回报的原始盈亏
	Leverage   int           `json:"leverage"`
	HistoryID  string        `json:"history_id"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// PositionState 单个交易对的派生持仓
type PositionState struct {
	SignedAmount float64 `json:"signed_amount"` // 正数为多，负数为空
	CostBasis    float64 `json:"cost_basis"`    // 恒 >= 0，与 |SignedAmount| 成比例
	Leverage     int     `json:"leverage"`
}

// Margin 当前持仓占用的保证金
func (p PositionState) Margin() float64 {
	leverage := p.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	return p.CostBasis / float64(leverage)
}

// IsFlat 是否已无持仓
func (p PositionState) IsFlat() bool {
	return IsZero(p.SignedAmount)
}

// Result 计算结果
type Result struct {
	RealizedPnl float64                  `json:"realized_pnl"`
	TotalFees   float64                  `json:"total_fees"`
	TradesCount int                      `json:"trades_count"`
	Positions   map[string]PositionState `json:"positions"`
	OpenMargin  float64                  `json:"open_margin"` // 计算结束时仍占用的保证金
	MaxMargin   float64                  `json:"max_margin"`  // 整个过程中占用保证金的峰值
}

// PnlPercent 以保证金为分母的收益率
func (r Result) PnlPercent() float64 {
	return PnlPercent(r.RealizedPnl, r.OpenMargin, r.MaxMargin)
}

// IsZero 数量是否可视为 0
func IsZero(v float64) bool {
	return math.Abs(v) < Epsilon
}

// Calculate 将按成交时间升序排列的成交序列转换为已实现盈亏。
// 只有减少 |持仓| 的那部分成交才计入盈亏，开仓部分的盈亏（通常等于 -手续费）不计入。
func Calculate(trades []Trade) Result {
	result := Result{
		Positions: make(map[string]PositionState),
	}

	for _, t := range trades {
		result.TradesCount++
		result.TotalFees += t.Fee

		if t.Amount < Epsilon {
			continue
		}

		pos := result.Positions[t.Symbol]
		direction := 1.0
		if t.Side == exchange.SideSell {
			direction = -1.0
		}

		if pos.IsFlat() || sameSign(pos.SignedAmount, direction) {
			// 开仓或加仓
			pos.SignedAmount += direction * t.Amount
			pos.CostBasis += t.Amount * t.Price
			if t.Leverage > 0 {
				pos.Leverage = t.Leverage
			}
		} else {
			existing := math.Abs(pos.SignedAmount)
			closing := math.Min(t.Amount, existing)

			result.RealizedPnl += t.Pnl * (closing / t.Amount)

			pos.CostBasis -= pos.CostBasis * (closing / existing)
			pos.SignedAmount += direction * closing
			if pos.IsFlat() {
				pos.SignedAmount = 0
				pos.CostBasis = 0
			}

			// 剩余部分反向开仓
			if remainder := t.Amount - closing; remainder >= Epsilon {
				pos.SignedAmount = direction * remainder
				pos.CostBasis = remainder * t.Price
				if t.Leverage > 0 {
					pos.Leverage = t.Leverage
				}
			}
		}

		if pos.CostBasis < 0 {
			pos.CostBasis = 0
		}
		result.Positions[t.Symbol] = pos

		if margin := totalMargin(result.Positions); margin > result.MaxMargin {
			result.MaxMargin = margin
		}
	}

	result.OpenMargin = totalMargin(result.Positions)
	return result
}

// PnlPercent 收益率 = 已实现盈亏 / 分母 × 100。
// 仍有持仓时分母为当前保证金，否则为比赛中占用过的最大保证金；两者都为 0 时返回 0。
func PnlPercent(realizedPnl, openMargin, maxMargin float64) float64 {
	denominator := maxMargin
	if openMargin >= Epsilon {
		denominator = openMargin
	}
	if denominator < Epsilon {
		return 0
	}
	return realizedPnl / denominator * 100
}

// CompareScores 带容差比较两个收益率：a 更高返回 1，b 更高返回 -1，平局返回 0
func CompareScores(a, b float64) int {
	switch {
	case a-b >= Epsilon:
		return 1
	case b-a >= Epsilon:
		return -1
	default:
		return 0
	}
}

// SortTrades 按成交时间升序排序，时间相同时按历史 ID 排序
func SortTrades(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].ExecutedAt.Equal(trades[j].ExecutedAt) {
			return trades[i].ExecutedAt.Before(trades[j].ExecutedAt)
		}
		return HistoryIDLess(trades[i].HistoryID, trades[j].HistoryID)
	})
}

// HistoryIDLess 比较成交历史 ID。交易所的 ID 是递增整数，先比长度再比字面值，"9" 排在 "10" 之前
func HistoryIDLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func sameSign(amount, direction float64) bool {
	return (amount > 0 && direction > 0) || (amount < 0 && direction < 0)
}

func totalMargin(positions map[string]PositionState) float64 {
	total := 0.0
	for _, p := range positions {
		if p.IsFlat() {
			continue
		}
		total += p.Margin()
	}
	return total
}
