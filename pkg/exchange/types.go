package exchange

import "time"

// 通用交易类型定义，独立于任何特定交易所

// Side 成交方向，只有买、卖两种取值
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Cause 交易所回报的成交原因
type Cause string

const (
	CauseOpenLong   Cause = "open_long"
	CauseOpenShort  Cause = "open_short"
	CauseCloseLong  Cause = "close_long"
	CauseCloseShort Cause = "close_short"
)

// causeSides 成交原因到方向的唯一映射表
var causeSides = map[Cause]Side{
	CauseOpenLong:   SideBuy,
	CauseCloseShort: SideBuy,
	CauseOpenShort:  SideSell,
	CauseCloseLong:  SideSell,
}

// Side 根据成交原因推导方向
func (c Cause) Side() (Side, bool) {
	side, ok := causeSides[c]
	return side, ok
}

// Trigger 订单触发类型
type Trigger string

const (
	TriggerUnknown     Trigger = ""
	TriggerManual      Trigger = "manual"
	TriggerTakeProfit  Trigger = "take_profit"
	TriggerStopLoss    Trigger = "stop_loss"
	TriggerLiquidation Trigger = "liquidation"
)

// IsTakeProfitOrStopLoss 是否为止盈止损自动触发
func (t Trigger) IsTakeProfitOrStopLoss() bool {
	return t == TriggerTakeProfit || t == TriggerStopLoss
}

// PositionSide 持仓方向
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Account 用户的交易所账户
type Account struct {
	UserID  string
	APIKey  string
	Secret  string
	Testnet bool
}

// TradeHistoryQuery 成交历史查询条件
type TradeHistoryQuery struct {
	Symbols   []string  // 需要查询的交易对，部分交易所要求必填
	StartTime time.Time // 起始时间（含）
	EndTime   time.Time // 结束时间，零值表示不限
	Limit     int       // 每页条数，实现方需翻页直到取完
}

// Fill 归一化后的成交记录
type Fill struct {
	HistoryID  string    `json:"history_id"` // 交易所成交历史 ID
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	Pnl        float64   `json:"pnl"` // 交易所回报的已实现盈亏，开仓成交时通常为 0 或 -手续费
	Cause      Cause     `json:"cause"`
	Trigger    Trigger   `json:"trigger"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Side 成交方向，原因无法识别时返回 false
func (f *Fill) Side() (Side, bool) {
	return f.Cause.Side()
}

// Position 持仓信息
type Position struct {
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	PositionAmount   float64      `json:"position_amount"` // 持仓数量
	EntryPrice       float64      `json:"entry_price"`     // 开仓均价
	MarkPrice        float64      `json:"mark_price"`      // 标记价格
	UnrealizedProfit float64      `json:"unrealized_profit"`
	Leverage         int          `json:"leverage"`
	LiquidationPrice float64      `json:"liquidation_price"`
}

func (s Side) String() string {
	return string(s)
}

func (c Cause) String() string {
	return string(c)
}

func (t Trigger) String() string {
	return string(t)
}

func (s PositionSide) String() string {
	return string(s)
}
