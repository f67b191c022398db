package exchange

import "context"

// Exchange 交易所接口，对战评分只依赖成交历史和持仓查询。
// 下单由外部直接转发给交易所，不在此处实现。
type Exchange interface {
	// GetTradeHistory 查询账户在时间窗口内的全部成交，按成交时间升序返回
	GetTradeHistory(ctx context.Context, account Account, query TradeHistoryQuery) ([]*Fill, error)

	// GetPositions 查询账户当前持仓（仅用于开赛前的审计快照）
	GetPositions(ctx context.Context, account Account) ([]*Position, error)

	// GetOrderTrigger 查询订单的触发类型，用于识别止盈止损自动成交
	GetOrderTrigger(ctx context.Context, account Account, symbol string, orderID string) (Trigger, error)
}
