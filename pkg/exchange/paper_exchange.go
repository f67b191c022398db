package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var _ Exchange = (*PaperExchange)(nil)

// PaperExchange 模拟交易所，成交与持仓全部保存在内存中
// 用于本地演示和测试，成交由 Execute/AddFill 写入
type PaperExchange struct {
	logger *zap.Logger

	fills     map[string][]*Fill              // userID -> fills
	positions map[string]map[string]*Position // userID -> symbol -> position
	triggers  map[string]Trigger              // orderID -> trigger
	errs      map[string]error                // userID -> 下一次查询返回的错误
	calls     map[string]int                  // userID -> 成交历史查询次数
	orderID   int64                           // 订单ID计数器
	historyID int64                           // 成交ID计数器
	mu        sync.RWMutex
}

// NewPaperExchange 创建模拟交易所
func NewPaperExchange(logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		logger:    logger,
		fills:     make(map[string][]*Fill),
		positions: make(map[string]map[string]*Position),
		triggers:  make(map[string]Trigger),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		orderID:   1000000, // 从1000000开始的模拟订单ID
		historyID: 5000000,
	}
}

// PaperOrder 模拟成交请求
type PaperOrder struct {
	Symbol   string
	Side     Side
	Amount   float64
	Price    float64
	Fee      float64
	Leverage int
	OrderID  string  // 为空时自动生成
	Trigger  Trigger // 止盈止损触发时填写
	At       time.Time
}

// Execute 模拟一笔成交，按持仓计算开平仓原因和已实现盈亏
func (p *PaperExchange) Execute(userID string, order PaperOrder) *Fill {
	p.mu.Lock()
	defer p.mu.Unlock()

	if order.OrderID == "" {
		p.orderID++
		order.OrderID = strconv.FormatInt(p.orderID, 10)
	}
	if order.At.IsZero() {
		order.At = time.Now().UTC()
	}
	leverage := order.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	userPositions, ok := p.positions[userID]
	if !ok {
		userPositions = make(map[string]*Position)
		p.positions[userID] = userPositions
	}

	positionSide := PositionSideLong
	if order.Side == SideSell {
		positionSide = PositionSideShort
	}

	var (
		cause Cause
		pnl   float64
	)

	pos, exists := userPositions[order.Symbol]
	if exists && pos.Side != positionSide {
		// 平仓操作，超出部分不反向开仓
		quantity := order.Amount
		if quantity > pos.PositionAmount {
			quantity = pos.PositionAmount
		}
		if pos.Side == PositionSideLong {
			pnl = (order.Price - pos.EntryPrice) * quantity
			cause = CauseCloseLong
		} else {
			pnl = (pos.EntryPrice - order.Price) * quantity
			cause = CauseCloseShort
		}
		order.Amount = quantity

		pos.PositionAmount -= quantity
		if pos.PositionAmount <= 0 {
			delete(userPositions, order.Symbol)
		}
	} else {
		if positionSide == PositionSideLong {
			cause = CauseOpenLong
		} else {
			cause = CauseOpenShort
		}
		pnl = -order.Fee

		if exists {
			// 增加持仓（加权平均成本）
			totalCost := pos.EntryPrice*pos.PositionAmount + order.Price*order.Amount
			totalAmount := pos.PositionAmount + order.Amount
			pos.EntryPrice = totalCost / totalAmount
			pos.PositionAmount = totalAmount
			pos.MarkPrice = order.Price
		} else {
			userPositions[order.Symbol] = &Position{
				Symbol:         order.Symbol,
				Side:           positionSide,
				PositionAmount: order.Amount,
				EntryPrice:     order.Price,
				MarkPrice:      order.Price,
				Leverage:       leverage,
			}
		}
	}

	fill := &Fill{
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Amount:     order.Amount,
		Price:      order.Price,
		Fee:        order.Fee,
		Pnl:        pnl,
		Cause:      cause,
		Trigger:    order.Trigger,
		ExecutedAt: order.At.UTC(),
	}
	p.appendFill(userID, fill)

	p.logger.Debug("paper exchange: order executed",
		zap.String("user_id", userID),
		zap.String("symbol", fill.Symbol),
		zap.String("cause", fill.Cause.String()),
		zap.Float64("amount", fill.Amount),
		zap.Float64("price", fill.Price),
		zap.Float64("pnl", fill.Pnl),
		zap.String("order_id", fill.OrderID))

	return fill
}

// AddFill 直接写入一笔成交，不影响模拟持仓
func (p *PaperExchange) AddFill(userID string, fill Fill) *Fill {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := fill
	if f.ExecutedAt.IsZero() {
		f.ExecutedAt = time.Now().UTC()
	}
	p.appendFill(userID, &f)
	return &f
}

func (p *PaperExchange) appendFill(userID string, fill *Fill) {
	if fill.HistoryID == "" {
		p.historyID++
		fill.HistoryID = strconv.FormatInt(p.historyID, 10)
	}
	if fill.Trigger != TriggerUnknown && fill.OrderID != "" {
		p.triggers[fill.OrderID] = fill.Trigger
	}
	p.fills[userID] = append(p.fills[userID], fill)
}

// FailNext 让该用户的下一次成交历史查询返回错误
func (p *PaperExchange) FailNext(userID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[userID] = err
}

// TradeHistoryCalls 该用户成交历史被查询的次数
func (p *PaperExchange) TradeHistoryCalls(userID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[userID]
}

// GetTradeHistory 按查询条件返回模拟成交
func (p *PaperExchange) GetTradeHistory(ctx context.Context, account Account, query TradeHistoryQuery) ([]*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[account.UserID]++
	if err, ok := p.errs[account.UserID]; ok {
		delete(p.errs, account.UserID)
		return nil, err
	}

	symbols := make(map[string]struct{}, len(query.Symbols))
	for _, s := range query.Symbols {
		symbols[s] = struct{}{}
	}

	// 按交易对分组并按成交时间排序，翻页方式与真实交易所一致
	bySymbol := make(map[string][]*Fill)
	for _, f := range p.fills[account.UserID] {
		if len(symbols) > 0 {
			if _, ok := symbols[f.Symbol]; !ok {
				continue
			}
		}
		if !query.EndTime.IsZero() && f.ExecutedAt.After(query.EndTime) {
			continue
		}
		bySymbol[f.Symbol] = append(bySymbol[f.Symbol], f)
	}

	result := make([]*Fill, 0)
	for _, fills := range bySymbol {
		sort.SliceStable(fills, func(i, j int) bool {
			return fills[i].ExecutedAt.Before(fills[j].ExecutedAt)
		})

		symbolFills, err := pageTrades(ctx, query.StartTime, query.Limit, func(ctx context.Context, start time.Time) (tradePage, error) {
			page := tradePage{}
			for _, f := range fills {
				if f.ExecutedAt.Before(start) {
					continue
				}
				if query.Limit > 0 && page.size >= query.Limit {
					break
				}
				// 返回副本，调用方修改不影响内部状态
				fill := *f
				fill.Trigger = TriggerUnknown
				page.fills = append(page.fills, &fill)
				page.size++
				page.last = fill.ExecutedAt
			}
			return page, nil
		})
		if err != nil {
			return nil, err
		}
		result = append(result, symbolFills...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ExecutedAt.Before(result[j].ExecutedAt)
	})
	return result, nil
}

// GetPositions 获取模拟持仓
func (p *PaperExchange) GetPositions(ctx context.Context, account Account) ([]*Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Position, 0, len(p.positions[account.UserID]))
	for _, pos := range p.positions[account.UserID] {
		position := *pos
		result = append(result, &position)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result, nil
}

// GetOrderTrigger 获取模拟订单的触发类型
func (p *PaperExchange) GetOrderTrigger(ctx context.Context, account Account, symbol string, orderID string) (Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if trigger, ok := p.triggers[orderID]; ok {
		return trigger, nil
	}
	for _, f := range p.fills[account.UserID] {
		if f.OrderID == orderID && f.Symbol == symbol {
			return TriggerManual, nil
		}
	}
	return TriggerUnknown, fmt.Errorf("order %s not found", orderID)
}
