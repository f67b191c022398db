package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var _ Exchange = (*BinanceClient)(nil)

// BinanceClient Binance期货API客户端，按账户缓存底层客户端
type BinanceClient struct {
	proxyURL string
	testnet  bool   // 全局测试网开关，账户自身的 Testnet 标记同样生效
	baseURL  string // 非空时覆盖接口地址
	logger   *zap.Logger

	clients     map[string]*futures.Client
	clientsLock sync.RWMutex
}

// NewBinanceClient 创建Binance客户端
func NewBinanceClient(proxyURL string, testnet bool, logger *zap.Logger) *BinanceClient {
	return &BinanceClient{
		proxyURL: proxyURL,
		testnet:  testnet,
		logger:   logger,
		clients:  make(map[string]*futures.Client),
	}
}

// endpointFor 账户对应的接口地址
func (b *BinanceClient) endpointFor(account Account) string {
	switch {
	case b.baseURL != "":
		return b.baseURL
	case b.testnet || account.Testnet:
		return futures.BaseApiTestnetUrl
	default:
		return futures.BaseApiMainUrl
	}
}

// clientFor 获取账户对应的客户端，同一 API Key 在主网和测试网分别缓存
func (b *BinanceClient) clientFor(account Account) *futures.Client {
	endpoint := b.endpointFor(account)
	key := endpoint + "|" + account.APIKey

	b.clientsLock.RLock()
	client, ok := b.clients[key]
	b.clientsLock.RUnlock()
	if ok {
		return client
	}

	if b.proxyURL != "" {
		client = futures.NewProxiedClient(account.APIKey, account.Secret, b.proxyURL)
	} else {
		client = futures.NewClient(account.APIKey, account.Secret)
	}
	client.SetApiEndpoint(endpoint)

	b.clientsLock.Lock()
	b.clients[key] = client
	b.clientsLock.Unlock()
	return client
}

// GetTradeHistory 获取成交历史
// Binance 的 userTrades 接口要求指定交易对，且只带 startTime 时返回最早的 limit 条，
// 这里逐个交易对翻页查询后合并排序
func (b *BinanceClient) GetTradeHistory(ctx context.Context, account Account, query TradeHistoryQuery) ([]*Fill, error) {
	client := b.clientFor(account)

	fills := make([]*Fill, 0)
	for _, symbol := range query.Symbols {
		symbolFills, err := pageTrades(ctx, query.StartTime, query.Limit, func(ctx context.Context, start time.Time) (tradePage, error) {
			service := client.NewListAccountTradeService().
				Symbol(symbol).
				StartTime(start.UnixMilli())
			if !query.EndTime.IsZero() {
				service.EndTime(query.EndTime.UnixMilli())
			}
			if query.Limit > 0 {
				service.Limit(query.Limit)
			}

			trades, err := service.Do(ctx)
			if err != nil {
				return tradePage{}, fmt.Errorf("failed to get trade history for %s: %w", symbol, err)
			}
			return b.toPage(account, symbol, trades), nil
		})
		if err != nil {
			return nil, err
		}
		fills = append(fills, symbolFills...)
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].ExecutedAt.Before(fills[j].ExecutedAt)
	})
	return fills, nil
}

// toPage 转换一页成交，无法解析的成交跳过但仍计入页大小
func (b *BinanceClient) toPage(account Account, symbol string, trades []*futures.AccountTrade) tradePage {
	page := tradePage{size: len(trades)}
	for _, t := range trades {
		if t != nil {
			if at := time.UnixMilli(t.Time).UTC(); at.After(page.last) {
				page.last = at
			}
		}

		fill, err := toFill(t)
		if err != nil {
			id := int64(0)
			if t != nil {
				id = t.ID
			}
			b.logger.Warn("skip malformed trade",
				zap.String("user_id", account.UserID),
				zap.String("symbol", symbol),
				zap.Int64("trade_id", id),
				zap.Error(err))
			continue
		}
		page.fills = append(page.fills, fill)
	}
	return page
}

// toFill 把 Binance 成交转换为统一的成交记录
func toFill(t *futures.AccountTrade) (*Fill, error) {
	if t == nil || t.ID == 0 {
		return nil, fmt.Errorf("missing trade id")
	}

	amount, err := cast.ToFloat64E(t.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", t.Quantity, err)
	}
	price, err := cast.ToFloat64E(t.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", t.Price, err)
	}
	fee, err := cast.ToFloat64E(t.Commission)
	if err != nil {
		return nil, fmt.Errorf("invalid commission %q: %w", t.Commission, err)
	}
	pnl, err := cast.ToFloat64E(t.RealizedPnl)
	if err != nil {
		return nil, fmt.Errorf("invalid realized pnl %q: %w", t.RealizedPnl, err)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("non-positive quantity %q", t.Quantity)
	}

	return &Fill{
		HistoryID:  strconv.FormatInt(t.ID, 10),
		OrderID:    strconv.FormatInt(t.OrderID, 10),
		Symbol:     t.Symbol,
		Amount:     amount,
		Price:      price,
		Fee:        fee,
		Pnl:        pnl,
		Cause:      causeOf(t.Side, t.PositionSide, pnl),
		Trigger:    TriggerUnknown,
		ExecutedAt: time.UnixMilli(t.Time).UTC(),
	}, nil
}

// causeOf 推导成交原因
// 双向持仓模式下由方向和持仓方向直接决定；单向持仓模式（BOTH）只能依据是否产生已实现盈亏判断
func causeOf(side futures.SideType, positionSide futures.PositionSideType, realizedPnl float64) Cause {
	switch positionSide {
	case futures.PositionSideTypeLong:
		if side == futures.SideTypeBuy {
			return CauseOpenLong
		}
		return CauseCloseLong
	case futures.PositionSideTypeShort:
		if side == futures.SideTypeSell {
			return CauseOpenShort
		}
		return CauseCloseShort
	default:
		if side == futures.SideTypeBuy {
			if realizedPnl != 0 {
				return CauseCloseShort
			}
			return CauseOpenLong
		}
		if realizedPnl != 0 {
			return CauseCloseLong
		}
		return CauseOpenShort
	}
}

// GetPositions 获取当前持仓
func (b *BinanceClient) GetPositions(ctx context.Context, account Account) ([]*Position, error) {
	positions, err := b.clientFor(account).NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	result := make([]*Position, 0)
	for _, p := range positions {
		positionAmt := cast.ToFloat64(p.PositionAmt)

		// 过滤掉空仓位
		if positionAmt == 0 {
			continue
		}

		side := PositionSideLong
		if positionAmt < 0 {
			side = PositionSideShort
			positionAmt = -positionAmt
		}

		result = append(result, &Position{
			Symbol:           p.Symbol,
			Side:             side,
			PositionAmount:   positionAmt,
			EntryPrice:       cast.ToFloat64(p.EntryPrice),
			MarkPrice:        cast.ToFloat64(p.MarkPrice),
			UnrealizedProfit: cast.ToFloat64(p.UnRealizedProfit),
			Leverage:         cast.ToInt(p.Leverage),
			LiquidationPrice: cast.ToFloat64(p.LiquidationPrice),
		})
	}

	return result, nil
}

// GetOrderTrigger 根据订单类型判断触发方式
func (b *BinanceClient) GetOrderTrigger(ctx context.Context, account Account, symbol string, orderID string) (Trigger, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return TriggerUnknown, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	order, err := b.clientFor(account).NewGetOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return TriggerUnknown, fmt.Errorf("failed to get order: %w", err)
	}

	return triggerOf(order.Type), nil
}

func triggerOf(orderType futures.OrderType) Trigger {
	switch orderType {
	case futures.OrderTypeTakeProfit, futures.OrderTypeTakeProfitMarket:
		return TriggerTakeProfit
	case futures.OrderTypeStop, futures.OrderTypeStopMarket, futures.OrderTypeTrailingStopMarket:
		return TriggerStopLoss
	default:
		return TriggerManual
	}
}
