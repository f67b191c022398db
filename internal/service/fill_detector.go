package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/metrics"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/repo"
	"github.com/dushixiang/tfc/pkg/exchange"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// FillDetector 轮询交易所成交历史，把平台下单的异步成交转换为对战成交记录
type FillDetector struct {
	logger *zap.Logger
	conf   config.ArenaConf

	exchange        exchange.Exchange
	accounts        AccountResolver
	recorder        TradeRecorder
	actionRepo      *repo.PendingOrderActionRepo
	tradeRepo       *repo.FightTradeRepo
	participantRepo *repo.FightParticipantRepo

	dedup *FillDedup
	now   func() time.Time
}

// NewFillDetector 创建成交检测器
func NewFillDetector(
	db *gorm.DB,
	conf *config.Config,
	ex exchange.Exchange,
	accounts AccountResolver,
	recorder TradeRecorder,
	dedup *FillDedup,
	logger *zap.Logger,
) *FillDetector {
	if dedup == nil {
		dedup = NewFillDedup()
	}
	return &FillDetector{
		logger:          logger,
		conf:            conf.Arena,
		exchange:        ex,
		accounts:        accounts,
		recorder:        recorder,
		actionRepo:      repo.NewPendingOrderActionRepo(db),
		tradeRepo:       repo.NewFightTradeRepo(db),
		participantRepo: repo.NewFightParticipantRepo(db),
		dedup:           dedup,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// fillGroup 同一用户在同一场对战中的待成交动作
type fillGroup struct {
	fight     models.Fight
	userID    string
	actions   []models.PendingOrderAction
	triggered []models.PendingOrderAction // 已触发的止盈止损，继续接收触发订单的后续成交
}

// CheckForFilledOrders 检测进行中对战的待成交订单。
// 每个 (用户, 对战) 组每次最多查询一次成交历史，组之间互不影响，失败的组下个周期重试
func (d *FillDetector) CheckForFilledOrders(ctx context.Context, fights []models.Fight) error {
	if len(fights) == 0 {
		return nil
	}

	fightByID := make(map[string]models.Fight, len(fights))
	fightIDs := make([]string, 0, len(fights))
	for _, f := range fights {
		if f.StartedAt == nil {
			continue
		}
		fightByID[f.ID] = f
		fightIDs = append(fightIDs, f.ID)
	}

	actions, err := d.actionRepo.FindPendingForFights(ctx, fightIDs)
	if err != nil {
		return fmt.Errorf("failed to load pending actions: %w", err)
	}
	triggered, err := d.actionRepo.FindTriggeredForFights(ctx, fightIDs)
	if err != nil {
		return fmt.Errorf("failed to load triggered actions: %w", err)
	}
	if len(actions) == 0 && len(triggered) == 0 {
		return nil
	}

	groups := make(map[string]*fillGroup)
	groupOf := func(a models.PendingOrderAction) *fillGroup {
		fight, ok := fightByID[a.FightID]
		if !ok {
			return nil
		}
		key := GroupKey(a.UserID, a.FightID)
		g, ok := groups[key]
		if !ok {
			g = &fillGroup{fight: fight, userID: a.UserID}
			groups[key] = g
		}
		return g
	}
	for _, a := range actions {
		if g := groupOf(a); g != nil {
			g.actions = append(g.actions, a)
		}
	}
	for _, a := range triggered {
		if g := groupOf(a); g != nil {
			g.triggered = append(g.triggered, a)
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		errs   error
		errsMu sync.Mutex
		eg     errgroup.Group
	)
	eg.SetLimit(d.conf.GetConcurrency())

	for _, key := range keys {
		g := groups[key]
		eg.Go(func() error {
			if err := d.processGroup(ctx, g); err != nil {
				metrics.DetectionErrors.Inc()
				d.logger.Warn("fill detection failed, retry next tick",
					zap.String("fight_id", g.fight.ID),
					zap.String("user_id", g.userID),
					zap.Error(err))

				errsMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("group %s: %w", GroupKey(g.userID, g.fight.ID), err))
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	return errs
}

// processGroup 处理单个 (用户, 对战) 组
func (d *FillDetector) processGroup(ctx context.Context, g *fillGroup) error {
	if !d.dedup.TryAcquire(g.userID, g.fight.ID) {
		metrics.FillsSkipped.WithLabelValues("in_flight").Inc()
		d.logger.Debug("group still in flight, skip",
			zap.String("fight_id", g.fight.ID),
			zap.String("user_id", g.userID))
		return nil
	}
	defer d.dedup.Release(g.userID, g.fight.ID)

	account, err := d.accounts.Resolve(ctx, g.userID)
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}

	byOrderID := make(map[string]*models.PendingOrderAction)
	tpslBySymbol := make(map[string]*models.PendingOrderAction)
	symbolSet := make(map[string]struct{})
	for i := range g.actions {
		a := &g.actions[i]
		symbolSet[a.Symbol] = struct{}{}
		if a.IsTPSL() {
			if _, ok := tpslBySymbol[a.Symbol]; !ok {
				tpslBySymbol[a.Symbol] = a
			}
			continue
		}
		byOrderID[a.ExchangeOrderID] = a
	}
	for i := range g.triggered {
		a := &g.triggered[i]
		symbolSet[a.Symbol] = struct{}{}
		if _, ok := byOrderID[a.TriggeredOrderID]; !ok {
			byOrderID[a.TriggeredOrderID] = a
		}
	}
	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	// 从上次停下的位置继续查询，起点本身包含在内，已处理的成交由第一层去重跳过
	start := *g.fight.StartedAt
	if cursor, ok := d.dedup.Cursor(g.userID, g.fight.ID); ok && cursor.After(start) {
		start = cursor
	}

	fills, err := d.exchange.GetTradeHistory(ctx, account, exchange.TradeHistoryQuery{
		Symbols:   symbols,
		StartTime: start,
		Limit:     d.conf.GetHistoryLimit(),
	})
	if err != nil {
		return fmt.Errorf("fetch trade history: %w", err)
	}

	var errs error
	for _, fill := range fills {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := d.processFill(ctx, g, account, fill, byOrderID, tpslBySymbol); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("history %s: %w", fill.HistoryID, err))
		}
	}

	if cursor, ok := d.nextCursor(g.fight.ID, fills); ok {
		d.dedup.AdvanceCursor(g.userID, g.fight.ID, cursor)
	}
	return errs
}

// nextCursor 下次查询的起点：第一笔尚未处理完的成交时间，全部处理完时为最后一笔的时间
func (d *FillDetector) nextCursor(fightID string, fills []*exchange.Fill) (time.Time, bool) {
	if len(fills) == 0 {
		return time.Time{}, false
	}
	for _, fill := range fills {
		if !d.dedup.Seen(fightID, fill.HistoryID) {
			return fill.ExecutedAt, true
		}
	}
	return fills[len(fills)-1].ExecutedAt, true
}

// processFill 处理单笔成交，只有成功转发后才标记为已处理
func (d *FillDetector) processFill(
	ctx context.Context,
	g *fillGroup,
	account exchange.Account,
	fill *exchange.Fill,
	byOrderID map[string]*models.PendingOrderAction,
	tpslBySymbol map[string]*models.PendingOrderAction,
) error {
	fightID := g.fight.ID

	// 第一层：进程内已处理集合
	if d.dedup.Seen(fightID, fill.HistoryID) {
		metrics.FillsSkipped.WithLabelValues("processed").Inc()
		return nil
	}

	action, match, err := d.match(ctx, account, fill, byOrderID, tpslBySymbol)
	if err != nil {
		return err
	}
	if action == nil {
		return d.handleUnmatched(ctx, g, fill)
	}

	// 第二层：数据库中是否已有记录
	exists, err := d.tradeRepo.ExistsByHistoryID(ctx, fightID, fill.HistoryID)
	if err != nil {
		return fmt.Errorf("check existing trade: %w", err)
	}
	if exists {
		d.dedup.MarkProcessed(fightID, fill.HistoryID)
		metrics.FillsSkipped.WithLabelValues("persisted").Inc()
		return nil
	}

	side, ok := fill.Side()
	if !ok {
		d.logger.Warn("unknown fill cause, skip",
			zap.String("fight_id", fightID),
			zap.String("history_id", fill.HistoryID),
			zap.String("cause", fill.Cause.String()))
		d.dedup.MarkProcessed(fightID, fill.HistoryID)
		metrics.FillsSkipped.WithLabelValues("malformed").Inc()
		return nil
	}

	// 第三层由记录器的唯一约束保证
	err = d.recorder.RecordFill(ctx, RecordedFill{
		FightID:    fightID,
		UserID:     g.userID,
		ActionID:   action.ID,
		Symbol:     fill.Symbol,
		Side:       side,
		Amount:     fill.Amount,
		Price:      fill.Price,
		Fee:        fill.Fee,
		Pnl:        fill.Pnl,
		Leverage:   action.Leverage,
		OrderID:    fill.OrderID,
		HistoryID:  fill.HistoryID,
		ExecutedAt: fill.ExecutedAt,
	})
	if err != nil {
		return fmt.Errorf("record fill: %w", err)
	}

	d.dedup.MarkProcessed(fightID, fill.HistoryID)
	metrics.FillsRecorded.WithLabelValues(match).Inc()

	d.logger.Info("fill recorded",
		zap.String("fight_id", fightID),
		zap.String("user_id", g.userID),
		zap.String("symbol", fill.Symbol),
		zap.String("side", side.String()),
		zap.Float64("amount", fill.Amount),
		zap.Float64("price", fill.Price),
		zap.String("order_id", fill.OrderID),
		zap.String("history_id", fill.HistoryID),
		zap.String("match", match))
	return nil
}

// match 先按订单ID匹配，再把止盈止损触发的成交按交易对匹配到 SET_TPSL 动作
func (d *FillDetector) match(
	ctx context.Context,
	account exchange.Account,
	fill *exchange.Fill,
	byOrderID map[string]*models.PendingOrderAction,
	tpslBySymbol map[string]*models.PendingOrderAction,
) (*models.PendingOrderAction, string, error) {
	if action, ok := byOrderID[fill.OrderID]; ok {
		return action, "order_id", nil
	}

	tpsl, ok := tpslBySymbol[fill.Symbol]
	if !ok {
		return nil, "", nil
	}

	trigger := fill.Trigger
	if trigger == exchange.TriggerUnknown {
		// 成交历史不带触发类型时查询订单
		resolved, err := d.exchange.GetOrderTrigger(ctx, account, fill.Symbol, fill.OrderID)
		if err != nil {
			return nil, "", fmt.Errorf("resolve order trigger: %w", err)
		}
		trigger = resolved
	}

	if trigger.IsTakeProfitOrStopLoss() {
		return tpsl, "tpsl", nil
	}
	return nil, "", nil
}

// handleUnmatched 非平台下单的成交不计分；超过宽限期仍未被记录的标记为外部成交
func (d *FillDetector) handleUnmatched(ctx context.Context, g *fillGroup, fill *exchange.Fill) error {
	if d.now().Sub(fill.ExecutedAt) < d.conf.ExternalTradeGrace() {
		return nil
	}

	exists, err := d.tradeRepo.ExistsByHistoryID(ctx, g.fight.ID, fill.HistoryID)
	if err != nil {
		return fmt.Errorf("check existing trade: %w", err)
	}
	if !exists {
		if err := d.participantRepo.MarkExternalTrades(ctx, g.fight.ID, g.userID); err != nil {
			return fmt.Errorf("mark external trades: %w", err)
		}
		metrics.FillsSkipped.WithLabelValues("external").Inc()
		d.logger.Warn("external trade detected",
			zap.String("fight_id", g.fight.ID),
			zap.String("user_id", g.userID),
			zap.String("symbol", fill.Symbol),
			zap.String("order_id", fill.OrderID),
			zap.String("history_id", fill.HistoryID))
	}

	d.dedup.MarkProcessed(g.fight.ID, fill.HistoryID)
	return nil
}

// ClearFight 清理对战的去重状态
func (d *FillDetector) ClearFight(fightID string) {
	d.dedup.ClearFight(fightID)
}
