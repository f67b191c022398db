package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/repo"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/dushixiang/tfc/pkg/pnl"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordedFill 成交检测产出的归一化成交
type RecordedFill struct {
	FightID    string
	UserID     string
	ActionID   string // 匹配到的平台下单动作
	Symbol     string
	Side       exchange.Side
	Amount     float64
	Price      float64
	Fee        float64
	Pnl        float64 // 交易所回报的原始盈亏
	Leverage   int
	OrderID    string
	HistoryID  string
	ExecutedAt time.Time
}

// TradeRecorder 成交记录器，重复记录同一成交必须视为成功
type TradeRecorder interface {
	RecordFill(ctx context.Context, fill RecordedFill) error
}

var _ TradeRecorder = (*TradeRecordService)(nil)

// TradeRecordService 写入对战成交并更新下单动作的成交进度
type TradeRecordService struct {
	logger *zap.Logger

	*orz.Service
	tradeRepo  *repo.FightTradeRepo
	actionRepo *repo.PendingOrderActionRepo
}

// NewTradeRecordService 创建成交记录服务
func NewTradeRecordService(db *gorm.DB, logger *zap.Logger) *TradeRecordService {
	return &TradeRecordService{
		logger:     logger,
		Service:    orz.NewService(db),
		tradeRepo:  repo.NewFightTradeRepo(db),
		actionRepo: repo.NewPendingOrderActionRepo(db),
	}
}

// RecordFill 记录一笔成交，(fight_id, history_id) 唯一约束兜底去重
func (s *TradeRecordService) RecordFill(ctx context.Context, fill RecordedFill) error {
	if fill.FightID == "" || fill.HistoryID == "" {
		return fmt.Errorf("fill missing fight id or history id")
	}

	return s.Transaction(ctx, func(ctx context.Context) error {
		trade := &models.FightTrade{
			ID:                ulid.Make().String(),
			FightID:           fill.FightID,
			ParticipantUserID: fill.UserID,
			Symbol:            fill.Symbol,
			Side:              fill.Side.String(),
			Amount:            fill.Amount,
			Price:             fill.Price,
			Fee:               fill.Fee,
			Pnl:               fill.Pnl,
			Leverage:          fill.Leverage,
			ExchangeOrderID:   fill.OrderID,
			HistoryID:         fill.HistoryID,
			ExecutedAt:        fill.ExecutedAt.UTC(),
		}

		inserted, err := s.tradeRepo.InsertIgnoreDuplicate(ctx, trade)
		if err != nil {
			return fmt.Errorf("failed to insert fight trade: %w", err)
		}
		if !inserted {
			s.logger.Debug("fill already recorded",
				zap.String("fight_id", fill.FightID),
				zap.String("history_id", fill.HistoryID))
			return nil
		}

		if fill.ActionID == "" {
			return nil
		}
		return s.advanceAction(ctx, fill)
	})
}

// advanceAction 累加动作成交数量。止盈止损首次成交即视为完成，并记住触发订单以便归属后续分批成交
func (s *TradeRecordService) advanceAction(ctx context.Context, fill RecordedFill) error {
	action, err := s.actionRepo.FindById(ctx, fill.ActionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("matched action not found", zap.String("action_id", fill.ActionID))
			return nil
		}
		return fmt.Errorf("failed to find action: %w", err)
	}

	pending := action.Status == models.ActionStatusPending
	completed := pending && (action.IsTPSL() || action.FilledAmount+fill.Amount >= action.Amount-pnl.Epsilon)

	triggeredOrderID := ""
	if action.IsTPSL() && action.TriggeredOrderID == "" {
		triggeredOrderID = fill.OrderID
	}

	if err := s.actionRepo.AddFilled(ctx, action.ID, fill.Amount, completed, triggeredOrderID, fill.ExecutedAt.UTC()); err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}

	if completed {
		s.logger.Info("order action filled",
			zap.String("fight_id", fill.FightID),
			zap.String("user_id", fill.UserID),
			zap.String("action_id", action.ID),
			zap.String("action_type", string(action.ActionType)),
			zap.String("order_id", fill.OrderID))
	}
	return nil
}
