package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/repo"
	"github.com/dushixiang/tfc/internal/xe"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FightService 对战创建、加入、取消与裁决
type FightService struct {
	logger *zap.Logger
	conf   config.ArenaConf

	*orz.Service
	fightRepo       *repo.FightRepo
	participantRepo *repo.FightParticipantRepo
	actionRepo      *repo.PendingOrderActionRepo

	accounts AccountResolver
	exchange exchange.Exchange
	engine   *FightEngine
	now      func() time.Time
}

// NewFightService 创建对战服务
func NewFightService(
	db *gorm.DB,
	conf *config.Config,
	accounts AccountResolver,
	ex exchange.Exchange,
	engine *FightEngine,
	logger *zap.Logger,
) *FightService {
	return &FightService{
		logger:          logger,
		conf:            conf.Arena,
		Service:         orz.NewService(db),
		fightRepo:       repo.NewFightRepo(db),
		participantRepo: repo.NewFightParticipantRepo(db),
		actionRepo:      repo.NewPendingOrderActionRepo(db),
		accounts:        accounts,
		exchange:        ex,
		engine:          engine,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CreateFightRequest 创建对战请求
type CreateFightRequest struct {
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=1,max=1440"`
	StakeAmount     float64 `json:"stake_amount" validate:"gte=0"`
}

// CreateFight 创建对战，创建者占 A 席位。开赛前持仓快照仅用于审计
func (s *FightService) CreateFight(ctx context.Context, creatorID string, req CreateFightRequest) (*models.Fight, error) {
	account, err := s.accounts.Resolve(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	snapshot := s.snapshotPositions(ctx, account)

	fight := &models.Fight{
		ID:              ulid.Make().String(),
		Status:          models.FightStatusWaiting,
		DurationMinutes: req.DurationMinutes,
		StakeAmount:     req.StakeAmount,
		CreatorID:       creatorID,
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.fightRepo.Create(ctx, fight); err != nil {
			return err
		}
		return s.participantRepo.Create(ctx, &models.FightParticipant{
			ID:               ulid.Make().String(),
			FightID:          fight.ID,
			UserID:           creatorID,
			Slot:             models.SlotA,
			PositionSnapshot: snapshot,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fight: %w", err)
	}

	s.logger.Info("fight created",
		zap.String("fight_id", fight.ID),
		zap.String("creator_id", creatorID),
		zap.Int("duration_minutes", fight.DurationMinutes),
		zap.Float64("stake_amount", fight.StakeAmount))

	if err := s.engine.BroadcastArenaFightCreated(ctx, fight.ID); err != nil {
		s.logger.Warn("failed to broadcast fight created", zap.String("fight_id", fight.ID), zap.Error(err))
	}
	return fight, nil
}

// JoinFight 挑战者加入，对战进入 LIVE 并设置开始和结束时间
func (s *FightService) JoinFight(ctx context.Context, fightID, userID string) (*models.Fight, error) {
	fight, err := s.findFight(ctx, fightID)
	if err != nil {
		return nil, err
	}
	if fight.Status != models.FightStatusWaiting {
		return nil, xe.ErrFightNotWaiting
	}
	if fight.CreatorID == userID {
		return nil, xe.ErrCannotJoinOwnFight
	}

	account, err := s.accounts.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	snapshot := s.snapshotPositions(ctx, account)

	startedAt := s.now()
	endedAt := startedAt.Add(fight.Duration())

	err = s.Transaction(ctx, func(ctx context.Context) error {
		participants, err := s.participantRepo.FindByFightID(ctx, fight.ID)
		if err != nil {
			return err
		}
		if len(participants) >= 2 {
			return xe.ErrFightFull
		}

		if err := s.participantRepo.Create(ctx, &models.FightParticipant{
			ID:               ulid.Make().String(),
			FightID:          fight.ID,
			UserID:           userID,
			Slot:             models.SlotB,
			PositionSnapshot: snapshot,
		}); err != nil {
			return err
		}

		ok, err := s.fightRepo.TransitionStatus(ctx, fight.ID, models.FightStatusWaiting, map[string]interface{}{
			"status":     models.FightStatusLive,
			"started_at": startedAt,
			"ended_at":   endedAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			return xe.ErrFightNotWaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fight.Status = models.FightStatusLive
	fight.StartedAt = &startedAt
	fight.EndedAt = &endedAt

	s.logger.Info("fight started",
		zap.String("fight_id", fight.ID),
		zap.String("creator_id", fight.CreatorID),
		zap.String("challenger_id", userID),
		zap.Time("ends_at", endedAt))

	if err := s.engine.OnFightStarted(ctx, fight.ID); err != nil {
		s.logger.Warn("failed to notify engine", zap.String("fight_id", fight.ID), zap.Error(err))
	}
	return &fight, nil
}

// CancelFight 创建者取消尚未开始的对战
func (s *FightService) CancelFight(ctx context.Context, fightID, userID string) error {
	fight, err := s.findFight(ctx, fightID)
	if err != nil {
		return err
	}
	if fight.CreatorID != userID {
		return xe.ErrPermissionDenied
	}
	if fight.Status == models.FightStatusLive {
		return xe.ErrFightAlreadyStarted
	}

	ok, err := s.fightRepo.TransitionStatus(ctx, fight.ID, models.FightStatusWaiting, map[string]interface{}{
		"status":   models.FightStatusCancelled,
		"ended_at": s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel fight: %w", err)
	}
	if !ok {
		return xe.ErrFightNotWaiting
	}

	s.logger.Info("fight cancelled by creator", zap.String("fight_id", fight.ID))

	if err := s.engine.BroadcastArenaFightDeleted(ctx, fight.ID); err != nil {
		s.logger.Warn("failed to broadcast fight deleted", zap.String("fight_id", fight.ID), zap.Error(err))
	}
	return nil
}

// ResolveFight 管理员裁决：把等待中或进行中的对战置为 NO_CONTEST 或 CANCELLED
func (s *FightService) ResolveFight(ctx context.Context, fightID string, status models.FightStatus) error {
	if status != models.FightStatusNoContest && status != models.FightStatusCancelled {
		return xe.ErrInvalidResolution
	}

	fight, err := s.findFight(ctx, fightID)
	if err != nil {
		return err
	}
	if fight.Status.IsTerminal() {
		return xe.ErrFightNotLive
	}

	committed := false
	err = s.Transaction(ctx, func(ctx context.Context) error {
		ok, err := s.fightRepo.TransitionStatus(ctx, fight.ID, fight.Status, map[string]interface{}{
			"status":   status,
			"ended_at": s.now(),
		})
		if err != nil || !ok {
			return err
		}
		if err := s.actionRepo.CancelByFightID(ctx, fight.ID); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to resolve fight: %w", err)
	}
	if !committed {
		return xe.ErrFightNotLive
	}

	s.logger.Info("fight resolved by admin",
		zap.String("fight_id", fight.ID),
		zap.String("from", string(fight.Status)),
		zap.String("to", string(status)))

	if err := s.engine.OnFightResolved(ctx, fight.ID); err != nil {
		s.logger.Warn("failed to broadcast fight resolved", zap.String("fight_id", fight.ID), zap.Error(err))
	}
	return nil
}

// RegisterOrderActionRequest 平台转发下单后登记的动作
type RegisterOrderActionRequest struct {
	ActionType      models.ActionType `json:"action_type" validate:"required,oneof=LIMIT_CREATE STOP_CREATE SET_TPSL MARKET"`
	Symbol          string            `json:"symbol" validate:"required"`
	Side            string            `json:"side" validate:"omitempty,oneof=buy sell"`
	Amount          float64           `json:"amount" validate:"gte=0"`
	Price           float64           `json:"price" validate:"gte=0"`
	Leverage        int               `json:"leverage" validate:"gte=0,lte=125"`
	Success         bool              `json:"success"`
	ExchangeOrderID string            `json:"exchange_order_id"`
}

// RegisterOrderAction 登记一笔通过平台下达的订单，供成交检测匹配
func (s *FightService) RegisterOrderAction(ctx context.Context, fightID, userID string, req RegisterOrderActionRequest) (*models.PendingOrderAction, error) {
	if !s.symbolAllowed(req.Symbol) {
		return nil, xe.ErrSymbolNotAllowed
	}

	fight, err := s.findFight(ctx, fightID)
	if err != nil {
		return nil, err
	}
	if fight.Status != models.FightStatusLive {
		return nil, xe.ErrFightNotLive
	}

	participants, err := s.participantRepo.FindByFightID(ctx, fight.ID)
	if err != nil {
		return nil, err
	}
	isParticipant := false
	for _, p := range participants {
		if p.UserID == userID {
			isParticipant = true
			break
		}
	}
	if !isParticipant {
		return nil, xe.ErrPermissionDenied
	}

	action := &models.PendingOrderAction{
		ID:              ulid.Make().String(),
		UserID:          userID,
		FightID:         fight.ID,
		ActionType:      req.ActionType,
		Symbol:          strings.ToUpper(req.Symbol),
		Side:            req.Side,
		Amount:          req.Amount,
		Price:           req.Price,
		Leverage:        req.Leverage,
		Success:         req.Success,
		ExchangeOrderID: req.ExchangeOrderID,
		Status:          models.ActionStatusPending,
	}
	if err := s.actionRepo.Create(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to register order action: %w", err)
	}
	return action, nil
}

// symbolAllowed 只有配置的交易对参与对战
func (s *FightService) symbolAllowed(symbol string) bool {
	for _, allowed := range s.conf.GetSymbols() {
		if strings.EqualFold(allowed, symbol) {
			return true
		}
	}
	return false
}

func (s *FightService) findFight(ctx context.Context, fightID string) (models.Fight, error) {
	fight, err := s.fightRepo.FindById(ctx, fightID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fight, xe.ErrFightNotFound
		}
		return fight, err
	}
	return fight, nil
}

// snapshotPositions 记录开赛前持仓，获取失败不影响创建
func (s *FightService) snapshotPositions(ctx context.Context, account exchange.Account) datatypes.JSON {
	positions, err := s.exchange.GetPositions(ctx, account)
	if err != nil {
		s.logger.Warn("failed to snapshot positions", zap.String("user_id", account.UserID), zap.Error(err))
		return datatypes.JSON("[]")
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}
