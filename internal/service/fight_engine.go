package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/metrics"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/repo"
	"github.com/dushixiang/tfc/internal/xe"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/dushixiang/tfc/pkg/pnl"
	"github.com/go-orz/orz"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrParticipantMissing 进行中的对战参赛者不足两人
var ErrParticipantMissing = errors.New("fight participant missing")

// FightNotifier 对战结束通知
type FightNotifier interface {
	NotifyFightFinished(ctx context.Context, fight models.Fight, participants []models.FightParticipant) error
}

// ParticipantScore 参赛者实时成绩
type ParticipantScore struct {
	UserID                 string                       `json:"user_id"`
	Slot                   models.Slot                  `json:"slot"`
	RealizedPnl            float64                      `json:"realized_pnl"`
	TotalFees              float64                      `json:"total_fees"`
	PnlPercent             float64                      `json:"pnl_percent"`
	TradesCount            int                          `json:"trades_count"`
	OpenMargin             float64                      `json:"open_margin"`
	MaxMargin              float64                      `json:"max_margin"`
	Positions              map[string]pnl.PositionState `json:"positions"`
	ExternalTradesDetected bool                         `json:"external_trades_detected"`
}

// FightState 对战状态快照，同时作为广播内容
type FightState struct {
	FightID          string             `json:"fight_id"`
	Status           models.FightStatus `json:"status"`
	StakeAmount      float64            `json:"stake_amount"`
	DurationMinutes  int                `json:"duration_minutes"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	EndsAt           *time.Time         `json:"ends_at,omitempty"`
	RemainingSeconds int64              `json:"remaining_seconds"`
	LeaderID         string             `json:"leader_id"`
	WinnerID         string             `json:"winner_id,omitempty"`
	IsDraw           bool               `json:"is_draw"`
	Participants     []ParticipantScore `json:"participants"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// fightSnapshot 上一周期的内存状态，用于判断领先变化和即将结束提醒
type fightSnapshot struct {
	leaderID       string
	endingSoonSent bool
}

// FightEngine 对战生命周期引擎，定时评分、判定领先、结算胜负
type FightEngine struct {
	logger *zap.Logger
	conf   config.ArenaConf

	*orz.Service
	fightRepo       *repo.FightRepo
	participantRepo *repo.FightParticipantRepo
	tradeRepo       *repo.FightTradeRepo
	actionRepo      *repo.PendingOrderActionRepo

	detector  *FillDetector
	publisher broadcast.Publisher
	notifier  FightNotifier

	snapshots   map[string]*fightSnapshot
	snapshotsMu sync.Mutex

	now       func() time.Time
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	runningMu sync.Mutex
}

// NewFightEngine 创建对战引擎，notifier 可以为 nil
func NewFightEngine(
	db *gorm.DB,
	conf *config.Config,
	detector *FillDetector,
	publisher broadcast.Publisher,
	notifier FightNotifier,
	logger *zap.Logger,
) *FightEngine {
	return &FightEngine{
		logger:          logger,
		conf:            conf.Arena,
		Service:         orz.NewService(db),
		fightRepo:       repo.NewFightRepo(db),
		participantRepo: repo.NewFightParticipantRepo(db),
		tradeRepo:       repo.NewFightTradeRepo(db),
		actionRepo:      repo.NewPendingOrderActionRepo(db),
		detector:        detector,
		publisher:       publisher,
		notifier:        notifier,
		snapshots:       make(map[string]*fightSnapshot),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// StartTickLoop 启动评分周期和过期清理，立即执行一次清理以接管重启前遗留的对战
func (e *FightEngine) StartTickLoop(ctx context.Context) error {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	if e.isRunning {
		return fmt.Errorf("tick loop is already running")
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.cron = cron.New()

	tickSpec := fmt.Sprintf("@every %s", e.conf.TickInterval())
	if _, err := e.cron.AddFunc(tickSpec, func() { e.Tick(e.ctx) }); err != nil {
		e.cancel()
		return fmt.Errorf("failed to add tick job: %w", err)
	}

	sweepSpec := fmt.Sprintf("@every %s", e.conf.SweepInterval())
	if _, err := e.cron.AddFunc(sweepSpec, func() { e.sweep(e.ctx) }); err != nil {
		e.cancel()
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	e.cron.Start()
	e.isRunning = true

	e.logger.Info("fight engine started",
		zap.Duration("tick_interval", e.conf.TickInterval()),
		zap.Duration("sweep_interval", e.conf.SweepInterval()),
		zap.Duration("ending_soon", e.conf.EndingSoonThreshold()))

	go e.sweep(e.ctx)
	return nil
}

// StopTickLoop 停止调度，取消进行中的交易所请求，未完成的周期在下次启动后补上
func (e *FightEngine) StopTickLoop() {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	if !e.isRunning {
		return
	}

	e.logger.Info("stopping fight engine...")

	e.cancel()
	stopCtx := e.cron.Stop()
	<-stopCtx.Done()

	e.isRunning = false
	e.logger.Info("fight engine stopped")
}

// IsRunning 检查是否正在运行
func (e *FightEngine) IsRunning() bool {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()
	return e.isRunning
}

// Tick 执行一个评分周期。单场对战的失败只记录日志，不影响其他对战
func (e *FightEngine) Tick(ctx context.Context) {
	start := time.Now()
	metrics.TicksTotal.Inc()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	fights, err := e.fightRepo.FindByStatus(ctx, models.FightStatusLive)
	if err != nil {
		e.logger.Error("failed to load live fights", zap.Error(err))
		return
	}
	metrics.LiveFights.Set(float64(len(fights)))
	if len(fights) == 0 {
		return
	}

	if e.detector != nil {
		if err := e.detector.CheckForFilledOrders(ctx, fights); err != nil {
			e.logger.Warn("fill detection incomplete",
				zap.Int("failed_groups", len(multierr.Errors(err))),
				zap.Error(err))
		}
	}

	now := e.now()
	if err := e.supervise(ctx, fights, func(ctx context.Context, fight models.Fight) error {
		return e.processFight(ctx, fight, now)
	}); err != nil {
		e.logger.Error("tick finished with fight errors",
			zap.Int("failed_fights", len(multierr.Errors(err))),
			zap.Error(err))
	}
}

// supervise 并发处理每场对战，收集失败而不中断其他对战
func (e *FightEngine) supervise(ctx context.Context, fights []models.Fight, fn func(ctx context.Context, fight models.Fight) error) error {
	var (
		errs   error
		errsMu sync.Mutex
		eg     errgroup.Group
	)
	eg.SetLimit(e.conf.GetConcurrency())

	for _, fight := range fights {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err != nil {
					metrics.FightErrors.Inc()
					errsMu.Lock()
					errs = multierr.Append(errs, fmt.Errorf("fight %s: %w", fight.ID, err))
					errsMu.Unlock()
				}
			}()
			return fn(ctx, fight)
		})
	}
	_ = eg.Wait()

	return errs
}

// processFight 单场对战：到期结算，否则评分、广播、判定领先变化和即将结束
func (e *FightEngine) processFight(ctx context.Context, fight models.Fight, now time.Time) error {
	if fight.IsExpired(now) {
		return e.finalizeExpired(ctx, fight, now)
	}

	participants, err := e.participantRepo.FindByFightID(ctx, fight.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	if len(participants) != 2 {
		return fmt.Errorf("%w: got %d", ErrParticipantMissing, len(participants))
	}

	scores, err := e.computeScores(ctx, fight, participants, now)
	if err != nil {
		return err
	}

	for _, s := range scores {
		if s.MaxMargin <= 0 {
			continue
		}
		if err := e.participantRepo.RaiseMaxExposure(ctx, fight.ID, s.UserID, s.MaxMargin); err != nil {
			e.logger.Warn("failed to update max exposure",
				zap.String("fight_id", fight.ID),
				zap.String("user_id", s.UserID),
				zap.Error(err))
		}
	}

	// 周期可能重叠，领先者的读取与更新必须在同一把锁内完成
	remaining := fight.Remaining(now)
	e.snapshotsMu.Lock()
	snapshot, existed := e.snapshots[fight.ID]
	if !existed {
		snapshot = &fightSnapshot{}
		e.snapshots[fight.ID] = snapshot
	}
	previousLeader := snapshot.leaderID
	leader := leaderOf(scores, previousLeader)
	snapshot.leaderID = leader
	sendEndingSoon := false
	if remaining <= e.conf.EndingSoonThreshold() && !snapshot.endingSoonSent {
		snapshot.endingSoonSent = true
		sendEndingSoon = true
	}
	e.snapshotsMu.Unlock()

	state := e.buildState(fight, scores, leader, now)
	if err := e.publish(ctx, broadcast.FightTopic(fight.ID), broadcast.NewEvent(broadcast.EventScoreUpdate, fight.ID, state)); err != nil {
		return err
	}
	if err := e.publish(ctx, broadcast.ArenaTopic, broadcast.NewEvent(broadcast.EventArenaFightUpdate, fight.ID, state)); err != nil {
		return err
	}

	// 重启后首个周期没有上一次快照，只建立基线不发领先变化
	if existed && leader != previousLeader {
		e.logger.Info("lead changed",
			zap.String("fight_id", fight.ID),
			zap.String("previous_leader", previousLeader),
			zap.String("leader", leader))
		payload := map[string]interface{}{
			"previous_leader_id": previousLeader,
			"leader_id":          leader,
			"participants":       scores,
		}
		if err := e.publish(ctx, broadcast.FightTopic(fight.ID), broadcast.NewEvent(broadcast.EventLeadChanged, fight.ID, payload)); err != nil {
			return err
		}
	}

	if sendEndingSoon {
		payload := map[string]interface{}{
			"remaining_seconds": int64(remaining.Seconds()),
			"leader_id":         leader,
		}
		if err := e.publish(ctx, broadcast.FightTopic(fight.ID), broadcast.NewEvent(broadcast.EventEndingSoon, fight.ID, payload)); err != nil {
			return err
		}
	}

	return nil
}

// Finalize 结算对战：计算最终成绩，状态 LIVE→FINISHED 只会成功写入一次。
// 对战已不在进行中时直接返回，不重复计算也不重复广播
func (e *FightEngine) Finalize(ctx context.Context, fightID string) error {
	fight, err := e.fightRepo.FindById(ctx, fightID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return xe.ErrFightNotFound
		}
		return fmt.Errorf("load fight: %w", err)
	}
	if fight.Status != models.FightStatusLive {
		e.logger.Debug("finalize skipped, fight not live",
			zap.String("fight_id", fightID),
			zap.String("status", string(fight.Status)))
		return nil
	}

	participants, err := e.participantRepo.FindByFightID(ctx, fight.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	if len(participants) != 2 {
		return fmt.Errorf("%w: got %d", ErrParticipantMissing, len(participants))
	}

	now := e.now()
	windowEnd := now
	if end := fight.EndTime(); !end.IsZero() && end.Before(now) {
		windowEnd = end
	}

	scores, err := e.computeScores(ctx, fight, participants, windowEnd)
	if err != nil {
		return err
	}

	winnerID := ""
	isDraw := true
	switch pnl.CompareScores(scores[0].PnlPercent, scores[1].PnlPercent) {
	case 1:
		winnerID, isDraw = scores[0].UserID, false
	case -1:
		winnerID, isDraw = scores[1].UserID, false
	}

	committed := false
	err = e.Transaction(ctx, func(ctx context.Context) error {
		ok, err := e.fightRepo.TransitionStatus(ctx, fight.ID, models.FightStatusLive, map[string]interface{}{
			"status":    models.FightStatusFinished,
			"winner_id": winnerID,
			"is_draw":   isDraw,
			"ended_at":  now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		for _, s := range scores {
			if err := e.participantRepo.UpdateFinalScore(ctx, fight.ID, s.UserID, s.PnlPercent, s.RealizedPnl, s.TradesCount, s.MaxMargin); err != nil {
				return err
			}
		}
		if err := e.actionRepo.CancelByFightID(ctx, fight.ID); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist final result: %w", err)
	}
	if !committed {
		e.logger.Debug("fight already finalized elsewhere", zap.String("fight_id", fight.ID))
		return nil
	}

	fight.Status = models.FightStatusFinished
	fight.WinnerID = winnerID
	fight.IsDraw = isDraw
	fight.EndedAt = &now

	outcome := "win"
	if isDraw {
		outcome = "draw"
	}
	metrics.FightsFinalized.WithLabelValues(outcome).Inc()

	e.logger.Info("fight finished",
		zap.String("fight_id", fight.ID),
		zap.String("winner_id", winnerID),
		zap.Bool("is_draw", isDraw),
		zap.Float64("pnl_percent_a", scores[0].PnlPercent),
		zap.Float64("pnl_percent_b", scores[1].PnlPercent))

	state := e.buildState(fight, scores, winnerID, now)
	if err := e.publish(ctx, broadcast.FightTopic(fight.ID), broadcast.NewEvent(broadcast.EventFightFinished, fight.ID, state)); err != nil {
		e.logger.Warn("failed to broadcast fight finished", zap.String("fight_id", fight.ID), zap.Error(err))
	}
	if err := e.publish(ctx, broadcast.ArenaTopic, broadcast.NewEvent(broadcast.EventArenaFightFinished, fight.ID, state)); err != nil {
		e.logger.Warn("failed to broadcast arena fight finished", zap.String("fight_id", fight.ID), zap.Error(err))
	}

	e.release(fight.ID)

	if e.notifier != nil {
		for i := range participants {
			participants[i].FinalPnlPercent = scores[i].PnlPercent
			participants[i].FinalScoreAmount = scores[i].RealizedPnl
		}
		if err := e.notifier.NotifyFightFinished(ctx, fight, participants); err != nil {
			e.logger.Warn("failed to notify fight finished", zap.String("fight_id", fight.ID), zap.Error(err))
		}
	}
	return nil
}

// finalizeExpired 到期对战先补做一次成交检测再结算，结束前最后一个周期之后才成交的订单也要计入。
// 检测失败时对战保持 LIVE，宽限期内推迟到下个周期重试
func (e *FightEngine) finalizeExpired(ctx context.Context, fight models.Fight, now time.Time) error {
	if e.detector != nil {
		if err := e.detector.CheckForFilledOrders(ctx, []models.Fight{fight}); err != nil {
			if now.Before(fight.EndTime().Add(e.conf.FinalizeGrace())) {
				return fmt.Errorf("final fill detection failed, finalize deferred: %w", err)
			}
			e.logger.Warn("final fill detection failed past grace, finalizing anyway",
				zap.String("fight_id", fight.ID),
				zap.Error(err))
		}
	}
	return e.Finalize(ctx, fight.ID)
}

// SweepStale 取消超时仍在等待的对战，结算已过结束时间但未结算的对战
func (e *FightEngine) SweepStale(ctx context.Context) error {
	now := e.now()
	var errs error

	waiting, err := e.fightRepo.FindWaitingBefore(ctx, now.Add(-e.conf.WaitingTimeout()))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load waiting fights: %w", err))
	}
	for _, fight := range waiting {
		ok, err := e.fightRepo.TransitionStatus(ctx, fight.ID, models.FightStatusWaiting, map[string]interface{}{
			"status":   models.FightStatusCancelled,
			"ended_at": now,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel fight %s: %w", fight.ID, err))
			continue
		}
		if !ok {
			continue
		}
		metrics.FightsFinalized.WithLabelValues("timeout").Inc()
		e.logger.Info("waiting fight timed out",
			zap.String("fight_id", fight.ID),
			zap.Time("created_at", fight.CreatedAt))
		if err := e.BroadcastArenaFightDeleted(ctx, fight.ID); err != nil {
			e.logger.Warn("failed to broadcast fight deleted", zap.String("fight_id", fight.ID), zap.Error(err))
		}
	}

	live, err := e.fightRepo.FindByStatus(ctx, models.FightStatusLive)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("load live fights: %w", err))
	}
	expired := make([]models.Fight, 0)
	for _, fight := range live {
		if fight.IsExpired(now) {
			expired = append(expired, fight)
		}
	}
	if len(expired) == 0 {
		return errs
	}
	e.logger.Info("finalizing overdue fights", zap.Int("count", len(expired)))

	errs = multierr.Append(errs, e.supervise(ctx, expired, func(ctx context.Context, fight models.Fight) error {
		return e.finalizeExpired(ctx, fight, now)
	}))

	return errs
}

func (e *FightEngine) sweep(ctx context.Context) {
	if err := e.SweepStale(ctx); err != nil {
		e.logger.Error("stale sweep failed", zap.Error(err))
	}
}

// GetFightState 获取对战当前状态：进行中实时计算，已结束返回最终成绩
func (e *FightEngine) GetFightState(ctx context.Context, fightID string) (*FightState, error) {
	fight, err := e.fightRepo.FindById(ctx, fightID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xe.ErrFightNotFound
		}
		return nil, err
	}

	participants, err := e.participantRepo.FindByFightID(ctx, fight.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch fight.Status {
	case models.FightStatusLive:
		scores, err := e.computeScores(ctx, fight, participants, now)
		if err != nil {
			return nil, err
		}
		previous := ""
		e.snapshotsMu.Lock()
		if s, ok := e.snapshots[fight.ID]; ok {
			previous = s.leaderID
		}
		e.snapshotsMu.Unlock()
		state := e.buildState(fight, scores, leaderOf(scores, previous), now)
		return &state, nil
	default:
		scores := make([]ParticipantScore, 0, len(participants))
		for _, p := range participants {
			scores = append(scores, ParticipantScore{
				UserID:                 p.UserID,
				Slot:                   p.Slot,
				RealizedPnl:            p.FinalScoreAmount,
				PnlPercent:             p.FinalPnlPercent,
				TradesCount:            p.TradesCount,
				MaxMargin:              p.MaxExposureUsed,
				Positions:              map[string]pnl.PositionState{},
				ExternalTradesDetected: p.ExternalTradesDetected,
			})
		}
		state := e.buildState(fight, scores, fight.WinnerID, now)
		return &state, nil
	}
}

// OnFightStarted 对战开始后立即纳入引擎并通知竞技场
func (e *FightEngine) OnFightStarted(ctx context.Context, fightID string) error {
	e.snapshotsMu.Lock()
	e.snapshots[fightID] = &fightSnapshot{}
	e.snapshotsMu.Unlock()

	return e.broadcastArena(ctx, broadcast.EventArenaFightStarted, fightID)
}

// OnFightResolved 对战被取消或判定无效后释放引擎状态
func (e *FightEngine) OnFightResolved(ctx context.Context, fightID string) error {
	e.release(fightID)

	state, err := e.GetFightState(ctx, fightID)
	if err != nil {
		return err
	}
	if err := e.publish(ctx, broadcast.FightTopic(fightID), broadcast.NewEvent(broadcast.EventFightFinished, fightID, state)); err != nil {
		return err
	}
	return e.publish(ctx, broadcast.ArenaTopic, broadcast.NewEvent(broadcast.EventArenaFightUpdate, fightID, state))
}

// BroadcastArenaFightCreated 通知竞技场有新对战
func (e *FightEngine) BroadcastArenaFightCreated(ctx context.Context, fightID string) error {
	return e.broadcastArena(ctx, broadcast.EventArenaFightCreated, fightID)
}

// BroadcastArenaFightUpdated 通知竞技场对战信息变化
func (e *FightEngine) BroadcastArenaFightUpdated(ctx context.Context, fightID string) error {
	return e.broadcastArena(ctx, broadcast.EventArenaFightUpdate, fightID)
}

// BroadcastArenaFightStarted 通知竞技场对战开始
func (e *FightEngine) BroadcastArenaFightStarted(ctx context.Context, fightID string) error {
	return e.broadcastArena(ctx, broadcast.EventArenaFightStarted, fightID)
}

// BroadcastArenaFightDeleted 通知竞技场移除对战，对战记录可能已不存在
func (e *FightEngine) BroadcastArenaFightDeleted(ctx context.Context, fightID string) error {
	e.release(fightID)
	payload := map[string]interface{}{"fight_id": fightID}
	return e.publish(ctx, broadcast.ArenaTopic, broadcast.NewEvent(broadcast.EventArenaFightDeleted, fightID, payload))
}

func (e *FightEngine) broadcastArena(ctx context.Context, eventType broadcast.EventType, fightID string) error {
	state, err := e.GetFightState(ctx, fightID)
	if err != nil {
		return err
	}
	return e.publish(ctx, broadcast.ArenaTopic, broadcast.NewEvent(eventType, fightID, state))
}

// computeScores 从对战成交记录计算双方成绩，成交必须按成交时间升序
func (e *FightEngine) computeScores(ctx context.Context, fight models.Fight, participants []models.FightParticipant, until time.Time) ([]ParticipantScore, error) {
	scores := make([]ParticipantScore, 0, len(participants))
	for _, p := range participants {
		score := ParticipantScore{
			UserID:                 p.UserID,
			Slot:                   p.Slot,
			Positions:              map[string]pnl.PositionState{},
			ExternalTradesDetected: p.ExternalTradesDetected,
		}
		if fight.StartedAt == nil {
			scores = append(scores, score)
			continue
		}

		rows, err := e.tradeRepo.FindByParticipantBetween(ctx, fight.ID, p.UserID, fight.StartedAt.UTC(), until.UTC())
		if err != nil {
			return nil, fmt.Errorf("load trades for %s: %w", p.UserID, err)
		}

		trades := make([]pnl.Trade, 0, len(rows))
		for _, row := range rows {
			trades = append(trades, toPnlTrade(row))
		}
		pnl.SortTrades(trades)

		result := pnl.Calculate(trades)
		score.RealizedPnl = result.RealizedPnl
		score.TotalFees = result.TotalFees
		score.TradesCount = result.TradesCount
		score.OpenMargin = result.OpenMargin
		score.MaxMargin = result.MaxMargin
		score.PnlPercent = result.PnlPercent()
		score.Positions = result.Positions
		scores = append(scores, score)
	}
	return scores, nil
}

func (e *FightEngine) buildState(fight models.Fight, scores []ParticipantScore, leader string, now time.Time) FightState {
	state := FightState{
		FightID:         fight.ID,
		Status:          fight.Status,
		StakeAmount:     fight.StakeAmount,
		DurationMinutes: fight.DurationMinutes,
		StartedAt:       fight.StartedAt,
		LeaderID:        leader,
		WinnerID:        fight.WinnerID,
		IsDraw:          fight.IsDraw,
		Participants:    scores,
		UpdatedAt:       now,
	}
	if fight.StartedAt != nil {
		endsAt := fight.EndTime()
		state.EndsAt = &endsAt
	}
	if fight.Status == models.FightStatusLive {
		state.RemainingSeconds = int64(fight.Remaining(now).Seconds())
	}
	return state
}

// release 丢弃对战的内存状态与成交检测去重状态
func (e *FightEngine) release(fightID string) {
	e.snapshotsMu.Lock()
	delete(e.snapshots, fightID)
	e.snapshotsMu.Unlock()

	if e.detector != nil {
		e.detector.ClearFight(fightID)
	}
}

func (e *FightEngine) publish(ctx context.Context, topic string, event broadcast.Event) error {
	if e.publisher == nil {
		return nil
	}
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, topic, err)
	}
	return nil
}

// leaderOf 收益率严格更高者领先；在容差内相等时保持原领先者
func leaderOf(scores []ParticipantScore, previous string) string {
	if len(scores) != 2 {
		return previous
	}
	switch pnl.CompareScores(scores[0].PnlPercent, scores[1].PnlPercent) {
	case 1:
		return scores[0].UserID
	case -1:
		return scores[1].UserID
	default:
		return previous
	}
}

func toPnlTrade(row models.FightTrade) pnl.Trade {
	return pnl.Trade{
		Symbol:     row.Symbol,
		Side:       exchange.Side(row.Side),
		Amount:     row.Amount,
		Price:      row.Price,
		Fee:        row.Fee,
		Pnl:        row.Pnl,
		Leverage:   row.Leverage,
		HistoryID:  row.HistoryID,
		ExecutedAt: row.ExecutedAt,
	}
}
