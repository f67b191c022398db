package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/internal/xe"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type engineFixture struct {
	db       *gorm.DB
	paper    *exchange.PaperExchange
	pub      *recordingPublisher
	notifier *countingNotifier
	engine   *FightEngine
	clock    time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	db := newTestDB(t)
	conf := testConfig()
	paper := exchange.NewPaperExchange(nopLogger())
	detector := NewFillDetector(db, conf, paper, staticAccounts{}, NewTradeRecordService(db, nopLogger()), nil, nopLogger())

	f := &engineFixture{
		db:       db,
		paper:    paper,
		pub:      &recordingPublisher{},
		notifier: &countingNotifier{},
		clock:    t0,
	}
	f.engine = NewFightEngine(db, conf, detector, f.pub, f.notifier, nopLogger())
	f.engine.now = func() time.Time { return f.clock }
	detector.now = func() time.Time { return f.clock }
	return f
}

// 开仓 0.001@50000 后以 51000 平仓，收益率 19%
func seedWinningTrades(t *testing.T, db *gorm.DB, fightID, userID string, from time.Time) {
	seedTrade(t, db, fightID, userID, exchange.SideBuy, 0.001, 50000, -0.05, from)
	seedTrade(t, db, fightID, userID, exchange.SideSell, 0.001, 51000, 0.95, from.Add(time.Minute))
}

func TestFightEngine_FinalizeDrawWhenBothScoreZero(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	// bob 只有未平仓的开仓成交，alice 没有任何成交
	seedTrade(t, f.db, fight.ID, bob, exchange.SideBuy, 0.001, 50000, -0.05, t0.Add(time.Minute))

	f.clock = t0.Add(10 * time.Minute)
	require.NoError(t, f.engine.Finalize(context.Background(), fight.ID))

	stored := reloadFight(t, f.db, fight.ID)
	assert.Equal(t, models.FightStatusFinished, stored.Status)
	assert.True(t, stored.IsDraw)
	assert.Empty(t, stored.WinnerID)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventFightFinished))
	assert.Equal(t, 1, f.pub.Count(broadcast.EventArenaFightFinished))
	assert.Equal(t, 1, participantOf(t, f.db, fight.ID, bob).TradesCount)
}

func TestFightEngine_FinalizeWinner(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	seedWinningTrades(t, f.db, fight.ID, bob, t0.Add(time.Minute))

	f.clock = t0.Add(11 * time.Minute)
	require.NoError(t, f.engine.Finalize(context.Background(), fight.ID))

	stored := reloadFight(t, f.db, fight.ID)
	assert.Equal(t, bob, stored.WinnerID)
	assert.False(t, stored.IsDraw)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(f.clock))

	winner := participantOf(t, f.db, fight.ID, bob)
	assert.InDelta(t, 0.95, winner.FinalScoreAmount, 1e-6)
	assert.InDelta(t, 19.0, winner.FinalPnlPercent, 1e-6)
	assert.InDelta(t, 5.0, winner.MaxExposureUsed, 1e-6)
	assert.Equal(t, 2, winner.TradesCount)

	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, bob, f.notifier.last.WinnerID)
}

func TestFightEngine_FinalizeTwiceIsNoop(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	seedWinningTrades(t, f.db, fight.ID, alice, t0.Add(time.Minute))

	f.clock = t0.Add(10 * time.Minute)
	ctx := context.Background()
	require.NoError(t, f.engine.Finalize(ctx, fight.ID))

	// 第二次结算时 alice 的成交发生变化也不会改写结果
	seedTrade(t, f.db, fight.ID, bob, exchange.SideBuy, 0.01, 50000, 0, t0.Add(2*time.Minute))
	seedTrade(t, f.db, fight.ID, bob, exchange.SideSell, 0.01, 60000, 100, t0.Add(3*time.Minute))
	require.NoError(t, f.engine.Finalize(ctx, fight.ID))

	assert.Equal(t, alice, reloadFight(t, f.db, fight.ID).WinnerID)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventFightFinished))
	assert.Equal(t, 1, f.notifier.calls)
}

func TestFightEngine_FinalizeIgnoresTradesAfterEnd(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	seedWinningTrades(t, f.db, fight.ID, alice, t0.Add(time.Minute))
	seedWinningTrades(t, f.db, fight.ID, bob, t0.Add(10*time.Minute+time.Second))

	f.clock = t0.Add(15 * time.Minute)
	require.NoError(t, f.engine.Finalize(context.Background(), fight.ID))

	assert.Equal(t, alice, reloadFight(t, f.db, fight.ID).WinnerID)
	assert.Zero(t, participantOf(t, f.db, fight.ID, bob).TradesCount)
}

func TestFightEngine_FinalizeCancelsPendingActions(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	action := seedAction(t, f.db, fight.ID, alice, models.ActionTypeLimitCreate, "BTCUSDT", "1", 0.001)

	f.clock = t0.Add(10 * time.Minute)
	require.NoError(t, f.engine.Finalize(context.Background(), fight.ID))

	var stored models.PendingOrderAction
	require.NoError(t, f.db.First(&stored, "id = ?", action.ID).Error)
	assert.Equal(t, models.ActionStatusCancelled, stored.Status)
}

func TestFightEngine_FinalizeUnknownFight(t *testing.T) {
	f := newEngineFixture(t)
	err := f.engine.Finalize(context.Background(), "missing")
	assert.ErrorIs(t, err, xe.ErrFightNotFound)
}

func TestFightEngine_TickLeadChange(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	ctx := context.Background()

	// 重启后首个周期只建立基线
	f.clock = t0.Add(time.Minute)
	f.engine.Tick(ctx)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventScoreUpdate))
	assert.Equal(t, 1, f.pub.Count(broadcast.EventArenaFightUpdate))
	assert.Zero(t, f.pub.Count(broadcast.EventLeadChanged))

	seedWinningTrades(t, f.db, fight.ID, alice, t0.Add(time.Minute))
	f.clock = t0.Add(3 * time.Minute)
	f.engine.Tick(ctx)
	require.Equal(t, 1, f.pub.Count(broadcast.EventLeadChanged))

	last, ok := f.pub.Last(broadcast.EventLeadChanged)
	require.True(t, ok)
	assert.Equal(t, broadcast.FightTopic(fight.ID), last.topic)
	payload := last.event.Payload.(map[string]interface{})
	assert.Equal(t, alice, payload["leader_id"])
	assert.Equal(t, "", payload["previous_leader_id"])

	// 领先者不变不再广播
	f.clock = t0.Add(4 * time.Minute)
	f.engine.Tick(ctx)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventLeadChanged))
	assert.Equal(t, 3, f.pub.Count(broadcast.EventScoreUpdate))

	assert.InDelta(t, 5.0, participantOf(t, f.db, fight.ID, alice).MaxExposureUsed, 1e-6)
}

func TestFightEngine_LeadTrackedFromStart(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	ctx := context.Background()

	require.NoError(t, f.engine.OnFightStarted(ctx, fight.ID))
	assert.Equal(t, 1, f.pub.Count(broadcast.EventArenaFightStarted))

	seedWinningTrades(t, f.db, fight.ID, bob, t0.Add(time.Minute))
	f.clock = t0.Add(3 * time.Minute)
	f.engine.Tick(ctx)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventLeadChanged))
}

func TestFightEngine_EndingSoonFiresOnce(t *testing.T) {
	f := newEngineFixture(t)
	seedLiveFight(t, f.db, t0, 10)
	ctx := context.Background()

	f.clock = t0.Add(9 * time.Minute)
	f.engine.Tick(ctx)
	assert.Zero(t, f.pub.Count(broadcast.EventEndingSoon))

	f.clock = t0.Add(9*time.Minute + 40*time.Second)
	f.engine.Tick(ctx)
	f.clock = t0.Add(9*time.Minute + 45*time.Second)
	f.engine.Tick(ctx)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventEndingSoon))
}

func TestFightEngine_TickFinalizesExpiredFight(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)

	f.clock = t0.Add(10 * time.Minute)
	f.engine.Tick(context.Background())

	assert.Equal(t, models.FightStatusFinished, reloadFight(t, f.db, fight.ID).Status)
	assert.Zero(t, f.pub.Count(broadcast.EventScoreUpdate))
	assert.Equal(t, 1, f.pub.Count(broadcast.EventFightFinished))
}

func TestFightEngine_TickIsolatesBrokenFight(t *testing.T) {
	f := newEngineFixture(t)
	healthy := seedLiveFight(t, f.db, t0, 10)

	broken := healthy
	broken.ID = "broken-fight"
	broken.CreatedAt = t0
	require.NoError(t, f.db.Create(&broken).Error)
	seedParticipant(t, f.db, broken.ID, alice, models.SlotA)

	f.clock = t0.Add(time.Minute)
	f.engine.Tick(context.Background())

	last, ok := f.pub.Last(broadcast.EventScoreUpdate)
	require.True(t, ok)
	assert.Equal(t, healthy.ID, last.event.FightID)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventScoreUpdate))
}

func TestFightEngine_SweepStale(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	stale := models.Fight{ID: "stale", Status: models.FightStatusWaiting, DurationMinutes: 5, CreatorID: alice, CreatedAt: t0.Add(-31 * time.Minute)}
	fresh := models.Fight{ID: "fresh", Status: models.FightStatusWaiting, DurationMinutes: 5, CreatorID: bob, CreatedAt: t0.Add(-5 * time.Minute)}
	require.NoError(t, f.db.Create(&stale).Error)
	require.NoError(t, f.db.Create(&fresh).Error)
	overdue := seedLiveFight(t, f.db, t0.Add(-20*time.Minute), 10)
	running := seedLiveFight(t, f.db, t0.Add(-time.Minute), 10)

	require.NoError(t, f.engine.SweepStale(ctx))

	assert.Equal(t, models.FightStatusCancelled, reloadFight(t, f.db, "stale").Status)
	assert.Equal(t, models.FightStatusWaiting, reloadFight(t, f.db, "fresh").Status)
	assert.Equal(t, models.FightStatusFinished, reloadFight(t, f.db, overdue.ID).Status)
	assert.Equal(t, models.FightStatusLive, reloadFight(t, f.db, running.ID).Status)
	assert.Equal(t, 1, f.pub.Count(broadcast.EventArenaFightDeleted))
	assert.Equal(t, 1, f.pub.Count(broadcast.EventFightFinished))
}

func TestFightEngine_SweepDetectsLateFillBeforeFinalize(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	fight := seedLiveFight(t, f.db, t0, 10)

	// 开仓已入账，平仓在最后一个周期之后、结束之前成交
	seedTrade(t, f.db, fight.ID, alice, exchange.SideBuy, 0.001, 50000, -0.05, t0.Add(time.Minute))
	seedAction(t, f.db, fight.ID, alice, models.ActionTypeLimitCreate, "BTCUSDT", "close-1", 0.001)
	f.paper.AddFill(alice, exchange.Fill{
		HistoryID: "h-close", OrderID: "close-1", Symbol: "BTCUSDT", Amount: 0.001, Price: 51000, Pnl: 1.0,
		Cause: exchange.CauseCloseLong, ExecutedAt: t0.Add(10*time.Minute - 2*time.Second),
	})

	f.clock = t0.Add(10*time.Minute + 30*time.Second)
	require.NoError(t, f.engine.SweepStale(ctx))

	stored := reloadFight(t, f.db, fight.ID)
	assert.Equal(t, models.FightStatusFinished, stored.Status)
	assert.False(t, stored.IsDraw)
	assert.Equal(t, alice, stored.WinnerID)
	assert.EqualValues(t, 2, countTrades(t, f.db, fight.ID))
	assert.Greater(t, participantOf(t, f.db, fight.ID, alice).FinalPnlPercent, 0.0)
}

func TestFightEngine_FinalizeDeferredWhileDetectionFails(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	fight := seedLiveFight(t, f.db, t0, 10)
	seedAction(t, f.db, fight.ID, alice, models.ActionTypeLimitCreate, "BTCUSDT", "1", 0.001)

	f.paper.FailNext(alice, errors.New("-1003 too many requests"))
	f.clock = t0.Add(10*time.Minute + time.Second)
	require.Error(t, f.engine.SweepStale(ctx))
	assert.Equal(t, models.FightStatusLive, reloadFight(t, f.db, fight.ID).Status)

	require.NoError(t, f.engine.SweepStale(ctx))
	assert.Equal(t, models.FightStatusFinished, reloadFight(t, f.db, fight.ID).Status)

	// 超过宽限期后不再等待交易所恢复
	late := seedLiveFight(t, f.db, t0, 10)
	seedAction(t, f.db, late.ID, alice, models.ActionTypeLimitCreate, "BTCUSDT", "2", 0.001)
	f.paper.FailNext(alice, errors.New("-1003 too many requests"))
	f.clock = t0.Add(13 * time.Minute)
	require.NoError(t, f.engine.SweepStale(ctx))
	assert.Equal(t, models.FightStatusFinished, reloadFight(t, f.db, late.ID).Status)
}

func TestFightEngine_OverlappingTicksChangeLeadOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	fight := seedLiveFight(t, f.db, t0, 10)
	require.NoError(t, f.engine.OnFightStarted(ctx, fight.ID))
	seedWinningTrades(t, f.db, fight.ID, alice, t0.Add(time.Minute))

	now := t0.Add(3 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.processFight(ctx, fight, now))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.pub.Count(broadcast.EventLeadChanged))
	assert.Equal(t, 8, f.pub.Count(broadcast.EventScoreUpdate))
}

func TestFightEngine_GetFightState(t *testing.T) {
	f := newEngineFixture(t)
	fight := seedLiveFight(t, f.db, t0, 10)
	seedWinningTrades(t, f.db, fight.ID, alice, t0.Add(time.Minute))
	seedTrade(t, f.db, fight.ID, bob, exchange.SideSell, 0.002, 50000, 0, t0.Add(time.Minute))
	ctx := context.Background()

	f.clock = t0.Add(4 * time.Minute)
	state, err := f.engine.GetFightState(ctx, fight.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FightStatusLive, state.Status)
	assert.Equal(t, alice, state.LeaderID)
	assert.EqualValues(t, 6*60, state.RemainingSeconds)
	require.Len(t, state.Participants, 2)
	assert.Equal(t, models.SlotA, state.Participants[0].Slot)
	assert.InDelta(t, 19.0, state.Participants[0].PnlPercent, 1e-6)
	assert.InDelta(t, -0.002, state.Participants[1].Positions["BTCUSDT"].SignedAmount, 1e-9)

	f.clock = t0.Add(10 * time.Minute)
	require.NoError(t, f.engine.Finalize(ctx, fight.ID))

	state, err = f.engine.GetFightState(ctx, fight.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FightStatusFinished, state.Status)
	assert.Equal(t, alice, state.WinnerID)
	assert.Zero(t, state.RemainingSeconds)
	assert.InDelta(t, 19.0, state.Participants[0].PnlPercent, 1e-6)

	_, err = f.engine.GetFightState(ctx, "missing")
	assert.ErrorIs(t, err, xe.ErrFightNotFound)
}

func TestFightEngine_StartStopTickLoop(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.conf = config.ArenaConf{TickSeconds: 3600, SweepSeconds: 3600}

	require.NoError(t, f.engine.StartTickLoop(context.Background()))
	assert.True(t, f.engine.IsRunning())
	assert.Error(t, f.engine.StartTickLoop(context.Background()))

	f.engine.StopTickLoop()
	assert.False(t, f.engine.IsRunning())
	f.engine.StopTickLoop()
}

func TestLeaderOf(t *testing.T) {
	a := ParticipantScore{UserID: alice, PnlPercent: 1.5}
	b := ParticipantScore{UserID: bob, PnlPercent: 1.5}

	assert.Equal(t, bob, leaderOf([]ParticipantScore{a, b}, bob))
	assert.Equal(t, "", leaderOf([]ParticipantScore{a, b}, ""))

	b.PnlPercent = 2
	assert.Equal(t, bob, leaderOf([]ParticipantScore{a, b}, alice))

	a.PnlPercent = 3
	assert.Equal(t, alice, leaderOf([]ParticipantScore{a, b}, bob))
	assert.Equal(t, bob, leaderOf([]ParticipantScore{a}, bob))
}
