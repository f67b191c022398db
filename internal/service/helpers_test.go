package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dushixiang/tfc/internal/broadcast"
	"github.com/dushixiang/tfc/internal/config"
	"github.com/dushixiang/tfc/internal/models"
	"github.com/dushixiang/tfc/pkg/exchange"
	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	alice = "alice"
	bob   = "bob"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接互相独立
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Fight{}, &models.FightParticipant{}, &models.FightTrade{},
		&models.PendingOrderAction{}, &models.ExchangeAccount{},
	))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Arena: config.ArenaConf{
			Concurrency: 4,
			Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		},
	}
}

// seedLiveFight 创建 alice 与 bob 的进行中对战
func seedLiveFight(t *testing.T, db *gorm.DB, startedAt time.Time, minutes int) models.Fight {
	t.Helper()

	endedAt := startedAt.Add(time.Duration(minutes) * time.Minute)
	fight := models.Fight{
		ID:              ulid.Make().String(),
		Status:          models.FightStatusLive,
		DurationMinutes: minutes,
		StakeAmount:     10,
		CreatorID:       alice,
		StartedAt:       &startedAt,
		EndedAt:         &endedAt,
		CreatedAt:       startedAt.Add(-time.Minute),
	}
	require.NoError(t, db.Create(&fight).Error)
	seedParticipant(t, db, fight.ID, alice, models.SlotA)
	seedParticipant(t, db, fight.ID, bob, models.SlotB)
	return fight
}

func seedParticipant(t *testing.T, db *gorm.DB, fightID, userID string, slot models.Slot) {
	t.Helper()
	require.NoError(t, db.Create(&models.FightParticipant{
		ID:      ulid.Make().String(),
		FightID: fightID,
		UserID:  userID,
		Slot:    slot,
	}).Error)
}

func seedAction(t *testing.T, db *gorm.DB, fightID, userID string, actionType models.ActionType, symbol, orderID string, amount float64) models.PendingOrderAction {
	t.Helper()
	action := models.PendingOrderAction{
		ID:              ulid.Make().String(),
		UserID:          userID,
		FightID:         fightID,
		ActionType:      actionType,
		Symbol:          symbol,
		Amount:          amount,
		Leverage:        10,
		Success:         true,
		ExchangeOrderID: orderID,
		Status:          models.ActionStatusPending,
	}
	require.NoError(t, db.Create(&action).Error)
	return action
}

func seedTrade(t *testing.T, db *gorm.DB, fightID, userID string, side exchange.Side, amount, price, pnl float64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.FightTrade{
		ID:                ulid.Make().String(),
		FightID:           fightID,
		ParticipantUserID: userID,
		Symbol:            "BTCUSDT",
		Side:              side.String(),
		Amount:            amount,
		Price:             price,
		Fee:               0.05,
		Pnl:               pnl,
		Leverage:          10,
		HistoryID:         ulid.Make().String(),
		ExecutedAt:        at,
	}).Error)
}

func reloadFight(t *testing.T, db *gorm.DB, id string) models.Fight {
	t.Helper()
	var fight models.Fight
	require.NoError(t, db.First(&fight, "id = ?", id).Error)
	return fight
}

func participantOf(t *testing.T, db *gorm.DB, fightID, userID string) models.FightParticipant {
	t.Helper()
	var p models.FightParticipant
	require.NoError(t, db.First(&p, "fight_id = ? AND user_id = ?", fightID, userID).Error)
	return p
}

func countTrades(t *testing.T, db *gorm.DB, fightID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.FightTrade{}).Where("fight_id = ?", fightID).Count(&count).Error)
	return count
}

// staticAccounts 每个用户都已绑定账户
type staticAccounts struct{}

func (staticAccounts) Resolve(ctx context.Context, userID string) (exchange.Account, error) {
	return exchange.Account{UserID: userID, APIKey: "key-" + userID, Secret: "secret"}, nil
}

// countingRecorder 统计调用次数，err 非空时直接失败
type countingRecorder struct {
	mu    sync.Mutex
	inner TradeRecorder
	err   error
	calls int
}

func (r *countingRecorder) RecordFill(ctx context.Context, fill RecordedFill) error {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.inner.RecordFill(ctx, fill)
}

func (r *countingRecorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type published struct {
	topic string
	event broadcast.Event
}

// recordingPublisher 记录所有广播
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event broadcast.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, event: event})
	return nil
}

func (p *recordingPublisher) Count(eventType broadcast.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event.Type == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) Last(eventType broadcast.EventType) (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].event.Type == eventType {
			return p.events[i], true
		}
	}
	return published{}, false
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	last  models.Fight
}

func (n *countingNotifier) NotifyFightFinished(ctx context.Context, fight models.Fight, participants []models.FightParticipant) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = fight
	return nil
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
