package repo

import (
	"context"
	"time"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewPendingOrderActionRepo(db *gorm.DB) *PendingOrderActionRepo {
	return &PendingOrderActionRepo{
		Repository: orz.NewRepository[models.PendingOrderAction, string](db),
	}
}

type PendingOrderActionRepo struct {
	orz.Repository[models.PendingOrderAction, string]
}

// FindPendingForFights 查找等待成交检测的动作：下单成功、已有交易所订单ID、仍处于 PENDING
func (r PendingOrderActionRepo) FindPendingForFights(ctx context.Context, fightIDs []string) ([]models.PendingOrderAction, error) {
	if len(fightIDs) == 0 {
		return nil, nil
	}
	db := r.GetDB(ctx)
	var actions []models.PendingOrderAction
	err := db.Table(r.GetTableName()).
		Where("fight_id IN ?", fightIDs).
		Where("action_type IN ?", models.DetectableActionTypes).
		Where("success = ? AND exchange_order_id <> '' AND status = ?", true, models.ActionStatusPending).
		Order("created_at ASC").
		Find(&actions).Error
	return actions, err
}

// FindTriggeredForFights 查找已触发的止盈止损动作，触发订单的后续分批成交仍需归属到它们
func (r PendingOrderActionRepo) FindTriggeredForFights(ctx context.Context, fightIDs []string) ([]models.PendingOrderAction, error) {
	if len(fightIDs) == 0 {
		return nil, nil
	}
	db := r.GetDB(ctx)
	var actions []models.PendingOrderAction
	err := db.Table(r.GetTableName()).
		Where("fight_id IN ?", fightIDs).
		Where("action_type = ? AND status = ? AND triggered_order_id <> ''", models.ActionTypeSetTPSL, models.ActionStatusFilled).
		Order("created_at ASC").
		Find(&actions).Error
	return actions, err
}

// AddFilled 累加成交数量。completed 时标记为已成交，triggeredOrderID 非空时记录触发订单
func (r PendingOrderActionRepo) AddFilled(ctx context.Context, id string, amount float64, completed bool, triggeredOrderID string, at time.Time) error {
	db := r.GetDB(ctx)
	updates := map[string]interface{}{
		"filled_amount": gorm.Expr("filled_amount + ?", amount),
	}
	if completed {
		updates["status"] = models.ActionStatusFilled
		updates["filled_at"] = at
	}
	if triggeredOrderID != "" {
		updates["triggered_order_id"] = triggeredOrderID
	}
	return db.Table(r.GetTableName()).
		Where("id = ? AND status <> ?", id, models.ActionStatusCancelled).
		Updates(updates).Error
}

// CancelByFightID 取消对战下仍在等待的动作
func (r PendingOrderActionRepo) CancelByFightID(ctx context.Context, fightID string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("fight_id = ? AND status = ?", fightID, models.ActionStatusPending).
		Update("status", models.ActionStatusCancelled).Error
}
