package repo

import (
	"context"
	"time"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewFightTradeRepo(db *gorm.DB) *FightTradeRepo {
	return &FightTradeRepo{
		Repository: orz.NewRepository[models.FightTrade, string](db),
	}
}

type FightTradeRepo struct {
	orz.Repository[models.FightTrade, string]
}

// ExistsByHistoryID 该成交是否已记录
func (r FightTradeRepo) ExistsByHistoryID(ctx context.Context, fightID, historyID string) (bool, error) {
	db := r.GetDB(ctx)
	var count int64
	err := db.Table(r.GetTableName()).
		Where("fight_id = ? AND history_id = ?", fightID, historyID).
		Count(&count).Error
	return count > 0, err
}

// FindByParticipantBetween 按成交时间升序获取参赛者在时间窗口内的成交
func (r FightTradeRepo) FindByParticipantBetween(ctx context.Context, fightID, userID string, start, end time.Time) ([]models.FightTrade, error) {
	db := r.GetDB(ctx)
	var trades []models.FightTrade
	err := db.Table(r.GetTableName()).
		Where("fight_id = ? AND participant_user_id = ? AND executed_at >= ? AND executed_at <= ?", fightID, userID, start, end).
		Order("executed_at ASC, LENGTH(history_id) ASC, history_id ASC").
		Find(&trades).Error
	return trades, err
}

// InsertIgnoreDuplicate 插入成交，(fight_id, history_id) 冲突时忽略。
// 返回 false 表示该成交已被其他流程写入
func (r FightTradeRepo) InsertIgnoreDuplicate(ctx context.Context, trade *models.FightTrade) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fight_id"}, {Name: "history_id"}},
		DoNothing: true,
	}).Create(trade)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
