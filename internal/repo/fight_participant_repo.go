package repo

import (
	"context"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewFightParticipantRepo(db *gorm.DB) *FightParticipantRepo {
	return &FightParticipantRepo{
		Repository: orz.NewRepository[models.FightParticipant, string](db),
	}
}

type FightParticipantRepo struct {
	orz.Repository[models.FightParticipant, string]
}

// FindByFightID 查找对战的参赛者，按席位排序
func (r FightParticipantRepo) FindByFightID(ctx context.Context, fightID string) ([]models.FightParticipant, error) {
	db := r.GetDB(ctx)
	var participants []models.FightParticipant
	err := db.Table(r.GetTableName()).
		Where("fight_id = ?", fightID).
		Order("slot ASC").
		Find(&participants).Error
	return participants, err
}

// RaiseMaxExposure 只在新值更大时更新最大保证金占用
func (r FightParticipantRepo) RaiseMaxExposure(ctx context.Context, fightID, userID string, exposure float64) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("fight_id = ? AND user_id = ? AND max_exposure_used < ?", fightID, userID, exposure).
		Update("max_exposure_used", exposure).Error
}

// MarkExternalTrades 标记参赛者存在外部成交
func (r FightParticipantRepo) MarkExternalTrades(ctx context.Context, fightID, userID string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("fight_id = ? AND user_id = ? AND external_trades_detected = ?", fightID, userID, false).
		Update("external_trades_detected", true).Error
}

// UpdateFinalScore 写入最终成绩
func (r FightParticipantRepo) UpdateFinalScore(ctx context.Context, fightID, userID string, pnlPercent, scoreAmount float64, tradesCount int, maxExposure float64) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("fight_id = ? AND user_id = ?", fightID, userID).
		Updates(map[string]interface{}{
			"final_pnl_percent":  pnlPercent,
			"final_score_amount": scoreAmount,
			"trades_count":       tradesCount,
			"max_exposure_used":  gorm.Expr("CASE WHEN max_exposure_used < ? THEN ? ELSE max_exposure_used END", maxExposure, maxExposure),
		}).Error
}
