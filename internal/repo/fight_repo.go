package repo

import (
	"context"
	"time"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewFightRepo(db *gorm.DB) *FightRepo {
	return &FightRepo{
		Repository: orz.NewRepository[models.Fight, string](db),
	}
}

type FightRepo struct {
	orz.Repository[models.Fight, string]
}

// FindByStatus 查找指定状态的对战
func (r FightRepo) FindByStatus(ctx context.Context, status models.FightStatus) ([]models.Fight, error) {
	db := r.GetDB(ctx)
	var fights []models.Fight
	err := db.Table(r.GetTableName()).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&fights).Error
	return fights, err
}

// FindWaitingBefore 查找创建时间早于 before 仍在等待的对战
func (r FightRepo) FindWaitingBefore(ctx context.Context, before time.Time) ([]models.Fight, error) {
	db := r.GetDB(ctx)
	var fights []models.Fight
	err := db.Table(r.GetTableName()).
		Where("status = ? AND created_at < ?", models.FightStatusWaiting, before).
		Find(&fights).Error
	return fights, err
}

// TransitionStatus 条件更新状态，只有当前状态为 from 时才会写入。
// 返回 false 表示状态已被其他流程修改
func (r FightRepo) TransitionStatus(ctx context.Context, id string, from models.FightStatus, updates map[string]interface{}) (bool, error) {
	db := r.GetDB(ctx)
	result := db.Table(r.GetTableName()).
		Where("id = ? AND status = ? AND deleted_at IS NULL", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
