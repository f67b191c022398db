package repo

import (
	"context"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewExchangeAccountRepo(db *gorm.DB) *ExchangeAccountRepo {
	return &ExchangeAccountRepo{
		Repository: orz.NewRepository[models.ExchangeAccount, string](db),
	}
}

type ExchangeAccountRepo struct {
	orz.Repository[models.ExchangeAccount, string]
}

// FindByUserID 根据用户ID查找交易所账户
func (r ExchangeAccountRepo) FindByUserID(ctx context.Context, userID string) (m models.ExchangeAccount, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("user_id = ?", userID).
		First(&m).Error
	return m, err
}
