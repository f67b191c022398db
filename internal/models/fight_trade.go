package models

import (
	"time"
)

// FightTrade 对战期间的成交记录，只追加不修改
type FightTrade struct {
	ID                string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	FightID           string    `gorm:"type:varchar(26);not null;uniqueIndex:idx_fight_history;index:idx_fight_user_time,priority:1" json:"fight_id"`
	ParticipantUserID string    `gorm:"type:varchar(64);not null;index:idx_fight_user_time,priority:2" json:"participant_user_id"`
	Symbol            string    `gorm:"type:varchar(20);not null" json:"symbol"` // 交易对
	Side              string    `gorm:"type:varchar(10);not null" json:"side"`   // buy/sell
	Amount            float64   `gorm:"type:decimal(20,8);not null" json:"amount"`
	Price             float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	Fee               float64   `gorm:"type:decimal(20,8)" json:"fee"`
	Pnl               float64   `gorm:"type:decimal(20,8)" json:"pnl"` // 交易所回报的原始盈亏
	Leverage          int       `gorm:"type:int" json:"leverage"`
	ExchangeOrderID   string    `gorm:"type:varchar(50);index" json:"exchange_order_id"`
	HistoryID         string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_fight_history" json:"history_id"` // 同一场对战内唯一
	ExecutedAt        time.Time `gorm:"not null;index:idx_fight_user_time,priority:3" json:"executed_at"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (*FightTrade) TableName() string {
	return "fight_trades"
}
