package models

import (
	"time"

	"gorm.io/datatypes"
)

// Slot 参赛席位
type Slot string

const (
	SlotA Slot = "A" // 创建者
	SlotB Slot = "B" // 挑战者
)

// FightParticipant 对战参赛者
type FightParticipant struct {
	ID                     string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	FightID                string         `gorm:"type:varchar(26);not null;uniqueIndex:idx_fight_user;uniqueIndex:idx_fight_slot" json:"fight_id"`
	UserID                 string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_fight_user;index" json:"user_id"`
	Slot                   Slot           `gorm:"type:varchar(1);not null;uniqueIndex:idx_fight_slot" json:"slot"`
	PositionSnapshot       datatypes.JSON `json:"position_snapshot"`                            // 开赛前持仓快照，仅用于审计
	MaxExposureUsed        float64        `gorm:"type:decimal(20,8)" json:"max_exposure_used"`  // 比赛中占用过的最大保证金
	FinalPnlPercent        float64        `gorm:"type:decimal(20,8)" json:"final_pnl_percent"`  // 最终收益率
	FinalScoreAmount       float64        `gorm:"type:decimal(20,8)" json:"final_score_amount"` // 最终已实现盈亏
	TradesCount            int            `gorm:"type:int" json:"trades_count"`
	ExternalTradesDetected bool           `json:"external_trades_detected"` // 是否检测到非平台下单的成交
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (*FightParticipant) TableName() string {
	return "fight_participants"
}
