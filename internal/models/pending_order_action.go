package models

import (
	"time"

	"gorm.io/gorm"
)

// ActionType 平台下单动作类型
type ActionType string

const (
	ActionTypeLimitCreate ActionType = "LIMIT_CREATE" // 限价单
	ActionTypeStopCreate  ActionType = "STOP_CREATE"  // 条件单
	ActionTypeSetTPSL     ActionType = "SET_TPSL"     // 设置止盈止损
	ActionTypeMarket      ActionType = "MARKET"       // 市价单，下单后通常立即成交
)

// ActionStatus 动作状态
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "PENDING"   // 等待成交
	ActionStatusFilled    ActionStatus = "FILLED"    // 已成交
	ActionStatusCancelled ActionStatus = "CANCELLED" // 已取消
)

// DetectableActionTypes 需要轮询成交的动作类型，市价单同样经由成交历史入账
var DetectableActionTypes = []ActionType{
	ActionTypeLimitCreate,
	ActionTypeStopCreate,
	ActionTypeSetTPSL,
	ActionTypeMarket,
}

// PendingOrderAction 通过平台下达、等待交易所成交的订单
type PendingOrderAction struct {
	ID               string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID           string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	FightID          string         `gorm:"type:varchar(26);not null;index" json:"fight_id"`
	ActionType       ActionType     `gorm:"type:varchar(20);not null" json:"action_type"`
	Symbol           string         `gorm:"type:varchar(20);not null" json:"symbol"`
	Side             string         `gorm:"type:varchar(10)" json:"side"` // buy/sell
	Amount           float64        `gorm:"type:decimal(20,8)" json:"amount"`
	Price            float64        `gorm:"type:decimal(20,8)" json:"price"`
	Leverage         int            `gorm:"type:int" json:"leverage"`
	Success          bool           `json:"success"`                                         // 交易所是否接受该订单
	ExchangeOrderID  string         `gorm:"type:varchar(50);index" json:"exchange_order_id"` // 交易所订单ID
	Status           ActionStatus   `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	FilledAmount     float64        `gorm:"type:decimal(20,8)" json:"filled_amount"`              // 累计成交数量
	TriggeredOrderID string         `gorm:"type:varchar(50)" json:"triggered_order_id,omitempty"` // 止盈止损触发后实际成交的订单ID
	FilledAt         *time.Time     `json:"filled_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (*PendingOrderAction) TableName() string {
	return "pending_order_actions"
}

// IsTPSL 是否为止盈止损设置
func (a *PendingOrderAction) IsTPSL() bool {
	return a.ActionType == ActionTypeSetTPSL
}
