package models

import (
	"time"

	"gorm.io/gorm"
)

// ExchangeAccount 用户绑定的交易所账户
type ExchangeAccount struct {
	ID              string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID          string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	APIKey          string         `gorm:"type:varchar(128);not null" json:"api_key"`
	EncryptedSecret string         `gorm:"type:text;not null" json:"-"` // secretbox 加密后的 API Secret
	Testnet         bool           `json:"testnet"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (*ExchangeAccount) TableName() string {
	return "exchange_accounts"
}
