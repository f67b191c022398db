package models

import (
	"time"

	"gorm.io/gorm"
)

// FightStatus 对战状态
type FightStatus string

const (
	FightStatusWaiting   FightStatus = "WAITING"    // 等待对手加入
	FightStatusLive      FightStatus = "LIVE"       // 进行中
	FightStatusFinished  FightStatus = "FINISHED"   // 正常结束
	FightStatusCancelled FightStatus = "CANCELLED"  // 已取消
	FightStatusNoContest FightStatus = "NO_CONTEST" // 判定无效
)

// IsTerminal 是否为终态，终态不可回退
func (s FightStatus) IsTerminal() bool {
	return s == FightStatusFinished || s == FightStatusCancelled || s == FightStatusNoContest
}

// Fight 对战
type Fight struct {
	ID              string         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Status          FightStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	DurationMinutes int            `gorm:"type:int;not null" json:"duration_minutes"`       // 对战时长（分钟）
	StakeAmount     float64        `gorm:"type:decimal(20,8);not null" json:"stake_amount"` // 押注金额
	CreatorID       string         `gorm:"type:varchar(64);not null;index" json:"creator_id"`
	StartedAt       *time.Time     `gorm:"index" json:"started_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"` // 开赛时为预计结束时间，结算后为实际结束时间
	WinnerID        string         `gorm:"type:varchar(64)" json:"winner_id"`
	IsDraw          bool           `json:"is_draw"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (*Fight) TableName() string {
	return "fights"
}

// Duration 对战时长
func (f *Fight) Duration() time.Duration {
	return time.Duration(f.DurationMinutes) * time.Minute
}

// EndTime 按开始时间和时长计算的结束时间
func (f *Fight) EndTime() time.Time {
	if f.StartedAt == nil {
		return time.Time{}
	}
	return f.StartedAt.Add(f.Duration())
}

// IsExpired 是否已到结束时间
func (f *Fight) IsExpired(now time.Time) bool {
	return f.Status == FightStatusLive && f.StartedAt != nil && !now.Before(f.EndTime())
}

// Remaining 剩余时间
func (f *Fight) Remaining(now time.Time) time.Duration {
	if f.StartedAt == nil {
		return f.Duration()
	}
	remaining := f.EndTime().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
