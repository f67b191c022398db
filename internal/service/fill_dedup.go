package service

import (
	"strings"
	"sync"
	"time"
)

// FillDedup 成交检测的进程内状态：已处理的成交（第一层去重）与正在处理的 (用户, 对战) 组。
// 仅用于减少重复工作，跨实例的正确性由 fight_trades 唯一约束保证
type FillDedup struct {
	mu        sync.Mutex
	processed map[string]map[string]struct{} // fightID -> historyID
	inFlight  map[string]struct{}            // user:fight
	cursors   map[string]time.Time           // user:fight -> 下次查询成交历史的起点
}

// NewFillDedup 创建去重状态
func NewFillDedup() *FillDedup {
	return &FillDedup{
		processed: make(map[string]map[string]struct{}),
		inFlight:  make(map[string]struct{}),
		cursors:   make(map[string]time.Time),
	}
}

// GroupKey user:fight
func GroupKey(userID, fightID string) string {
	return userID + ":" + fightID
}

// Seen 成交是否已处理
func (d *FillDedup) Seen(fightID, historyID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.processed[fightID][historyID]
	return ok
}

// MarkProcessed 标记成交已处理
func (d *FillDedup) MarkProcessed(fightID, historyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids, ok := d.processed[fightID]
	if !ok {
		ids = make(map[string]struct{})
		d.processed[fightID] = ids
	}
	ids[historyID] = struct{}{}
}

// TryAcquire 占用 (用户, 对战) 组，已被占用时返回 false
func (d *FillDedup) TryAcquire(userID, fightID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := GroupKey(userID, fightID)
	if _, busy := d.inFlight[key]; busy {
		return false
	}
	d.inFlight[key] = struct{}{}
	return true
}

// Release 释放 (用户, 对战) 组
func (d *FillDedup) Release(userID, fightID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, GroupKey(userID, fightID))
}

// Cursor 组的成交历史查询起点，重启后为空，由调用方从对战开始时间查起
func (d *FillDedup) Cursor(userID, fightID string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.cursors[GroupKey(userID, fightID)]
	return at, ok
}

// AdvanceCursor 推进查询起点，只前进不后退
func (d *FillDedup) AdvanceCursor(userID, fightID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := GroupKey(userID, fightID)
	if current, ok := d.cursors[key]; ok && !at.After(current) {
		return
	}
	d.cursors[key] = at
}

// ClearFight 对战结束后清理该对战的全部状态
func (d *FillDedup) ClearFight(fightID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.processed, fightID)
	suffix := ":" + fightID
	for key := range d.inFlight {
		if strings.HasSuffix(key, suffix) {
			delete(d.inFlight, key)
		}
	}
	for key := range d.cursors {
		if strings.HasSuffix(key, suffix) {
			delete(d.cursors, key)
		}
	}
}

// Size 已处理成交数与正在处理的组数
func (d *FillDedup) Size() (processed int, inFlight int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ids := range d.processed {
		processed += len(ids)
	}
	return processed, len(d.inFlight)
}
