package broadcast

import (
	"context"
	"time"
)

// EventType 广播事件类型
type EventType string

const (
	EventScoreUpdate        EventType = "SCORE_UPDATE"
	EventLeadChanged        EventType = "LEAD_CHANGED"
	EventEndingSoon         EventType = "ENDING_SOON"
	EventFightFinished      EventType = "FIGHT_FINISHED"
	EventArenaFightUpdate   EventType = "ARENA_FIGHT_UPDATE"
	EventArenaFightCreated  EventType = "ARENA_FIGHT_CREATED"
	EventArenaFightStarted  EventType = "ARENA_FIGHT_STARTED"
	EventArenaFightDeleted  EventType = "ARENA_FIGHT_DELETED"
	EventArenaFightFinished EventType = "ARENA_FIGHT_FINISHED"
)

// ArenaTopic 竞技场汇总频道
const ArenaTopic = "arena"

// FightTopic 单场对战频道
func FightTopic(fightID string) string {
	return "fight:" + fightID
}

// Event 推送给订阅者的消息，Payload 序列化为 JSON
type Event struct {
	Type      EventType   `json:"type"`
	FightID   string      `json:"fight_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent 创建事件
func NewEvent(eventType EventType, fightID string, payload interface{}) Event {
	return Event{
		Type:      eventType,
		FightID:   fightID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher 只负责发布，订阅由具体实现管理
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}
