package event

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// 领域事件类型
const (
	RequestCreated          = "request.created"
	RequestResponded        = "request.responded"
	RequestJoined           = "request.joined"
	AssignmentCreated       = "assignment.created"
	AssignmentStatusChanged = "assignment.status_changed"
	ExchangeUpdated         = "exchange.updated"
	ExchangeReset           = "exchange.reset"
)

// Event 状态变更事件，供通知模块订阅
type Event struct {
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New 构造事件
func New(eventType, entityID string, data map[string]any) Event {
	return Event{
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher 事件发布接口
// 发布失败只记录日志，不影响业务操作
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop 丢弃所有事件（Redis 不可用或测试时使用）
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Sink 消息通道抽象，由 pkg/redis.Client 实现
type Sink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type channelPublisher struct {
	sink    Sink
	channel string
	logger  *zap.Logger
}

// NewChannelPublisher 以 JSON 发布到指定频道
func NewChannelPublisher(sink Sink, channel string, logger *zap.Logger) Publisher {
	return &channelPublisher{sink: sink, channel: channel, logger: logger}
}

func (p *channelPublisher) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("序列化事件失败", zap.String("type", e.Type), zap.Error(err))
		return
	}
	if err := p.sink.Publish(ctx, p.channel, payload); err != nil {
		p.logger.Warn("发布事件失败",
			zap.String("type", e.Type),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}
