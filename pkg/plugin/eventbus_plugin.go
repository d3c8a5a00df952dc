package plugin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// EventsTopic 事件总线主题
const EventsTopic = "pipeline.events"

// EventBusPlugin 将通知以JSON发布到进程内watermill总线（对外导出）
// WebSocket等实时消费者通过Subscribe订阅
type EventBusPlugin struct {
	name   string
	pubsub *gochannel.GoChannel
}

// NewEventBusPlugin 创建事件总线插件（对外导出）
func NewEventBusPlugin(logger watermill.LoggerAdapter) *EventBusPlugin {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &EventBusPlugin{
		name: "eventbus",
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            256,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: false,
			},
			logger,
		),
	}
}

// Name 插件名称（实现Plugin接口）
func (b *EventBusPlugin) Name() string {
	return b.name
}

// Init 无需参数（实现Plugin接口）
func (b *EventBusPlugin) Init(map[string]string) error {
	return nil
}

// Execute 发布通知（实现Plugin接口）
func (b *EventBusPlugin) Execute(_ context.Context, n Notification) DeliveryResult {
	payload, err := json.Marshal(n)
	if err != nil {
		return Failed(b.name, errors.Wrap(err, "序列化事件失败"))
	}

	id := uuid.NewString()
	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("event", string(n.Event))
	msg.Metadata.Set("workflow_id", n.WorkflowID)
	msg.Metadata.Set("task_id", n.TaskID)
	msg.Metadata.Set("timestamp", n.Timestamp.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(EventsTopic, msg); err != nil {
		return Failed(b.name, errors.Wrap(err, "发布事件失败"))
	}
	result := Delivered(b.name, "Event published")
	result.MessageID = id
	return result
}

// Subscribe 订阅事件流，ctx取消后通道关闭
// 消费者必须对每条消息调用Ack，否则后续消息不会送达
func (b *EventBusPlugin) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	messages, err := b.pubsub.Subscribe(ctx, EventsTopic)
	if err != nil {
		return nil, errors.Wrap(err, "订阅事件失败")
	}
	return messages, nil
}

// Close 关闭总线
func (b *EventBusPlugin) Close() error {
	return b.pubsub.Close()
}

var _ Plugin = (*EventBusPlugin)(nil)
