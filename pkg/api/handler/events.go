package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/api/dto"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 跨域由CORS中间件处理
		return true
	},
}

// EventBus 事件流来源
type EventBus interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// EventsHandler 实时事件推送处理器
type EventsHandler struct {
	bus EventBus
}

// NewEventsHandler 创建EventsHandler，bus为nil时接口返回503
func NewEventsHandler(bus *plugin.EventBusPlugin) *EventsHandler {
	h := &EventsHandler{}
	if bus != nil {
		h.bus = bus
	}
	return h
}

// Stream 通过WebSocket推送通知事件，可按 workflow_id 过滤
// GET /api/v1/events/ws
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(http.StatusServiceUnavailable, "event bus not configured"))
		return
	}
	log := logger.Named("api.events")
	workflowID := c.Query("workflow_id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 先订阅再升级，握手完成时订阅已生效
	messages, err := h.bus.Subscribe(ctx)
	if err != nil {
		log.Errorw("订阅事件失败", "error", err)
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(http.StatusInternalServerError, "subscribe failed"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnw("WebSocket升级失败", "error", err)
		return
	}
	defer conn.Close()
	log.Infow("事件订阅已建立", "remote", c.Request.RemoteAddr, "workflow_id", workflowID)

	// 读循环只用于感知客户端断开
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infow("事件订阅已关闭", "remote", c.Request.RemoteAddr)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			msg.Ack()
			if workflowID != "" && msg.Metadata.Get("workflow_id") != workflowID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Debugw("推送事件失败，断开连接", "error", err)
				return
			}
		}
	}
}
