package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// WebhookPayload POST到webhook的JSON结构
type WebhookPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Notification
}

// WebhookPlugin 以JSON POST投递通知，5xx和网络错误自动重试（对外导出）
type WebhookPlugin struct {
	name       string
	url        string
	authHeader string
	client     *retryablehttp.Client
	log        *zap.SugaredLogger
}

// NewWebhookPlugin 创建webhook插件（对外导出）
func NewWebhookPlugin() *WebhookPlugin {
	return &WebhookPlugin{
		name: "webhook",
		log:  logger.Named("plugin.webhook"),
	}
}

// Name 插件名称（实现Plugin接口）
func (w *WebhookPlugin) Name() string {
	return w.name
}

// Init 初始化插件（实现Plugin接口）
// 参数：url（必填）、authorization、timeout_seconds（默认10）、max_retries（默认3）
func (w *WebhookPlugin) Init(params map[string]string) error {
	w.url = params["url"]
	if w.url == "" {
		return errors.New("url参数不能为空")
	}
	w.authHeader = params["authorization"]

	timeout := 10 * time.Second
	if v := params["timeout_seconds"]; v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return errors.Newf("timeout_seconds参数格式错误: %s", v)
		}
		timeout = time.Duration(seconds) * time.Second
	}
	retries := 3
	if v := params["max_retries"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errors.Newf("max_retries参数格式错误: %s", v)
		}
		retries = n
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = retryLogger{w.log}
	w.client = client
	return nil
}

// Execute 发送webhook（实现Plugin接口）
func (w *WebhookPlugin) Execute(ctx context.Context, n Notification) DeliveryResult {
	if w.client == nil {
		return Failed(w.name, errors.New("webhook插件未初始化"))
	}

	payload, err := json.Marshal(WebhookPayload{Title: n.Title(), Message: n.Message(), Notification: n})
	if err != nil {
		return Failed(w.name, errors.Wrap(err, "序列化通知失败"))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return Failed(w.name, errors.Wrap(err, "创建请求失败"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pipeline-Event", string(n.Event))
	if w.authHeader != "" {
		req.Header.Set("Authorization", w.authHeader)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Failed(w.name, errors.Wrapf(err, "POST %s 失败", w.url))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(w.name, errors.Newf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}
	result := Delivered(w.name, fmt.Sprintf("Webhook accepted with status %d", resp.StatusCode))
	result.MessageID = resp.Header.Get("X-Request-Id")
	return result
}

// retryLogger 将retryablehttp的日志接到zap
type retryLogger struct {
	log *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}
func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}
func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}
func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

var (
	_ Plugin                      = (*WebhookPlugin)(nil)
	_ retryablehttp.LeveledLogger = retryLogger{}
)
