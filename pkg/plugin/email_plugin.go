package plugin

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"sort"
	"strconv"
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"go.uber.org/zap"
)

// EmailPlugin 邮件通知插件（对外导出）
type EmailPlugin struct {
	name     string
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	enabled  bool
	log      *zap.SugaredLogger

	// sendMail 默认为smtp.SendMail，测试中替换
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailPlugin 创建邮件通知插件（对外导出）
func NewEmailPlugin() *EmailPlugin {
	return &EmailPlugin{
		name:     "email",
		log:      logger.Named("plugin.email"),
		sendMail: smtp.SendMail,
	}
}

// Name 插件名称（实现Plugin接口）
func (e *EmailPlugin) Name() string {
	return e.name
}

// Init 初始化插件（实现Plugin接口）
// 参数：smtp_host、smtp_port（默认587）、username、password、from、to（逗号分隔）
func (e *EmailPlugin) Init(params map[string]string) error {
	e.smtpHost = params["smtp_host"]
	if e.smtpHost == "" {
		return errors.New("smtp_host参数不能为空")
	}

	e.smtpPort = 587
	if portStr := params["smtp_port"]; portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return errors.Wrap(err, "smtp_port参数格式错误")
		}
		e.smtpPort = port
	}

	// 用户名和密码（可选，用于认证）
	e.username = params["username"]
	e.password = params["password"]

	e.from = params["from"]
	if e.from == "" {
		e.from = e.username
	}
	if e.from == "" {
		return errors.New("from参数不能为空")
	}

	e.to = e.to[:0]
	for _, addr := range strings.Split(params["to"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			e.to = append(e.to, addr)
		}
	}
	if len(e.to) == 0 {
		return errors.New("to参数不能为空")
	}

	e.enabled = true
	e.log.Infow("邮件插件初始化完成", "smtp", fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort), "from", e.from, "to", e.to)
	return nil
}

// Execute 发送邮件（实现Plugin接口）
func (e *EmailPlugin) Execute(ctx context.Context, n Notification) DeliveryResult {
	if !e.enabled {
		return Failed(e.name, errors.New("邮件插件未初始化"))
	}
	if err := ctx.Err(); err != nil {
		return Failed(e.name, err)
	}

	subject := e.buildSubject(n)
	if err := e.send(subject, e.buildBody(n)); err != nil {
		e.log.Warnw("发送邮件失败", "event", n.Event, "error", err)
		return Failed(e.name, err)
	}

	e.log.Debugw("邮件发送成功", "event", n.Event, "subject", subject)
	return Delivered(e.name, fmt.Sprintf("Email sent to %d recipient(s)", len(e.to)))
}

// buildSubject 构建邮件主题
func (e *EmailPlugin) buildSubject(n Notification) string {
	if n.Priority.Level() >= PriorityHigh.Level() {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Priority)), n.Title())
	}
	return n.Title()
}

// buildBody 构建邮件正文
func (e *EmailPlugin) buildBody(n Notification) string {
	var body strings.Builder
	body.WriteString(n.Message())
	body.WriteString("\n\n")
	fmt.Fprintf(&body, "Event: %s\n", n.Event)
	fmt.Fprintf(&body, "Priority: %s\n", n.Priority)
	if n.WorkflowID != "" {
		fmt.Fprintf(&body, "Workflow ID: %s\n", n.WorkflowID)
	}
	if n.TaskID != "" {
		fmt.Fprintf(&body, "Task ID: %s\n", n.TaskID)
	}
	fmt.Fprintf(&body, "Time: %s\n", n.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	if len(n.Metadata) > 0 {
		body.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(n.Metadata))
		for k := range n.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&body, "  %s: %v\n", k, n.Metadata[k])
		}
	}
	return body.String()
}

// send 发送邮件，465端口走隐式TLS，其余端口由smtp.SendMail协商STARTTLS
func (e *EmailPlugin) send(subject, body string) error {
	message := e.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}
	if e.smtpPort == 465 {
		return e.sendTLS(addr, auth, message)
	}
	return e.sendMail(addr, auth, e.from, e.to, []byte(message))
}

// sendTLS 通过TLS发送邮件（用于465端口）
func (e *EmailPlugin) sendTLS(addr string, auth smtp.Auth, message string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.smtpHost})
	if err != nil {
		return errors.Wrap(err, "TLS连接失败")
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return errors.Wrap(err, "创建SMTP客户端失败")
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return errors.Wrap(err, "SMTP认证失败")
		}
	}
	if err := client.Mail(e.from); err != nil {
		return errors.Wrap(err, "设置发件人失败")
	}
	for _, to := range e.to {
		if err := client.Rcpt(to); err != nil {
			return errors.Wrapf(err, "设置收件人 %s 失败", to)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "获取数据写入器失败")
	}
	if _, err := writer.Write([]byte(message)); err != nil {
		return errors.Wrap(err, "写入邮件内容失败")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "关闭数据写入器失败")
	}
	return client.Quit()
}

// buildMessage 构建邮件消息
func (e *EmailPlugin) buildMessage(subject, body string) string {
	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", e.from)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}

var _ Plugin = (*EmailPlugin)(nil)
