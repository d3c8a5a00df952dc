package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailPlugin_InitValidation(t *testing.T) {
	assert.Error(t, NewEmailPlugin().Init(map[string]string{}))
	assert.Error(t, NewEmailPlugin().Init(map[string]string{"smtp_host": "smtp.local", "from": "a@b.c"}))
	assert.Error(t, NewEmailPlugin().Init(map[string]string{"smtp_host": "smtp.local", "smtp_port": "x", "from": "a@b.c", "to": "d@e.f"}))

	result := NewEmailPlugin().Execute(context.Background(), Notification{Event: EventTaskFailed})
	assert.False(t, result.Success)
}

func TestEmailPlugin_Execute(t *testing.T) {
	p := NewEmailPlugin()
	require.NoError(t, p.Init(map[string]string{
		"smtp_host": "smtp.local",
		"smtp_port": "2525",
		"username":  "bot@example.com",
		"password":  "secret",
		"to":        "ops@example.com, dev@example.com",
	}))

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Equal(t, "bot@example.com", from)
		return nil
	}

	result := p.Execute(context.Background(), Notification{
		Event:        EventWorkflowFailed,
		WorkflowID:   "wf-1",
		WorkflowName: "etl",
		Priority:     PriorityHigh,
		ErrorMessage: "One or more tasks failed",
		Metadata:     map[string]any{"total_tasks": 3},
		Timestamp:    time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC),
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "email", result.Provider)
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [HIGH] Workflow Failed: etl\r\n")
	assert.Contains(t, gotMsg, "Error: One or more tasks failed")
	assert.Contains(t, gotMsg, "total_tasks: 3")
}

func TestEmailPlugin_SendFailure(t *testing.T) {
	p := NewEmailPlugin()
	require.NoError(t, p.Init(map[string]string{"smtp_host": "smtp.local", "from": "a@b.c", "to": "d@e.f"}))
	p.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	result := p.Execute(context.Background(), Notification{Event: EventTaskCompleted})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "connection refused")
}

func TestWebhookPlugin_PostsJSON(t *testing.T) {
	var received WebhookPayload
	var header http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := NewWebhookPlugin()
	require.NoError(t, p.Init(map[string]string{"url": server.URL, "authorization": "Bearer token"}))

	result := p.Execute(context.Background(), Notification{
		Event:        EventTaskCompleted,
		WorkflowName: "etl",
		TaskName:     "load",
		Priority:     PriorityNormal,
		Metadata:     map[string]any{"output_size": 12},
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "req-42", result.MessageID)
	assert.Equal(t, "Task Completed: load", received.Title)
	assert.Equal(t, EventTaskCompleted, received.Event)
	assert.Equal(t, float64(12), received.Metadata["output_size"])
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "Bearer token", header.Get("Authorization"))
	assert.Equal(t, "task_completed", header.Get("X-Pipeline-Event"))
}

func TestWebhookPlugin_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookPlugin()
	require.NoError(t, p.Init(map[string]string{"url": server.URL, "max_retries": "3"}))

	result := p.Execute(context.Background(), Notification{Event: EventWorkflowStarted})
	assert.True(t, result.Success, result.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookPlugin_ClientErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewWebhookPlugin()
	require.NoError(t, p.Init(map[string]string{"url": server.URL, "max_retries": "0"}))

	result := p.Execute(context.Background(), Notification{Event: EventWorkflowStarted})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "webhook returned 400: bad payload")

	assert.Error(t, NewWebhookPlugin().Init(map[string]string{}))
	assert.Error(t, NewWebhookPlugin().Init(map[string]string{"url": "http://x", "timeout_seconds": "-1"}))
}

func TestEventBusPlugin_PublishSubscribe(t *testing.T) {
	bus := NewEventBusPlugin(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	result := bus.Execute(ctx, Notification{Event: EventWorkflowCompleted, WorkflowID: "wf-1"})
	require.True(t, result.Success, result.Error)
	assert.NotEmpty(t, result.MessageID)

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "workflow_completed", msg.Metadata.Get("event"))
		var n Notification
		require.NoError(t, json.Unmarshal(msg.Payload, &n))
		assert.Equal(t, "wf-1", n.WorkflowID)
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到事件")
	}
}

func TestLogPlugin_Execute(t *testing.T) {
	result := NewLogPlugin().Execute(context.Background(), Notification{
		Event:    EventTaskFailed,
		Priority: PriorityHigh,
		Metadata: map[string]any{"execution_time": 1.5},
	})
	assert.True(t, result.Success)
	assert.Equal(t, "log", result.Provider)
}
