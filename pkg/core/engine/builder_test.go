package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/config"
	"github.com/LENAX/pipeline-engine/pkg/core/executor"
	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePlugin struct {
	mu     sync.Mutex
	events []plugin.Event
}

func (c *capturePlugin) Name() string                 { return "capture" }
func (c *capturePlugin) Init(map[string]string) error { return nil }
func (c *capturePlugin) Execute(_ context.Context, n plugin.Notification) plugin.DeliveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, n.Event)
	return plugin.Delivered("capture", "ok")
}

func (c *capturePlugin) has(event plugin.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.EngineConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.PipelineEngine.Storage.Database.DSN = filepath.Join(t.TempDir(), "builder.db")
	cfg.PipelineEngine.Execution.DefaultExecutor = executor.NameDirect
	cfg.PipelineEngine.Notifications.Plugins = []config.PluginConfig{{Type: config.PluginTypeLog}}
	return cfg
}

func fakeRegistry(t *testing.T) *executor.Registry {
	t.Helper()
	backend := &scriptBackend{mu: &sync.Mutex{}, previous: map[string][]pipeline.UpstreamOutput{}}
	registry := executor.NewRegistry()
	require.NoError(t, registry.Register(executor.NameDirect, func() (executor.Backend, error) { return backend, nil }))
	return registry
}

func TestEngineBuilder_BuildAndRun(t *testing.T) {
	capture := &capturePlugin{}
	eng, err := NewEngineBuilder(testConfig(t)).
		WithBackends(fakeRegistry(t)).
		WithPlugin(capture).
		WithPluginBinding(plugin.PluginBinding{PluginName: "capture", Event: plugin.EventWorkflowCompleted}).
		Build()
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop()

	assert.ElementsMatch(t, []string{"capture", "log"}, eng.PluginManager().ListPlugins())
	require.NotNil(t, eng.EventBus())

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	messages, err := eng.EventBus().Subscribe(subCtx)
	require.NoError(t, err)

	wf, err := eng.CreateWorkflow(ctx, types.NewWorkflow("built", ""), []*types.Task{types.NewTask("", "extract", 1, "extract", nil)})
	require.NoError(t, err)
	_, err = eng.Dispatch(ctx, wf.ID)
	require.NoError(t, err)

	select {
	case msg := <-messages:
		msg.Ack()
		var n plugin.Notification
		require.NoError(t, json.Unmarshal(msg.Payload, &n))
		assert.Equal(t, plugin.EventWorkflowStarted, n.Event)
		assert.Equal(t, wf.ID, n.WorkflowID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received from the bus")
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	require.NoError(t, eng.Wait(waitCtx, wf.ID))
	assert.Eventually(t, func() bool { return capture.has(plugin.EventWorkflowCompleted) }, time.Second, 10*time.Millisecond)
	assert.False(t, capture.has(plugin.EventTaskStarted))
}

func TestEngineBuilder_Errors(t *testing.T) {
	_, err := NewEngineBuilder(testConfig(t)).WithPlugin(nil).Build()
	assert.Error(t, err)

	_, err = NewEngineBuilder(testConfig(t)).
		WithBackends(fakeRegistry(t)).
		WithPluginBinding(plugin.PluginBinding{PluginName: "ghost", Event: plugin.EventTaskFailed}).
		Build()
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.PipelineEngine.Execution.DefaultExecutor = executor.NameDocker
	_, err = NewEngineBuilder(cfg).WithBackends(fakeRegistry(t)).Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	cfg = testConfig(t)
	cfg.PipelineEngine.Notifications.Plugins = []config.PluginConfig{{Type: config.PluginTypeWebhook}}
	_, err = NewEngineBuilder(cfg).WithBackends(fakeRegistry(t)).Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}
