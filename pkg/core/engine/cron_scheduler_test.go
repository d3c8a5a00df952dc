package engine

import (
	"context"
	"testing"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNextRun_Timezone(t *testing.T) {
	from := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

	next, err := ComputeNextRun("0 2 * * *", "America/New_York", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.UTC, next.Location())

	next, err = ComputeNextRun("0 2 * * *", "", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC), next)
}

func TestComputeNextRun_StrictlyAfter(t *testing.T) {
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next, err := ComputeNextRun("0 12 * * *", "UTC", from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(24*time.Hour), next)
}

func TestComputeNextRun_Errors(t *testing.T) {
	from := time.Now()

	_, err := ComputeNextRun("0 2 * * *", "Mars/Olympus", from)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	_, err = ComputeNextRun("61 * * * *", "UTC", from)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("*/15 9-17 * * 1-5"))
	for _, expr := range []string{"", "@daily", "* * * *", "0 * * * * *", "a b c d e"} {
		err := ValidateCron(expr)
		assert.Error(t, err, expr)
		assert.True(t, errors.Is(err, errors.ErrConfiguration), expr)
	}
}

func TestEngine_EnableAndDisableSchedule(t *testing.T) {
	env := newTestEnv(t)
	wf, _ := env.createWorkflow(t, "extract")
	ctx := context.Background()

	_, err := env.engine.EnableSchedule(ctx, wf.ID, "bad", "UTC")
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	enabled, err := env.engine.EnableSchedule(ctx, wf.ID, "30 1 * * *", "Asia/Shanghai")
	require.NoError(t, err)
	assert.True(t, enabled.IsScheduled)
	require.NotNil(t, enabled.NextRunAt)
	assert.Equal(t, 17, enabled.NextRunAt.Hour())
	assert.Equal(t, 30, enabled.NextRunAt.Minute())

	disabled, err := env.engine.DisableSchedule(ctx, wf.ID)
	require.NoError(t, err)
	assert.False(t, disabled.IsScheduled)
	assert.Nil(t, disabled.NextRunAt)

	got, err := env.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.False(t, got.IsScheduled)
	assert.Nil(t, got.NextRunAt)
}

func TestEngine_TickDispatchesDueWorkflows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due, _ := env.createWorkflow(t, "extract")
	due.IsScheduled = true
	due.CronExpression = "*/5 * * * *"
	due.NextRunAt = types.TimePtr(now.Add(-time.Minute))
	require.NoError(t, env.store.UpdateWorkflow(ctx, due))

	later, _ := env.createWorkflow(t, "extract")
	later.IsScheduled = true
	later.CronExpression = "*/5 * * * *"
	later.NextRunAt = types.TimePtr(now.Add(time.Hour))
	require.NoError(t, env.store.UpdateWorkflow(ctx, later))

	dispatched, err := env.engine.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, env.engine.Wait(waitCtx, due.ID))

	got, err := env.store.GetWorkflow(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(now))
	assert.Equal(t, types.StatusCompleted, got.Status)

	untouched, err := env.store.GetWorkflow(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, untouched.RunCount)
	assert.Equal(t, types.StatusPending, untouched.Status)
	assert.Equal(t, 1, env.notifier.count(plugin.EventWorkflowScheduled))
}

func TestEngine_TickRetriesBrokenSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	wf, _ := env.createWorkflow(t, "extract")
	wf.IsScheduled = true
	wf.CronExpression = "0 2 * * *"
	wf.Timezone = "Nowhere/Invalid"
	wf.NextRunAt = types.TimePtr(now.Add(-time.Minute))
	require.NoError(t, env.store.UpdateWorkflow(ctx, wf))

	_, err := env.engine.Tick(ctx, now)
	require.NoError(t, err)

	got, err := env.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.WithinDuration(t, now.Add(5*time.Minute), *got.NextRunAt, time.Second)
}

func TestEngine_EnableScheduleDoesNotRewriteRunState(t *testing.T) {
	hooks := &hookStore{}
	env := newHookedTestEnv(t, hooks)
	wf, _ := env.createWorkflow(t, "gate")
	ctx := context.Background()

	_, err := env.engine.Dispatch(ctx, wf.ID)
	require.NoError(t, err)

	enabled, err := env.engine.EnableSchedule(ctx, wf.ID, "0 2 * * *", "UTC")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, enabled.Status)
	assert.True(t, enabled.IsScheduled)

	// 调度写入之前运行结束
	hooks.beforeSchedule = func() {
		close(env.backend.gate)
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		assert.NoError(t, env.engine.Wait(waitCtx, wf.ID))
	}
	updated, err := env.engine.EnableSchedule(ctx, wf.ID, "30 3 * * *", "UTC")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, updated.Status)
	assert.True(t, updated.IsScheduled)
	assert.Equal(t, "30 3 * * *", updated.CronExpression)

	got, err := env.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	hooks.beforeSchedule = nil
	_, err = env.engine.Dispatch(ctx, wf.ID)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, env.engine.Wait(waitCtx, wf.ID))
	assert.Equal(t, 2, env.backend.runCount("gate"))

	got, err = env.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.True(t, got.IsScheduled)
}

func TestEngine_TickSkipsWorkflowDispatchedAfterScan(t *testing.T) {
	hooks := &hookStore{}
	env := newHookedTestEnv(t, hooks)
	ctx := context.Background()
	now := time.Now().UTC()

	wf, _ := env.createWorkflow(t, "gate")
	wf.IsScheduled = true
	wf.CronExpression = "*/5 * * * *"
	wf.NextRunAt = types.TimePtr(now.Add(-time.Minute))
	require.NoError(t, env.store.UpdateWorkflow(ctx, wf))

	var manual string
	hooks.afterListDue = func() {
		handle, err := env.engine.Dispatch(ctx, wf.ID)
		require.NoError(t, err)
		manual = handle
	}
	dispatched, err := env.engine.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)

	got, err := env.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Equal(t, manual, got.ExecutionHandle)
	assert.Equal(t, 0, got.RunCount)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Before(now))
	assert.Equal(t, 0, env.notifier.count(plugin.EventWorkflowScheduled))

	close(env.backend.gate)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, env.engine.Wait(waitCtx, wf.ID))
	assert.Equal(t, 1, env.backend.runCount("gate"))
}

func TestEngine_TickSkipsScheduleDisabledAfterScan(t *testing.T) {
	hooks := &hookStore{}
	env := newHookedTestEnv(t, hooks)
	ctx := context.Background()
	now := time.Now().UTC()

	wf, _ := env.createWorkflow(t, "extract")
	wf.IsScheduled = true
	wf.CronExpression = "*/5 * * * *"
	wf.NextRunAt = types.TimePtr(now.Add(-time.Minute))
	require.NoError(t, env.store.UpdateWorkflow(ctx, wf))

	hooks.afterListDue = func() {
		_, err := env.engine.DisableSchedule(ctx, wf.ID)
		require.NoError(t, err)
	}
	dispatched, err := env.engine.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)

	got, err := env.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.False(t, got.IsScheduled)
	assert.Equal(t, "*/5 * * * *", got.CronExpression)
	assert.Equal(t, 0, env.backend.runCount("extract"))
}
