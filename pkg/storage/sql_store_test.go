package storage_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/LENAX/pipeline-engine/pkg/storage"
	"github.com/LENAX/pipeline-engine/pkg/storage/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedWorkflow(t *testing.T, store storage.Store, orders ...int) (*types.Workflow, []*types.Task) {
	t.Helper()
	wf := types.NewWorkflow("etl-"+uuid.NewString()[:6], "nightly etl")
	tasks := make([]*types.Task, 0, len(orders))
	for i, order := range orders {
		tasks = append(tasks, types.NewTask(wf.ID, "step"+string(rune('a'+i)), order, "print(1)", []string{"httpx"}))
	}
	require.NoError(t, store.CreateWorkflow(context.Background(), wf, tasks))
	return wf, tasks
}

func TestSQLStore_CreateAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, tasks := seedWorkflow(t, store, 2, 1)

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, got.Name)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, "UTC", got.Timezone)
	assert.False(t, got.IsScheduled)
	assert.Nil(t, got.StartedAt)
	assert.True(t, wf.CreatedAt.Truncate(time.Microsecond).Equal(got.CreatedAt))

	listed, err := store.ListTasks(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, tasks[1].ID, listed[0].ID)
	assert.Equal(t, 1, listed[0].Order)
	assert.Equal(t, []string{"httpx"}, listed[0].Requirements)
	assert.Equal(t, map[string]any{}, listed[0].TaskOutputs)
}

func TestSQLStore_GetMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetWorkflow(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
	_, err = store.GetTask(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(store.DeleteTask(ctx, "missing")))
	assert.True(t, errors.IsNotFound(store.DeleteWorkflow(ctx, "missing")))
}

func TestSQLStore_UpdateTaskRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, tasks := seedWorkflow(t, store, 1)

	task := tasks[0]
	now := time.Now()
	task.Status = types.StatusCompleted
	task.StartedAt = types.TimePtr(now.Add(-time.Second))
	task.CompletedAt = types.TimePtr(now)
	task.Output = "hello\n"
	task.TaskOutputs = map[string]any{"rows": float64(3), "nested": map[string]any{"ok": true}}
	require.NoError(t, store.UpdateTask(ctx, task))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, "hello\n", got.Output)
	assert.Equal(t, task.TaskOutputs, got.TaskOutputs)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Truncate(time.Microsecond).Equal(*got.CompletedAt))
	assert.Equal(t, time.UTC, got.CompletedAt.Location())
}

func TestSQLStore_MarkWorkflowRunningIsExclusive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, _ := seedWorkflow(t, store, 1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.MarkWorkflowRunning(ctx, wf.ID, time.Now(), uuid.NewString())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.IsConflict(err) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, conflicts)

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.NotEmpty(t, got.ExecutionHandle)
	assert.NotNil(t, got.StartedAt)

	_, err = store.MarkWorkflowRunning(ctx, "missing", time.Now(), "h")
	assert.True(t, errors.IsNotFound(err))
}

func TestSQLStore_MarkWorkflowRunningClearsPreviousRun(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, _ := seedWorkflow(t, store, 1)

	wf.Status = types.StatusFailed
	wf.ErrorMessage = "One or more tasks failed"
	wf.CompletedAt = types.TimePtr(time.Now())
	require.NoError(t, store.UpdateWorkflow(ctx, wf))

	got, err := store.MarkWorkflowRunning(ctx, wf.ID, time.Now(), "handle-2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, "handle-2", got.ExecutionHandle)
}

func TestSQLStore_DeleteWorkflow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, tasks := seedWorkflow(t, store, 1, 2)

	_, err := store.MarkWorkflowRunning(ctx, wf.ID, time.Now(), "h")
	require.NoError(t, err)
	assert.True(t, errors.IsConflict(store.DeleteWorkflow(ctx, wf.ID)))

	wf.Status = types.StatusCompleted
	require.NoError(t, store.UpdateWorkflow(ctx, wf))
	require.NoError(t, store.DeleteWorkflow(ctx, wf.ID))

	_, err = store.GetWorkflow(ctx, wf.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = store.GetTask(ctx, tasks[0].ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestSQLStore_ListCompletedBefore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, tasks := seedWorkflow(t, store, 1, 2, 3, 4)

	for _, i := range []int{0, 2, 3} {
		tasks[i].Status = types.StatusCompleted
		require.NoError(t, store.UpdateTask(ctx, tasks[i]))
	}
	tasks[1].Status = types.StatusFailed
	require.NoError(t, store.UpdateTask(ctx, tasks[1]))

	upstream, err := store.ListCompletedBefore(ctx, wf.ID, 4)
	require.NoError(t, err)
	require.Len(t, upstream, 2)
	assert.Equal(t, 1, upstream[0].Order)
	assert.Equal(t, 3, upstream[1].Order)
}

func TestSQLStore_ResetTasks(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, tasks := seedWorkflow(t, store, 1)

	tasks[0].Status = types.StatusFailed
	tasks[0].ErrorMessage = "boom"
	tasks[0].Output = "partial"
	tasks[0].TaskOutputs = map[string]any{"k": "v"}
	tasks[0].CompletedAt = types.TimePtr(time.Now())
	require.NoError(t, store.UpdateTask(ctx, tasks[0]))

	require.NoError(t, store.ResetTasks(ctx, wf.ID))

	got, err := store.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Empty(t, got.Output)
	assert.Empty(t, got.TaskOutputs)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, "print(1)", got.ScriptContent)
}

func TestSQLStore_ListDueWorkflows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

	due, _ := seedWorkflow(t, store)
	due.IsScheduled = true
	due.CronExpression = "0 2 * * *"
	due.NextRunAt = types.TimePtr(now.Add(-time.Minute))
	require.NoError(t, store.UpdateWorkflow(ctx, due))

	future, _ := seedWorkflow(t, store)
	future.IsScheduled = true
	future.NextRunAt = types.TimePtr(now.Add(time.Hour))
	require.NoError(t, store.UpdateWorkflow(ctx, future))

	running, _ := seedWorkflow(t, store)
	running.IsScheduled = true
	running.NextRunAt = types.TimePtr(now.Add(-time.Hour))
	running.Status = types.StatusRunning
	require.NoError(t, store.UpdateWorkflow(ctx, running))

	disabled, _ := seedWorkflow(t, store)
	disabled.NextRunAt = types.TimePtr(now.Add(-time.Hour))
	require.NoError(t, store.UpdateWorkflow(ctx, disabled))

	workflows, err := store.ListDueWorkflows(ctx, now)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, due.ID, workflows[0].ID)
}

func TestSQLStore_PurgeFinishedBefore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-7 * 24 * time.Hour)

	old, oldTasks := seedWorkflow(t, store, 1, 2)
	old.Status = types.StatusCompleted
	old.CompletedAt = types.TimePtr(cutoff.Add(-time.Hour))
	require.NoError(t, store.UpdateWorkflow(ctx, old))

	oldScheduled, _ := seedWorkflow(t, store, 1)
	oldScheduled.Status = types.StatusFailed
	oldScheduled.IsScheduled = true
	oldScheduled.CompletedAt = types.TimePtr(cutoff.Add(-time.Hour))
	require.NoError(t, store.UpdateWorkflow(ctx, oldScheduled))

	recent, _ := seedWorkflow(t, store, 1)
	recent.Status = types.StatusCompleted
	recent.CompletedAt = types.TimePtr(now)
	require.NoError(t, store.UpdateWorkflow(ctx, recent))

	result, err := store.PurgeFinishedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, storage.PurgeResult{Workflows: 1, Tasks: 2}, result)

	_, err = store.GetWorkflow(ctx, old.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = store.GetTask(ctx, oldTasks[0].ID)
	assert.True(t, errors.IsNotFound(err))

	remaining, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestSQLStore_StatusAndScheduleWritesAreIndependent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	wf, _ := seedWorkflow(t, store, 1)

	running, err := store.MarkWorkflowRunning(ctx, wf.ID, time.Now(), "run-1")
	require.NoError(t, err)

	// 运行期间开启定时调度，不能覆盖运行状态
	next := time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateSchedule(ctx, &types.Workflow{
		ID:             wf.ID,
		IsScheduled:    true,
		CronExpression: "0 2 * * *",
		Timezone:       "Asia/Shanghai",
		NextRunAt:      types.TimePtr(next),
	}))
	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Equal(t, "run-1", got.ExecutionHandle)
	assert.True(t, got.IsScheduled)
	assert.Equal(t, "Asia/Shanghai", got.Timezone)

	// 用运行开始时的快照写终态，不能覆盖调度字段
	running.Status = types.StatusCompleted
	running.CompletedAt = types.TimePtr(time.Now())
	require.NoError(t, store.UpdateWorkflowStatus(ctx, running))
	got, err = store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.True(t, got.IsScheduled)
	assert.Equal(t, "0 2 * * *", got.CronExpression)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, next.Equal(*got.NextRunAt))

	assert.True(t, errors.IsNotFound(store.UpdateSchedule(ctx, &types.Workflow{ID: "missing"})))
	assert.True(t, errors.IsNotFound(store.UpdateWorkflowStatus(ctx, &types.Workflow{ID: "missing", Status: types.StatusFailed})))
}

func TestSQLStore_ClaimScheduledRun(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	next := now.Add(24 * time.Hour)

	wf, _ := seedWorkflow(t, store, 1)
	require.NoError(t, store.UpdateSchedule(ctx, &types.Workflow{
		ID: wf.ID, IsScheduled: true, CronExpression: "0 6 * * *", Timezone: "UTC", NextRunAt: types.TimePtr(now),
	}))

	claimed, err := store.ClaimScheduledRun(ctx, wf.ID, now, next)
	require.NoError(t, err)
	assert.True(t, claimed)
	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, now.Equal(*got.LastRunAt))
	assert.True(t, next.Equal(*got.NextRunAt))
	assert.Equal(t, types.StatusPending, got.Status)

	_, err = store.MarkWorkflowRunning(ctx, wf.ID, now, "manual")
	require.NoError(t, err)
	claimed, err = store.ClaimScheduledRun(ctx, wf.ID, next, next.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed)
	got, err = store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Equal(t, "manual", got.ExecutionHandle)

	disabled, _ := seedWorkflow(t, store, 1)
	claimed, err = store.ClaimScheduledRun(ctx, disabled.ID, now, next)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = store.ClaimScheduledRun(ctx, "missing", now, next)
	assert.True(t, errors.IsNotFound(err))
}
