package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/cli/output"
	"github.com/LENAX/pipeline-engine/pkg/config"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/spf13/cobra"
)

var runTimeout time.Duration

// runCmd 从定义文件创建Workflow，执行一次并等待结束
var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "创建并运行Workflow，等待结束后输出Task结果",
	Long: `从YAML定义文件创建Workflow，立即执行一次并等待结束。

Ctrl+C 会取消正在执行的运行。Workflow未成功完成时命令以非零状态退出。

示例：
  pipeline-engine run ./workflows/etl.yaml
  pipeline-engine run ./workflows/etl.yaml --timeout 30m --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, tasks, err := loadDefinition(args[0])
		if err != nil {
			return err
		}

		return withEngine(func(eng *engine.Engine) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if runTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runTimeout)
				defer cancel()
			}

			done, err := runWorkflow(ctx, eng, wf, tasks)
			if err != nil {
				return err
			}
			final, err := eng.ListTasks(context.Background(), done.ID)
			if err != nil {
				return err
			}
			if err := printWorkflowReport(done, final); err != nil {
				return err
			}
			if done.Status != types.StatusCompleted {
				return errors.Newf("workflow %s finished with status %s", done.ID, done.Status)
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "等待运行结束的最长时间，超时后取消，0表示不限")
}

// loadDefinition 读取并转换Workflow定义文件
func loadDefinition(path string) (*types.Workflow, []*types.Task, error) {
	def, err := config.LoadWorkflowDefinition(path)
	if err != nil {
		return nil, nil, err
	}
	return def.Build()
}

// runWorkflow 保存、派发并等待运行结束；ctx结束时取消运行
func runWorkflow(ctx context.Context, eng *engine.Engine, wf *types.Workflow, tasks []*types.Task) (*types.Workflow, error) {
	bg := context.Background()
	created, err := eng.CreateWorkflow(bg, wf, tasks)
	if err != nil {
		return nil, err
	}
	if !outputJSON {
		output.Info("Workflow已创建: %s (%s)，共 %d 个Task", created.Name, created.ID, len(tasks))
	}

	if _, err := eng.Dispatch(bg, created.ID); err != nil {
		return nil, err
	}

	if err := eng.Wait(ctx, created.ID); err != nil && ctx.Err() != nil {
		if !outputJSON {
			output.Warning("运行被中断，正在取消: %v", ctx.Err())
		}
		if _, cancelErr := eng.Cancel(bg, created.ID); cancelErr != nil {
			return nil, cancelErr
		}
		// 等待Chain退出，避免Stop时Task状态还未落库
		waitCtx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		_ = eng.Wait(waitCtx, created.ID)
	}
	return eng.GetWorkflow(bg, created.ID)
}

// printWorkflowReport 输出Workflow状态和Task表格
func printWorkflowReport(wf *types.Workflow, tasks []*types.Task) error {
	if outputJSON {
		return output.PrintJSON(map[string]interface{}{
			"workflow": wf,
			"tasks":    tasks,
		})
	}

	output.Printf("Workflow: %s (%s)\n", wf.Name, wf.ID)
	output.Printf("Status:   %s\n", output.Status(string(wf.Status)))
	if wf.StartedAt != nil {
		output.Printf("Started:  %s\n", formatTime(wf.StartedAt))
	}
	if wf.CompletedAt != nil {
		output.Printf("Finished: %s\n", formatTime(wf.CompletedAt))
	}
	if wf.IsScheduled {
		output.Printf("Schedule: %s (%s) next %s\n", wf.CronExpression, wf.Timezone, formatTime(wf.NextRunAt))
	}
	if wf.ErrorMessage != "" {
		output.Printf("Error:    %s\n", wf.ErrorMessage)
	}
	output.Printf("\n")

	table := output.NewTable([]string{"ORDER", "TASK", "EXECUTOR", "STATUS", "DURATION", "ERROR"})
	for _, t := range tasks {
		executorName := t.Executor
		if executorName == "" {
			executorName = "-"
		}
		errMsg := "-"
		if t.ErrorMessage != "" {
			errMsg = output.Truncate(firstLine(t.ErrorMessage), 60)
		}
		table.AddRow([]string{
			itoa(t.Order),
			t.Name,
			executorName,
			string(t.Status),
			taskDuration(t),
			errMsg,
		})
	}
	table.Render()
	return nil
}
