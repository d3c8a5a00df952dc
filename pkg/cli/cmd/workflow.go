package cmd

import (
	"context"
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/cli/output"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/spf13/cobra"
)

var workflowStatus string

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Workflow管理命令",
	Long:  `管理Workflow，包括创建、列出、查看状态、取消和删除。`,
}

// workflowListCmd 列出Workflow
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有Workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			workflows, err := eng.ListWorkflows(context.Background())
			if err != nil {
				return err
			}
			if workflowStatus != "" {
				status, ok := types.ParseStatus(strings.ToUpper(workflowStatus))
				if !ok {
					output.Warning("未知状态 %s，忽略过滤", workflowStatus)
				} else {
					filtered := workflows[:0]
					for _, wf := range workflows {
						if wf.Status == status {
							filtered = append(filtered, wf)
						}
					}
					workflows = filtered
				}
			}

			if outputJSON {
				return output.PrintJSON(workflows)
			}
			if len(workflows) == 0 {
				output.Info("暂无Workflow")
				return nil
			}

			table := output.NewTable([]string{"ID", "NAME", "STATUS", "CRON", "NEXT_RUN", "RUNS", "CREATED"})
			for _, wf := range workflows {
				cronStr := "-"
				if wf.IsScheduled {
					cronStr = wf.CronExpression
				}
				table.AddRow([]string{
					wf.ID,
					wf.Name,
					string(wf.Status),
					cronStr,
					formatTime(wf.NextRunAt),
					itoa(wf.RunCount),
					formatTime(&wf.CreatedAt),
				})
			}
			table.Render()
			return nil
		})
	},
}

// workflowCreateCmd 从定义文件创建Workflow，不执行
var workflowCreateCmd = &cobra.Command{
	Use:   "create <workflow.yaml>",
	Short: "从定义文件创建Workflow（不执行）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, tasks, err := loadDefinition(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(eng *engine.Engine) error {
			created, err := eng.CreateWorkflow(context.Background(), wf, tasks)
			if err != nil {
				return err
			}
			if outputJSON {
				return output.PrintJSON(created)
			}
			output.Success("Workflow已创建: %s (%s)", created.Name, created.ID)
			if created.IsScheduled {
				output.Info("定时调度: %s (%s)，下次运行 %s", created.CronExpression, created.Timezone, formatTime(created.NextRunAt))
			}
			return nil
		})
	},
}

// workflowStatusCmd 查看Workflow状态
var workflowStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "查看Workflow及其Task的状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			ctx := context.Background()
			wf, err := eng.GetWorkflow(ctx, args[0])
			if err != nil {
				return err
			}
			tasks, err := eng.ListTasks(ctx, wf.ID)
			if err != nil {
				return err
			}
			return printWorkflowReport(wf, tasks)
		})
	},
}

// workflowCancelCmd 取消Workflow
var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消Workflow运行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			wf, err := eng.Cancel(context.Background(), args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return output.PrintJSON(wf)
			}
			output.Success("Workflow %s 当前状态: %s", wf.ID, wf.Status)
			return nil
		})
	},
}

// workflowDeleteCmd 删除Workflow
var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除Workflow及其Task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			if err := eng.DeleteWorkflow(context.Background(), args[0]); err != nil {
				return err
			}
			output.Success("Workflow已删除: %s", args[0])
			return nil
		})
	},
}

func init() {
	workflowListCmd.Flags().StringVar(&workflowStatus, "status", "", "按状态过滤 (PENDING/RUNNING/COMPLETED/FAILED/CANCELLED)")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowCreateCmd)
	workflowCmd.AddCommand(workflowStatusCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
	workflowCmd.AddCommand(workflowDeleteCmd)
}
