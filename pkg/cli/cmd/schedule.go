package cmd

import (
	"context"

	"github.com/LENAX/pipeline-engine/pkg/cli/output"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/spf13/cobra"
)

var (
	scheduleCron     string
	scheduleTimezone string
)

// scheduleCmd schedule子命令
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "定时调度命令",
	Long:  `开启或关闭Workflow的Cron定时调度。到期的Workflow由 server 进程中的调度器触发。`,
}

// scheduleEnableCmd 开启定时调度
var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <workflow-id>",
	Short: "开启定时调度",
	Example: `  pipeline-engine schedule enable <id> --cron "0 2 * * *"
  pipeline-engine schedule enable <id> --cron "*/15 9-18 * * 1-5" --timezone Asia/Shanghai`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			wf, err := eng.EnableSchedule(context.Background(), args[0], scheduleCron, scheduleTimezone)
			if err != nil {
				return err
			}
			return printSchedule(wf)
		})
	},
}

// scheduleDisableCmd 关闭定时调度
var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <workflow-id>",
	Short: "关闭定时调度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			wf, err := eng.DisableSchedule(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printSchedule(wf)
		})
	},
}

func printSchedule(wf *types.Workflow) error {
	if outputJSON {
		return output.PrintJSON(wf)
	}
	if !wf.IsScheduled {
		output.Success("Workflow %s 的定时调度已关闭", wf.ID)
		return nil
	}
	output.Success("Workflow %s 定时调度: %s (%s)", wf.ID, wf.CronExpression, wf.Timezone)
	output.Info("下次运行: %s", formatTime(wf.NextRunAt))
	return nil
}

func init() {
	scheduleEnableCmd.Flags().StringVar(&scheduleCron, "cron", "", "5段Cron表达式：分 时 日 月 周")
	scheduleEnableCmd.Flags().StringVar(&scheduleTimezone, "timezone", types.DefaultTimezone, "IANA时区名")
	_ = scheduleEnableCmd.MarkFlagRequired("cron")

	scheduleCmd.AddCommand(scheduleEnableCmd)
	scheduleCmd.AddCommand(scheduleDisableCmd)
}
