package cmd

import (
	"context"

	"github.com/LENAX/pipeline-engine/pkg/cli/output"
	"github.com/LENAX/pipeline-engine/pkg/core/engine"
	"github.com/spf13/cobra"
)

// cleanupCmd 按保留期清理已结束的运行记录
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "清理超过 cleanup.retention_days 的已结束Workflow和Task",
	Long: `删除 completed_at 早于保留期的 COMPLETED/FAILED 记录。
定时Workflow不会被清理。retention_days 为0时不清理任何记录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			result, err := eng.Purge(context.Background())
			if err != nil {
				return err
			}
			if outputJSON {
				return output.PrintJSON(result)
			}
			output.Success("已清理 %d 个Workflow，%d 个Task", result.Workflows, result.Tasks)
			return nil
		})
	},
}
