package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WorkflowDefinition Workflow定义文件（对外导出）
type WorkflowDefinition struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	CreatedBy   string              `yaml:"created_by"`
	Executor    string              `yaml:"executor"` // Task未指定时的执行器
	Params      map[string]string   `yaml:"params"`   // 脚本中 ${name} 的替换值
	Schedule    *ScheduleDefinition `yaml:"schedule"`
	Tasks       []TaskDefinition    `yaml:"tasks"`

	// SourcePath 定义文件路径，script_file 相对于它所在目录解析
	SourcePath string `yaml:"-"`
}

// ScheduleDefinition 定时调度定义
type ScheduleDefinition struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// TaskDefinition Task定义
type TaskDefinition struct {
	Name         string   `yaml:"name"`
	Order        int      `yaml:"order"`
	Executor     string   `yaml:"executor"`
	Requirements []string `yaml:"requirements"`
	Script       string   `yaml:"script"`
	ScriptFile   string   `yaml:"script_file"`
}

// LoadWorkflowDefinition 加载Workflow定义文件（对外导出）
func LoadWorkflowDefinition(path string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "读取Workflow定义 %s 失败", path), errors.ErrInvalidRequest)
	}
	def, err := ParseWorkflowDefinition(data)
	if err != nil {
		return nil, errors.Wrapf(err, "解析Workflow定义 %s 失败", path)
	}
	def.SourcePath = path
	return def, nil
}

// ParseWorkflowDefinition 从YAML解析Workflow定义
func ParseWorkflowDefinition(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidRequest)
	}
	return &def, nil
}

// ValidateWorkflowDefinition 校验Workflow定义合法性
func ValidateWorkflowDefinition(def *WorkflowDefinition) error {
	if def == nil {
		return invalidf("workflow definition is empty")
	}
	if strings.TrimSpace(def.Name) == "" {
		return invalidf("name不能为空")
	}
	if def.Schedule != nil && strings.TrimSpace(def.Schedule.Cron) == "" {
		return invalidf("schedule.cron不能为空")
	}

	names := make(map[string]bool, len(def.Tasks))
	for i, t := range def.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return invalidf("tasks[%d].name不能为空", i)
		}
		if names[t.Name] {
			return invalidf("tasks中存在重复的name: %s", t.Name)
		}
		names[t.Name] = true

		hasScript := strings.TrimSpace(t.Script) != ""
		hasFile := strings.TrimSpace(t.ScriptFile) != ""
		if hasScript == hasFile {
			return invalidf("tasks[%d] 必须且只能设置 script 或 script_file 之一", i)
		}
	}
	return nil
}

// Build 转换为Workflow和Task（对外导出）
// order为0的Task按在文件中的位置编号；脚本中的 ${name} 使用 params 替换
func (d *WorkflowDefinition) Build() (*types.Workflow, []*types.Task, error) {
	if err := ValidateWorkflowDefinition(d); err != nil {
		return nil, nil, err
	}

	wf := types.NewWorkflow(d.Name, d.Description)
	wf.CreatedBy = d.CreatedBy
	if d.Schedule != nil {
		wf.IsScheduled = true
		wf.CronExpression = strings.TrimSpace(d.Schedule.Cron)
		if d.Schedule.Timezone != "" {
			wf.Timezone = d.Schedule.Timezone
		}
	}

	tasks := make([]*types.Task, 0, len(d.Tasks))
	for i, td := range d.Tasks {
		script, err := d.loadScript(td)
		if err != nil {
			return nil, nil, err
		}
		script, _ = ReplacePlaceholders(script, MapLookup(d.Params))

		order := td.Order
		if order == 0 {
			order = i + 1
		}
		t := types.NewTask(wf.ID, td.Name, order, script, td.Requirements)
		t.Executor = td.Executor
		if t.Executor == "" {
			t.Executor = d.Executor
		}
		tasks = append(tasks, t)
	}
	return wf, tasks, nil
}

func (d *WorkflowDefinition) loadScript(td TaskDefinition) (string, error) {
	if td.ScriptFile == "" {
		return td.Script, nil
	}
	path := td.ScriptFile
	if !filepath.IsAbs(path) && d.SourcePath != "" {
		path = filepath.Join(filepath.Dir(d.SourcePath), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "读取Task %s 的脚本文件失败", td.Name), errors.ErrInvalidRequest)
	}
	return string(data), nil
}

func invalidf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), errors.ErrInvalidRequest)
}
