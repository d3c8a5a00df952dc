package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputs_UsesLastSentinel(t *testing.T) {
	stdout := strings.Join([]string{
		"starting",
		`__TASK_OUTPUTS_START__{"key": "old"}__TASK_OUTPUTS_END__`,
		"some unrelated line",
		`__TASK_OUTPUTS_START__{"key": "value"}__TASK_OUTPUTS_END__`,
		"trailing noise",
	}, "\n")

	outputs := ParseOutputs(stdout)
	assert.Equal(t, map[string]any{"key": "value"}, outputs)
}

func TestParseOutputs_MissingOrMalformed(t *testing.T) {
	cases := map[string]string{
		"无标记":    "hello world\n",
		"JSON非法": "__TASK_OUTPUTS_START__{not json}__TASK_OUTPUTS_END__",
		"非对象":    "__TASK_OUTPUTS_START__[1, 2]__TASK_OUTPUTS_END__",
		"null":   "__TASK_OUTPUTS_START__null__TASK_OUTPUTS_END__",
		"缺少结束标记": "__TASK_OUTPUTS_START__{\"a\": 1}",
	}
	for name, stdout := range cases {
		t.Run(name, func(t *testing.T) {
			outputs := ParseOutputs(stdout)
			require.NotNil(t, outputs)
			assert.Empty(t, outputs)
		})
	}
}

func TestSentinelBridge_PrepareEmbedsUpstream(t *testing.T) {
	bridge := NewSentinelBridge()
	previous := []UpstreamOutput{
		{TaskName: "extract", TaskOrder: 1, Outputs: map[string]any{"rows": float64(3)}, RawOutput: "done\n"},
		{TaskName: "clean", TaskOrder: 2},
	}

	script, err := bridge.Prepare("print('hi')", previous)
	require.NoError(t, err)

	assert.Contains(t, script, "def get_task_output(")
	assert.Contains(t, script, "def set_task_output(")
	assert.True(t, strings.HasSuffix(script, "print('hi')\n"))

	encoded := regexp.MustCompile(`b64decode\("([A-Za-z0-9+/=]*)"\)`).FindStringSubmatch(script)
	require.Len(t, encoded, 2)
	raw, err := base64.StdEncoding.DecodeString(encoded[1])
	require.NoError(t, err)

	var decoded []UpstreamOutput
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "extract", decoded[0].TaskName)
	assert.Equal(t, float64(3), decoded[0].Outputs["rows"])
	assert.NotNil(t, decoded[1].Outputs)
	// 调用方的切片不应被修改
	assert.Nil(t, previous[1].Outputs)
}

func TestSentinelBridge_HoistsFutureImports(t *testing.T) {
	script := "# header\nfrom __future__ import annotations\nimport os\nprint(os.getcwd())\n"

	prepared, err := NewSentinelBridge().Prepare(script, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prepared, "from __future__ import annotations\n"))
	assert.Equal(t, 1, strings.Count(prepared, "from __future__ import annotations"))
}

func TestSentinelBridge_KeepsDocstringBeforeFutureImports(t *testing.T) {
	script := strings.Join([]string{
		"#!/usr/bin/env python3",
		`"""Nightly export.`,
		"",
		`Reads the staging table.`,
		`"""`,
		"from __future__ import annotations",
		"print(__doc__.splitlines()[0])",
	}, "\n")

	prepared, err := NewSentinelBridge().Prepare(script, nil)
	require.NoError(t, err)

	header := "\"\"\"Nightly export.\n\nReads the staging table.\n\"\"\"\nfrom __future__ import annotations\n"
	assert.True(t, strings.HasPrefix(prepared, header), prepared)
	assert.Equal(t, 1, strings.Count(prepared, "from __future__ import annotations"))
	assert.Less(t, strings.Index(prepared, "from __future__"), strings.Index(prepared, "def get_task_output("))

	python, err := exec.LookPath("python3")
	if err != nil {
		return
	}
	path := filepath.Join(t.TempDir(), "script.py")
	require.NoError(t, os.WriteFile(path, []byte(prepared), 0o600))
	out, err := exec.Command(python, path).CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Equal(t, "Nightly export.\n", string(out))
}

func TestSplitFutureImports_Header(t *testing.T) {
	cases := []struct {
		name   string
		script string
		header []string
	}{
		{"单行docstring", "'''Doc.'''\nfrom __future__ import annotations\nx = 1", []string{"'''Doc.'''", "from __future__ import annotations"}},
		{"普通字符串", "\"doc\"\nx = 1", []string{"\"doc\""}},
		{"字符串表达式不是docstring", "\"a\".join(items)\nfrom __future__ import annotations", nil},
		{"代码之后的future不提前", "x = 1\nfrom __future__ import annotations", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header, _ := splitFutureImports(tc.script)
			assert.Equal(t, tc.header, header)
		})
	}
}

func TestCollect_OnlyCompletedInOrder(t *testing.T) {
	a := types.NewTask("wf", "a", 5, "", nil)
	a.Status = types.StatusCompleted
	a.TaskOutputs = map[string]any{"x": 1}
	b := types.NewTask("wf", "b", 1, "", nil)
	b.Status = types.StatusCompleted
	b.TaskOutputs = nil
	c := types.NewTask("wf", "c", 3, "", nil)
	c.Status = types.StatusFailed

	outputs := Collect([]*types.Task{a, b, c})
	require.Len(t, outputs, 2)
	assert.Equal(t, "b", outputs[0].TaskName)
	assert.Equal(t, 1, outputs[0].TaskOrder)
	assert.NotNil(t, outputs[0].Outputs)
	assert.Equal(t, "a", outputs[1].TaskName)
}

func TestSentinelBridge_PythonRoundTrip(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 不可用，跳过")
	}

	bridge := NewSentinelBridge()
	script := strings.Join([]string{
		"print('before')",
		"prev = get_task_output('extract')",
		"set_task_output('key', 'value')",
		"set_task_output('rows', prev.get('rows', 0) + 1)",
		"print('after')",
	}, "\n")
	prepared, err := bridge.Prepare(script, []UpstreamOutput{
		{TaskName: "extract", TaskOrder: 1, Outputs: map[string]any{"rows": 2}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "script.py")
	require.NoError(t, os.WriteFile(path, []byte(prepared), 0o600))

	out, err := exec.Command(python, path).Output()
	require.NoError(t, err)

	stdout := string(out)
	assert.Contains(t, stdout, "before")
	assert.Contains(t, stdout, "after")
	assert.Equal(t, map[string]any{"key": "value", "rows": float64(3)}, bridge.Extract(stdout))
}
