package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prevWriter, prevNoColor := Writer, color.NoColor
	Writer, color.NoColor = buf, true
	t.Cleanup(func() { Writer, color.NoColor = prevWriter, prevNoColor })
	return buf
}

func TestTable_RenderAlignsColumns(t *testing.T) {
	buf := capture(t)

	table := NewTable([]string{"NAME", "STATUS"})
	table.AddRow([]string{"extract", "COMPLETED"})
	table.AddRow([]string{"清洗", "FAILED"})
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME     STATUS     ", lines[0])
	assert.Equal(t, "-------  ---------  ", lines[1])
	assert.Equal(t, "extract  COMPLETED  ", lines[2])
	assert.Equal(t, "清洗       FAILED     ", lines[3])
}

func TestMessagesAndJSON(t *testing.T) {
	buf := capture(t)

	Success("done %d", 1)
	Error("bad %s", "thing")
	require.NoError(t, PrintJSON(map[string]int{"a": 1}))

	out := buf.String()
	assert.Contains(t, out, "✅ done 1")
	assert.Contains(t, out, "❌ bad thing")
	assert.Contains(t, out, "\"a\": 1")
}

func TestTruncateAndStatus(t *testing.T) {
	capture(t)

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "FAILED", Status("FAILED"))
}
