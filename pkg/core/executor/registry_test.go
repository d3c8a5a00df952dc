package executor

import (
	"context"
	"testing"
	"time"

	"github.com/LENAX/pipeline-engine/pkg/core/pipeline"
	"github.com/LENAX/pipeline-engine/pkg/core/types"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBackend struct{}

func (nopBackend) Name() string { return "nop" }
func (nopBackend) Execute(context.Context, string, []string, time.Duration, []pipeline.UpstreamOutput) *types.ExecutionResult {
	return &types.ExecutionResult{Success: true, TaskOutputs: map[string]any{}}
}
func (nopBackend) Cleanup() {}

func TestDefaultRegistry_Names(t *testing.T) {
	r := NewDefaultRegistry(DefaultOptions())
	assert.Equal(t, []string{NameDirect, NameDocker, NameVirtualenv}, r.Names())
	assert.True(t, r.Has(NameVirtualenv))
}

func TestRegistry_UnknownExecutor(t *testing.T) {
	r := NewDefaultRegistry(DefaultOptions())

	backend, err := r.Create("kubernetes")
	require.Error(t, err)
	assert.Nil(t, backend)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Contains(t, err.Error(), "unknown executor: kubernetes")
}

func TestRegistry_CreateReturnsFreshInstances(t *testing.T) {
	r := NewDefaultRegistry(DefaultOptions())

	first, err := r.Create(NameDirect)
	require.NoError(t, err)
	second, err := r.Create(NameDirect)
	require.NoError(t, err)

	assert.Equal(t, NameDirect, first.Name())
	assert.NotSame(t, first, second)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()
	factory := func() (Backend, error) { return nopBackend{}, nil }

	require.NoError(t, r.Register("nop", factory))
	assert.Error(t, r.Register("nop", factory), "重复注册应失败")
	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("nil", nil))

	backend, err := r.Create("nop")
	require.NoError(t, err)
	assert.Equal(t, "nop", backend.Name())
}
