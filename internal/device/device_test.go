package device

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/charrnn/internal/tensor"
)

func TestSelect_CPU(t *testing.T) {
	logger, _ := test.NewNullLogger()

	sel, err := Select("cpu", logger)
	require.NoError(t, err)
	defer sel.Release()

	assert.Equal(t, tensor.CPU, sel.Backend.Device())
	assert.False(t, sel.Fallback)
}

func TestSelect_GPUFallbackWarns(t *testing.T) {
	logger, hook := test.NewNullLogger()

	orig := gpuBackend
	gpuBackend = func() (tensor.Backend, func(), error) {
		return nil, nil, errors.New("no adapter")
	}
	defer func() { gpuBackend = orig }()

	sel, err := Select("webgpu", logger)
	require.NoError(t, err)

	assert.True(t, sel.Fallback)
	assert.Equal(t, "CPU", sel.Backend.Name())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.ErrorIs(t, hook.LastEntry().Data[logrus.ErrorKey].(error), ErrUnavailable)
}

func TestSelect_Unknown(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := Select("tpu", logger)
	assert.ErrorIs(t, err, ErrUnknown)
}
