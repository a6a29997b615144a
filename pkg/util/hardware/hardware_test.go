package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCPUNum(t *testing.T) {
	assert.Greater(t, GetCPUNum(), 0)
}

func TestGetFreeDiskBytes(t *testing.T) {
	free, err := GetFreeDiskBytes(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))

	_, err = GetFreeDiskBytes("/definitely/not/a/real/path")
	assert.Error(t, err)
}
