package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerMemoryLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	assert.True(t, c.TryAcquireMemory(60))
	assert.True(t, c.TryAcquireMemory(40))
	assert.False(t, c.TryAcquireMemory(1))
	assert.EqualValues(t, 100, c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.EqualValues(t, 50, c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(50))
}

func TestControllerUnlimitedMemory(t *testing.T) {
	c := NewController(Config{})
	assert.True(t, c.TryAcquireMemory(1<<40))
	assert.EqualValues(t, 1<<40, c.MemoryUsage())
	c.ReleaseMemory(1 << 40)
	assert.Zero(t, c.MemoryUsage())
}

func TestControllerNilIsNoop(t *testing.T) {
	var c *Controller
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	require.NoError(t, c.AcquireMemory(context.Background(), 10))
	require.NoError(t, c.AcquireIO(context.Background(), 10))
}

func TestControllerAcquireMemoryBlocksUntilRelease(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	require.NoError(t, c.AcquireMemory(context.Background(), 10))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(ctx, 1)
	assert.Error(t, err, "blocked acquire must honor ctx cancellation")
}

func TestControllerBackgroundSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})
	assert.True(t, c.TryAcquireBackground())
	assert.True(t, c.TryAcquireBackground())
	assert.False(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}
