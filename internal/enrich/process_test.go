package enrich

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessQuerierDescribesRequestedPid(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("exercises /proc")
	}

	self := int32(os.Getpid())
	batch, err := ProcessQuerier{}.Query(context.Background(), []int32{self})
	require.NoError(t, err)

	require.Len(t, batch.Entries, 1)
	meta, ok := batch.Entries[self]
	require.True(t, ok)
	assert.Equal(t, int32(os.Getppid()), meta.PPID)
	assert.NotEmpty(t, meta.ExecutablePath)
	assert.False(t, meta.CreationTime.IsZero())
	assert.Positive(t, meta.ThreadCount)

	assert.Contains(t, batch.Present, self)
	assert.Greater(t, len(batch.Present), 1)
}

func TestProcessMetaCPUTime(t *testing.T) {
	m := ProcessMeta{KernelTime: time.Second, UserTime: 500 * time.Millisecond}
	assert.Equal(t, 1500*time.Millisecond, m.CPUTime())
}
