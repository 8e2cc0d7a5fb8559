package proc

import (
	"testing"
	"time"

	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailTracksProcess(t *testing.T) {
	tr := NewDetailTracker(3, 4)
	in := DetailInput{
		PID:         42,
		Name:        "app",
		Found:       true,
		Entry:       Entry{PID: 42, Name: "app", CPUPercent: 10, Memory: 1 << 30, StartTime: epoch},
		Parent:      "systemd",
		Meta:        enrich.ProcessMeta{IOReadBytes: 2048, IOWriteBytes: 1 << 20},
		HasMeta:     true,
		TotalMemory: 4 << 30,
		Now:         epoch.Add(90*time.Minute + 5*time.Second),
	}

	d := tr.Update(in)
	assert.Equal(t, StatusRunning, d.Status)
	assert.Equal(t, []int{40}, d.CPUHistory, "scaled by core count")
	assert.InDelta(t, 25.0, d.MemoryPercent, 1e-9)
	assert.Equal(t, "1.0 GiB", d.MemoryText)
	assert.Equal(t, "2.0 KiB", d.IORead)
	assert.Equal(t, "1.0 MiB", d.IOWrite)
	assert.Equal(t, "01:30:05", d.Elapsed)
	assert.Equal(t, "systemd", d.Parent)
	assert.Equal(t, uint64(2<<30), d.MemoryScale)

	in.Entry.CPUPercent = 50
	for i := 0; i < 3; i++ {
		d = tr.Update(in)
	}
	assert.Equal(t, []int{100, 100, 100}, d.CPUHistory, "bounded and clamped")
	assert.Len(t, d.MemoryHistory, 3)

	in.PerCore = true
	d = tr.Update(in)
	assert.Equal(t, 50, d.CPUHistory[2])
}

func TestDetailResetsOnTargetChange(t *testing.T) {
	tr := NewDetailTracker(10, 1)
	tr.Update(DetailInput{PID: 1, Found: true, Entry: Entry{PID: 1, Memory: 10}, Parent: "a"})
	tr.Update(DetailInput{PID: 1, Found: true, Entry: Entry{PID: 1, Memory: 10}})

	d := tr.Update(DetailInput{PID: 2, Found: true, Entry: Entry{PID: 2, Memory: 10}})
	assert.Len(t, d.CPUHistory, 1)
	assert.Empty(t, d.Parent)
	assert.Equal(t, "unknown", d.Elapsed)
}

func TestDetailStoppedProcess(t *testing.T) {
	tr := NewDetailTracker(10, 1)
	tr.Update(DetailInput{PID: 7, Name: "gone", Found: true, Entry: Entry{PID: 7, CPUPercent: 10}})

	d := tr.Update(DetailInput{PID: 7, Name: "gone"})
	assert.Equal(t, StatusStopped, d.Status)
	assert.Equal(t, "gone", d.Entry.Name)
	assert.Len(t, d.CPUHistory, 1, "history is kept while stopped")
}

func TestDetailService(t *testing.T) {
	tr := NewDetailTracker(10, 1)
	d := tr.Update(DetailInput{
		Name:     "cron.service",
		Services: true,
		Found:    true,
		Entry:    Entry{Name: "cron.service", PID: 612},
		Parent:   "ignored",
		Service: enrich.ServiceMeta{
			Name: "cron.service", Description: "cron", User: "root", UnitFileState: "enabled",
			ActiveState: "active", SubState: "running", CanStop: true,
		},
		HasService: true,
	})

	assert.Equal(t, "active (running)", d.Status)
	assert.Equal(t, "root", d.Owner)
	assert.Equal(t, "enabled", d.StartMode)
	assert.Equal(t, "cron", d.Description)
	assert.True(t, d.CanStop)
	assert.False(t, d.CanReload)
	assert.Empty(t, d.Parent)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:59", formatElapsed(59*time.Second))
	assert.Equal(t, "2d 03:04", formatElapsed(51*time.Hour+4*time.Minute+30*time.Second))
	require.Equal(t, "00:00:00", formatElapsed(-time.Second))
}
