package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/sender"
	"github.com/monify-labs/sysmon/internal/snapshot"
	"github.com/monify-labs/sysmon/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	procs   []snapshot.Process
	res     map[int32]snapshot.Resources
	listErr error
}

func (f *fakeProvider) ListProcesses(context.Context) ([]snapshot.Process, error) {
	return f.procs, f.listErr
}

func (f *fakeProvider) ProcessResources(_ context.Context, pid int32) (snapshot.Resources, bool) {
	r, ok := f.res[pid]
	return r, ok
}

func (f *fakeProvider) SystemCPUTime(context.Context) (time.Duration, error) {
	return 10 * time.Second, nil
}

func (f *fakeProvider) CPUTimes(context.Context) ([]snapshot.CPUTimes, error) {
	return []snapshot.CPUTimes{{User: 1, Idle: 3}, {User: 3, Idle: 1}}, nil
}

func (f *fakeProvider) LoadAverage(context.Context) ([3]float64, error) {
	return [3]float64{1, 2, 3}, nil
}

func (f *fakeProvider) Memory(context.Context) (snapshot.Memory, error) {
	return snapshot.Memory{Total: 1000, Used: 400, Available: 600}, nil
}

func (f *fakeProvider) Swap(context.Context) (snapshot.Swap, error) { return snapshot.Swap{}, nil }

func (f *fakeProvider) Disks(context.Context) ([]snapshot.Disk, error) { return nil, nil }

func (f *fakeProvider) ListNetworkInterfaces(context.Context) ([]snapshot.Interface, error) {
	return []snapshot.Interface{{Name: "eth0", Connected: true, IPv4: "10.0.0.2"}}, nil
}

func newProvider() *fakeProvider {
	return &fakeProvider{
		procs: []snapshot.Process{
			{PID: 1, Name: "init", Owner: "root"},
			{PID: 2, PPID: 1, Name: "sshd", Owner: "root"},
			{PID: 3, PPID: 2, Name: "worker", Owner: "alice"},
		},
		res: map[int32]snapshot.Resources{
			1: {StartTime: epoch, Memory: 10},
			2: {StartTime: epoch, Memory: 20},
			3: {StartTime: epoch, Memory: 30},
		},
	}
}

func newConfig(overrides map[string]any) *viper.Viper {
	v := viper.New()
	for k, val := range config.Defaults() {
		v.SetDefault(k, val)
	}
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func testHost(context.Context) (*models.HostInfo, error) {
	return &models.HostInfo{Hostname: "box", CPUThreads: 2, TotalMemory: 1000}, nil
}

type queriers struct {
	procs map[int32]enrich.ProcessMeta
	units map[string]enrich.ServiceMeta
}

func newTestEngine(t *testing.T, p *fakeProvider, cfg *viper.Viper, q queriers) *Engine {
	t.Helper()
	e, err := New(context.Background(), cfg, Options{
		Provider: p,
		ProcessQuerier: enrich.QuerierFunc[int32, enrich.ProcessMeta](
			func(context.Context, []int32) (enrich.Batch[int32, enrich.ProcessMeta], error) {
				return enrich.Batch[int32, enrich.ProcessMeta]{Entries: q.procs}, nil
			}),
		ServiceQuerier: enrich.QuerierFunc[string, enrich.ServiceMeta](
			func(context.Context, []string) (enrich.Batch[string, enrich.ServiceMeta], error) {
				return enrich.Batch[string, enrich.ServiceMeta]{Entries: q.units}, nil
			}),
		Host:   testHost,
		Logger: quietLogger(),
		Now:    func() time.Time { return epoch.Add(time.Hour) },
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func TestNewFailsWithoutProcesses(t *testing.T) {
	p := newProvider()
	p.listErr = fmt.Errorf("access denied")

	_, err := New(context.Background(), newConfig(nil), Options{Provider: p, Host: testHost, Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProvider))
}

func TestNewFailsWithoutCores(t *testing.T) {
	host := func(context.Context) (*models.HostInfo, error) { return &models.HostInfo{}, nil }
	_, err := New(context.Background(), newConfig(nil), Options{Provider: newProvider(), Host: host, Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProvider))
}

func TestTickBuildsFrame(t *testing.T) {
	cfg := newConfig(map[string]any{
		config.KeyProcSorting:  "pid",
		config.KeyProcReversed: true,
	})
	e := newTestEngine(t, newProvider(), cfg, queriers{})

	f, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "box", f.Hostname)
	assert.Equal(t, uint64(1), f.Sequence)
	require.NotNil(t, f.Host, "host facts ride on the first frame")

	require.NotNil(t, f.CPU)
	assert.Equal(t, 50, f.CPU.UsagePercent)
	require.NotNil(t, f.Memory)
	assert.Equal(t, 40, f.Memory.Percent["used"])
	require.NotNil(t, f.Network)
	assert.Equal(t, "eth0", f.Network.Interface)

	require.NotNil(t, f.Processes)
	assert.Equal(t, "pid", f.Processes.Sorting)
	assert.Equal(t, 3, f.Processes.Visible)
	pids := []int32{}
	for _, r := range f.Processes.Rows {
		pids = append(pids, r.PID)
	}
	assert.Equal(t, []int32{1, 2, 3}, pids, "reversed sorts ascending")
	assert.Len(t, f.Enrichment, 2)

	f, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Sequence)
	assert.Nil(t, f.Host)
	assert.Equal(t, uint64(2), e.Status().Ticks)
}

func TestTickGuards(t *testing.T) {
	e := newTestEngine(t, newProvider(), newConfig(nil), queriers{})

	e.ticking.Store(true)
	_, err := e.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)
	e.ticking.Store(false)

	e.Stop()
	_, err = e.Tick(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestTickUnknownSortFallsBack(t *testing.T) {
	e := newTestEngine(t, newProvider(), newConfig(map[string]any{config.KeyProcSorting: "bogus"}), queriers{})
	f, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cpu lazy", f.Processes.Sorting)
}

func TestCollapseIsQueuedUntilNextTick(t *testing.T) {
	cfg := newConfig(map[string]any{
		config.KeyProcTree:     true,
		config.KeyProcSorting:  "pid",
		config.KeyProcReversed: true,
	})
	e := newTestEngine(t, newProvider(), cfg, queriers{})

	f, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, f.Processes.Visible)
	assert.Equal(t, 2, f.Processes.Rows[2].Depth)

	e.Collapse(2)
	f, err = e.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.Processes.Visible)
	assert.Equal(t, 3, f.Processes.Total)
	sshd := f.Processes.Rows[1]
	assert.Equal(t, int32(2), sshd.PID)
	assert.True(t, sshd.Collapsed)
	assert.Equal(t, uint64(50), sshd.Memory, "hidden child folds into the collapsed row")

	e.Toggle(2)
	f, err = e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.Processes.Visible)
}

func TestServicesViewIsFlat(t *testing.T) {
	cfg := newConfig(map[string]any{
		config.KeyProcServices:    true,
		config.KeyProcTree:        true,
		config.KeyServicesSorting: "service",
		config.KeyProcReversed:    true,
	})
	q := queriers{units: map[string]enrich.ServiceMeta{
		"sshd.service": {Name: "sshd.service", Description: "OpenSSH", MainPID: 2, ActiveState: "active", SubState: "running"},
		"cron.service": {Name: "cron.service", Description: "Cron", ActiveState: "inactive", SubState: "dead"},
	}}
	e := newTestEngine(t, newProvider(), cfg, q)
	require.NoError(t, e.units.RunOnce(context.Background()))

	f, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Processes.Services)
	assert.False(t, f.Processes.Tree)
	assert.Equal(t, "name", f.Processes.Sorting)
	require.Len(t, f.Processes.Rows, 2)
	assert.Equal(t, "cron.service", f.Processes.Rows[0].Name)
	sshd := f.Processes.Rows[1]
	assert.Equal(t, "OpenSSH", sshd.Command)
	assert.Equal(t, "running", sshd.Owner)
	assert.Equal(t, uint64(20), sshd.Memory, "figures borrowed from the main pid")
}

func TestProcessDetail(t *testing.T) {
	cfg := newConfig(map[string]any{
		config.KeyShowDetailed: true,
		config.KeyDetailedPID:  3,
	})
	q := queriers{procs: map[int32]enrich.ProcessMeta{
		1: {Name: "init", Owner: "root"},
		2: {Name: "sshd", PPID: 1, Owner: "root"},
		3: {Name: "worker", PPID: 2, Owner: "alice", IOReadBytes: 1024},
	}}
	e := newTestEngine(t, newProvider(), cfg, q)
	require.NoError(t, e.procs.RunOnce(context.Background()))

	f, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.Detail)
	d := f.Detail
	assert.Equal(t, int32(3), d.PID)
	assert.Equal(t, "worker", d.Name)
	assert.Equal(t, "Running", d.Status)
	assert.Equal(t, "sshd", d.Parent)
	assert.Equal(t, "1.0 KiB", d.IORead)
	assert.Equal(t, "01:00:00", d.Elapsed)
	assert.Equal(t, 3.0, d.MemoryPercent)
	assert.Len(t, d.CPUHistory, 1)
	assert.Equal(t, 1, e.procs.Pending(), "detail pid re-requested for fresh io")
}

func TestDetailOfVanishedProcess(t *testing.T) {
	cfg := newConfig(map[string]any{
		config.KeyShowDetailed: true,
		config.KeyDetailedPID:  42,
	})
	e := newTestEngine(t, newProvider(), cfg, queriers{})
	f, err := e.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.Detail)
	assert.Equal(t, "Stopped", f.Detail.Status)
}

type recordingSink struct {
	mu     sync.Mutex
	frames []*models.Frame
	err    error
	after  int
	cancel context.CancelFunc
}

func (s *recordingSink) Send(_ context.Context, f *models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	if s.err != nil {
		return s.err
	}
	if len(s.frames) >= s.after && s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, newProvider(), newConfig(map[string]any{config.KeyUpdateMS: 100}), queriers{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink := &recordingSink{after: 2, cancel: cancel}
	require.NoError(t, e.Run(ctx, sink))
	assert.GreaterOrEqual(t, len(sink.frames), 2)
	assert.False(t, e.Status().Running)
}

func TestRunStopsOnUnauthorized(t *testing.T) {
	e := newTestEngine(t, newProvider(), newConfig(map[string]any{config.KeyUpdateMS: 100}), queriers{})
	sink := &recordingSink{err: sender.ErrUnauthorized}

	err := e.Run(context.Background(), sink)
	assert.ErrorIs(t, err, sender.ErrUnauthorized)
	assert.Len(t, sink.frames, 1)
}
