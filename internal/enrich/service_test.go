package enrich

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unitList = `cron.service loaded active running Regular background program processing daemon
ssh.service loaded active running OpenBSD Secure Shell server
● missing.service not-found inactive dead missing.service
systemd-journald.socket loaded active running Journal Socket
`

const showOutput = `Id=cron.service
Description=Regular background program processing daemon
MainPID=612
ActiveState=active
SubState=running
UnitFileState=enabled
User=
CanStop=yes
CanReload=no
ActiveEnterTimestamp=Mon 2024-01-15 10:23:45 UTC

Id=ssh.service
Description=OpenBSD Secure Shell server
MainPID=garbage
ActiveState=inactive
SubState=dead
UnitFileState=disabled
User=sshd
CanStop=yes
CanReload=yes
ActiveEnterTimestamp=n/a
`

func TestParseServiceShow(t *testing.T) {
	metas := parseServiceShow([]byte(showOutput))
	require.Len(t, metas, 2)

	cron := metas[0]
	assert.Equal(t, "cron.service", cron.Name)
	assert.Equal(t, int32(612), cron.MainPID)
	assert.True(t, cron.Running())
	assert.True(t, cron.CanStop)
	assert.False(t, cron.CanReload)
	assert.Equal(t, "active (running)", cron.State())
	assert.Equal(t, time.Date(2024, 1, 15, 10, 23, 45, 0, time.UTC), cron.Started().UTC())

	ssh := metas[1]
	assert.Equal(t, int32(0), ssh.MainPID, "malformed pid stays zero")
	assert.Equal(t, "sshd", ssh.User)
	assert.False(t, ssh.Running())
	assert.True(t, ssh.Started().IsZero(), "malformed timestamp stays zero")
}

func TestParseUnitList(t *testing.T) {
	assert.Equal(t,
		[]string{"cron.service", "ssh.service", "missing.service"},
		parseUnitList([]byte(unitList)))
}

type fakeSystemctl struct {
	calls [][]string
	fail  bool
}

func (f *fakeSystemctl) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail {
		return nil, fmt.Errorf("exec: systemctl: not found")
	}
	if args[0] == "list-units" {
		return []byte(unitList), nil
	}
	var b strings.Builder
	for _, block := range strings.Split(showOutput, "\n\n") {
		for _, unit := range args {
			if strings.HasPrefix(block, "Id="+unit+"\n") {
				b.WriteString(block)
				b.WriteString("\n\n")
			}
		}
	}
	return []byte(b.String()), nil
}

func TestServiceQuerierFullRefresh(t *testing.T) {
	f := &fakeSystemctl{}
	batch, err := NewServiceQuerier(f.run).Query(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, batch.Present, 3)
	assert.Contains(t, batch.Entries, "cron.service")
	assert.Contains(t, batch.Entries, "ssh.service")
	require.Len(t, f.calls, 2)
	assert.Equal(t, "show", f.calls[1][1])
}

func TestServiceQuerierRequestedSubset(t *testing.T) {
	f := &fakeSystemctl{}
	batch, err := NewServiceQuerier(f.run).Query(context.Background(), []string{"ssh.service", "gone.service"})
	require.NoError(t, err)

	assert.Len(t, batch.Entries, 1)
	assert.Contains(t, batch.Entries, "ssh.service")
	assert.NotContains(t, f.calls[1], "gone.service")
}

func TestServiceSchedulerDisablesWithoutSystemctl(t *testing.T) {
	f := &fakeSystemctl{fail: true}
	s := NewServiceScheduler(f.run, WithLogger(quietLogger()))

	require.Error(t, s.RunOnce(context.Background()))
	assert.True(t, s.Disabled())
	assert.Empty(t, s.Snapshot())
}
