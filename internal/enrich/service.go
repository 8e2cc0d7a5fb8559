package enrich

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// systemdTimestamp is the layout systemctl show uses for timestamps.
const systemdTimestamp = "Mon 2006-01-02 15:04:05 MST"

// showBatchSize bounds how many units go into one systemctl show call.
const showBatchSize = 64

var serviceProperties = []string{
	"Id", "Description", "MainPID", "ActiveState", "SubState",
	"UnitFileState", "User", "CanStop", "CanReload", "ActiveEnterTimestamp",
}

// ServiceMeta describes one systemd service unit.
type ServiceMeta struct {
	Name          string
	Description   string
	MainPID       int32
	ActiveState   string
	SubState      string
	UnitFileState string
	User          string
	CanStop       bool
	CanReload     bool

	// ActiveEnterTimestamp is kept as reported; see Started.
	ActiveEnterTimestamp string
}

// Started parses ActiveEnterTimestamp. Unparsable or missing values yield
// the zero time.
func (m ServiceMeta) Started() time.Time {
	ts, err := time.Parse(systemdTimestamp, strings.TrimSpace(m.ActiveEnterTimestamp))
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Running reports whether the unit is active with a running main process.
func (m ServiceMeta) Running() bool {
	return m.ActiveState == "active" && m.SubState == "running"
}

// State is the combined active/sub state, e.g. "active (running)".
func (m ServiceMeta) State() string {
	if m.SubState == "" {
		return m.ActiveState
	}
	return m.ActiveState + " (" + m.SubState + ")"
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ServiceQuerier reads service units from systemd through systemctl.
type ServiceQuerier struct {
	run Runner
}

// NewServiceQuerier creates a querier. A nil runner executes systemctl.
func NewServiceQuerier(run Runner) *ServiceQuerier {
	if run == nil {
		run = execRunner
	}
	return &ServiceQuerier{run: run}
}

// NewServiceScheduler creates a scheduler keyed by unit name.
func NewServiceScheduler(run Runner, opts ...Option) *Scheduler[string, ServiceMeta] {
	return New[string, ServiceMeta]("services", NewServiceQuerier(run), opts...)
}

// Query lists every service unit and describes the requested ones, or all of
// them when keys is empty.
func (q *ServiceQuerier) Query(ctx context.Context, keys []string) (Batch[string, ServiceMeta], error) {
	out, err := q.run(ctx, "systemctl", "list-units", "--type=service", "--all",
		"--no-legend", "--plain", "--no-pager")
	if err != nil {
		return Batch[string, ServiceMeta]{}, err
	}
	units := parseUnitList(out)

	present := make(map[string]struct{}, len(units))
	for _, u := range units {
		present[u] = struct{}{}
	}

	targets := units
	if len(keys) > 0 {
		targets = targets[:0:0]
		for _, k := range keys {
			if _, ok := present[k]; ok {
				targets = append(targets, k)
			}
		}
	}

	batch := Batch[string, ServiceMeta]{
		Entries: make(map[string]ServiceMeta, len(targets)),
		Present: present,
	}
	for start := 0; start < len(targets); start += showBatchSize {
		end := min(start+showBatchSize, len(targets))

		args := []string{"show", "--no-pager", "-p", strings.Join(serviceProperties, ",")}
		args = append(args, targets[start:end]...)
		out, err := q.run(ctx, "systemctl", args...)
		if err != nil {
			return Batch[string, ServiceMeta]{}, err
		}
		for _, m := range parseServiceShow(out) {
			batch.Entries[m.Name] = m
		}
	}

	return batch, nil
}

// parseUnitList extracts unit names from list-units output.
func parseUnitList(out []byte) []string {
	var units []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if name == "●" && len(fields) > 1 {
			name = fields[1]
		}
		if strings.HasSuffix(name, ".service") {
			units = append(units, name)
		}
	}
	return units
}

// parseServiceShow parses systemctl show output, one blank-line separated
// block per unit. Blocks without an Id are dropped.
func parseServiceShow(out []byte) []ServiceMeta {
	var (
		metas []ServiceMeta
		cur   ServiceMeta
	)
	flush := func() {
		if cur.Name != "" {
			metas = append(metas, cur)
		}
		cur = ServiceMeta{}
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "Id":
			cur.Name = value
		case "Description":
			cur.Description = value
		case "MainPID":
			if pid, err := strconv.ParseInt(value, 10, 32); err == nil {
				cur.MainPID = int32(pid)
			}
		case "ActiveState":
			cur.ActiveState = value
		case "SubState":
			cur.SubState = value
		case "UnitFileState":
			cur.UnitFileState = value
		case "User":
			cur.User = value
		case "CanStop":
			cur.CanStop = value == "yes"
		case "CanReload":
			cur.CanReload = value == "yes"
		case "ActiveEnterTimestamp":
			cur.ActiveEnterTimestamp = value
		}
	}
	flush()

	return metas
}
