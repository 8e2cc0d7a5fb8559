package dynamic

import (
	"context"
	"math"
	"sync"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/monify-labs/sysmon/internal/metrics/history"
	"github.com/monify-labs/sysmon/internal/snapshot"
	"github.com/monify-labs/sysmon/pkg/models"
	"github.com/sirupsen/logrus"
)

// CoreHistoryLimit bounds each per-core series.
const CoreHistoryLimit = 40

// CPUCollector turns cumulative cpu times into usage percentages
type CPUCollector struct {
	mu  sync.Mutex
	src snapshot.CPUSource
	log *logrus.Entry

	prev   []snapshot.CPUTimes
	cores  []*history.Series[int]
	total  *history.Series[int]
	fields map[string]int
	load   [3]float64
}

// NewCPUCollector creates a collector whose total series holds 2*width samples
func NewCPUCollector(src snapshot.CPUSource, width int, log *logrus.Entry) *CPUCollector {
	return &CPUCollector{
		src:    src,
		log:    logger.Or(log, "cpu"),
		total:  history.NewSeries[int](2 * width),
		fields: make(map[string]int),
	}
}

// Collect samples cpu times once and returns the updated metrics. Percentages
// are computed against the previous call; the first call measures since boot.
func (c *CPUCollector) Collect(ctx context.Context) (*models.CPUMetrics, error) {
	times, err := c.src.CPUTimes(ctx)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrProvider, "Failed to read cpu times", "")
	}
	if len(times) == 0 {
		return nil, errors.New(errors.ErrProvider, "No cpu times reported", "")
	}

	load, err := c.src.LoadAverage(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).Debug("Load average unavailable")
	} else {
		c.load = load
	}

	if len(times) != len(c.prev) {
		c.prev = make([]snapshot.CPUTimes, len(times))
		c.cores = make([]*history.Series[int], len(times))
		for i := range c.cores {
			c.cores[i] = history.NewSeries[int](CoreHistoryLimit)
		}
	}

	var sum int
	var agg snapshot.CPUTimes
	for i, t := range times {
		d := deltaTimes(t, c.prev[i])
		p := busyPercent(d)
		c.cores[i].Push(p)
		sum += p
		agg = addTimes(agg, d)
		c.prev[i] = t
	}
	c.total.Push(int(math.Round(float64(sum) / float64(len(times)))))

	if total := agg.Total(); total > 0 {
		for name, v := range agg.Fields() {
			c.fields[name] = clampPercent(v * 100 / total)
		}
	}

	return c.metrics(), nil
}

func (c *CPUCollector) metrics() *models.CPUMetrics {
	m := &models.CPUMetrics{
		History:    c.total.Values(),
		Cores:      make([]models.CoreMetrics, len(c.cores)),
		Fields:     make(map[string]int, len(c.fields)),
		LoadAvg1m:  c.load[0],
		LoadAvg5m:  c.load[1],
		LoadAvg15m: c.load[2],
	}
	m.UsagePercent, _ = c.total.Last()
	for i, s := range c.cores {
		last, _ := s.Last()
		m.Cores[i] = models.CoreMetrics{Percent: last, History: s.Values()}
	}
	for k, v := range c.fields {
		m.Fields[k] = v
	}
	return m
}

// busyPercent is the non-idle share of a delta, rounded and clamped.
func busyPercent(d snapshot.CPUTimes) int {
	total := d.Total()
	if total <= 0 {
		return 0
	}
	return clampPercent((total - d.IdleTime()) * 100 / total)
}

// deltaTimes subtracts prev from cur per state. A counter that went
// backwards yields zero for that state.
func deltaTimes(cur, prev snapshot.CPUTimes) snapshot.CPUTimes {
	sub := func(a, b float64) float64 { return math.Max(0, a-b) }
	return snapshot.CPUTimes{
		User:    sub(cur.User, prev.User),
		Nice:    sub(cur.Nice, prev.Nice),
		System:  sub(cur.System, prev.System),
		Idle:    sub(cur.Idle, prev.Idle),
		IOWait:  sub(cur.IOWait, prev.IOWait),
		IRQ:     sub(cur.IRQ, prev.IRQ),
		SoftIRQ: sub(cur.SoftIRQ, prev.SoftIRQ),
		Steal:   sub(cur.Steal, prev.Steal),
	}
}

func addTimes(a, b snapshot.CPUTimes) snapshot.CPUTimes {
	return snapshot.CPUTimes{
		User:    a.User + b.User,
		Nice:    a.Nice + b.Nice,
		System:  a.System + b.System,
		Idle:    a.Idle + b.Idle,
		IOWait:  a.IOWait + b.IOWait,
		IRQ:     a.IRQ + b.IRQ,
		SoftIRQ: a.SoftIRQ + b.SoftIRQ,
		Steal:   a.Steal + b.Steal,
	}
}

func clampPercent(v float64) int {
	return int(math.Max(0, math.Min(100, math.Round(v))))
}
