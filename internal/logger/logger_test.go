package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want logrus.Level
	}{
		{"explicit warn", Options{Level: "warn"}, logrus.WarnLevel},
		{"invalid falls back to info", Options{Level: "loud"}, logrus.InfoLevel},
		{"debug overrides level", Options{Level: "error", Debug: true}, logrus.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.opts)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", Output: &buf, JSON: true})
	l.WithField("k", "v").Info("hello")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestComponentUsesDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, hook := test.NewNullLogger()
	SetDefault(l)

	Component("enrich").Warn("disabled")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "enrich", hook.LastEntry().Data["component"])
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	prev := Default()
	SetDefault(nil)
	assert.Same(t, prev, Default())
}

func TestOr(t *testing.T) {
	l, _ := test.NewNullLogger()
	e := logrus.NewEntry(l)
	assert.Same(t, e, Or(e, "x"))
	assert.Equal(t, "x", Or(nil, "x").Data["component"])
}
