package sender

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/pkg/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testFrame() *models.Frame {
	return &models.Frame{
		Hostname:  "box",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Sequence:  7,
		CPU:       &models.CPUMetrics{UsagePercent: 42, History: []int{40, 42}},
	}
}

func TestHTTPSenderPostsGzippedJSON(t *testing.T) {
	var got models.Frame
	var auth, encoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		encoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret")
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), testFrame()))
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "gzip", encoding)
	assert.Equal(t, "box", got.Hostname)
	assert.Equal(t, uint64(7), got.Sequence)
	require.NotNil(t, got.CPU)
	assert.Equal(t, 42, got.CPU.UsagePercent)
}

func TestHTTPSenderStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrUnauthorized))
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsCode(err, errors.ErrSend))
				assert.False(t, errors.Is(err, ErrUnauthorized))
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "500")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewHTTPSender(srv.URL, "").Send(context.Background(), testFrame())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestHTTPSenderNilFrame(t *testing.T) {
	assert.NoError(t, NewHTTPSender("http://127.0.0.1:1", "").Send(context.Background(), nil))
}

func TestWriterSenderJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterSender(&buf, FormatJSON)

	require.NoError(t, w.Send(context.Background(), testFrame()))
	require.NoError(t, w.Send(context.Background(), testFrame()))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var f models.Frame
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &f))
	assert.Equal(t, "box", f.Hostname)
}

func TestWriterSenderYAMLDocuments(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterSender(&buf, FormatYAML)

	require.NoError(t, w.Send(context.Background(), testFrame()))
	require.NoError(t, w.Close())

	var f models.Frame
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &f))
	assert.Equal(t, "box", f.Hostname)
	require.NotNil(t, f.CPU)
	assert.Equal(t, []int{40, 42}, f.CPU.History)
}

func TestWriterSenderCancelled(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWriterSender(&buf, FormatJSON).Send(ctx, testFrame())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestFromConfig(t *testing.T) {
	v := viper.New()
	v.Set(config.KeyOutput, "yaml")
	s, err := FromConfig(v, io.Discard)
	require.NoError(t, err)
	assert.IsType(t, &WriterSender{}, s)

	v.Set(config.KeyPushURL, "https://example.test/ingest")
	s, err = FromConfig(v, io.Discard)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSender{}, s)

	v.Set(config.KeyPushURL, "")
	v.Set(config.KeyOutput, "xml")
	_, err = FromConfig(v, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
