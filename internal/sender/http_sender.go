package sender

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/pkg/models"
)

// ErrUnauthorized is returned when the collector rejects the token (401 or 403)
var ErrUnauthorized = errors.New(errors.ErrSend,
	"Authentication failed: invalid or expired token",
	"Check push_token")

// HTTPSender pushes gzipped JSON frames over HTTP/HTTPS
type HTTPSender struct {
	serverURL string
	token     string
	client    *http.Client
}

// NewHTTPSender creates a new HTTP sender
func NewHTTPSender(serverURL, token string) *HTTPSender {
	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPSender{
		serverURL: serverURL,
		token:     token,
		client:    client,
	}
}

// Send posts a single frame
func (h *HTTPSender) Send(ctx context.Context, frame *models.Frame) error {
	if frame == nil {
		return nil
	}

	body, err := encodeFrame(frame)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.serverURL, body)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSend, "Failed to create request",
			"Check push_url")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("User-Agent", "sysmon/"+config.Version)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSend, "Request failed", "")
	}
	defer resp.Body.Close()

	return statusError(resp)
}

// encodeFrame renders frame as gzipped JSON.
func encodeFrame(frame *models.Frame) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(frame); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSend, "Failed to encode frame", "")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSend, "Failed to compress frame", "")
	}
	return &buf, nil
}

// statusError maps a non-2xx response to an error. At most 4 KiB of the body
// is quoted.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadRequest:
		return errors.New(errors.ErrSend, "Bad request: "+string(body), "")
	case http.StatusTooManyRequests:
		return errors.New(errors.ErrSend, "Rate limited", "Increase update_ms")
	}
	return errors.New(errors.ErrSend,
		fmt.Sprintf("Unexpected status code %d: %s", resp.StatusCode, body), "")
}

// Close closes the HTTP client
func (h *HTTPSender) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
