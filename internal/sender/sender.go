// Package sender delivers engine frames to their destination.
package sender

import (
	"context"
	"io"
	"strings"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/pkg/models"
)

// Sender is the interface for delivering frames
type Sender interface {
	// Send delivers one frame
	Send(ctx context.Context, frame *models.Frame) error

	// Close closes the sender and releases resources
	Close() error
}

// FromConfig picks the sender for cfg. A push_url selects the HTTP sender;
// otherwise frames are written to out in the configured output format.
func FromConfig(cfg config.Source, out io.Writer) (Sender, error) {
	if url := strings.TrimSpace(cfg.GetString(config.KeyPushURL)); url != "" {
		return NewHTTPSender(url, cfg.GetString(config.KeyPushToken)), nil
	}

	format, err := ParseFormat(cfg.GetString(config.KeyOutput))
	if err != nil {
		return nil, err
	}
	return NewWriterSender(out, format), nil
}

// Format is an output encoding for WriterSender.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", errors.New(errors.ErrConfig,
		"Unknown output format: "+s,
		"Use json or yaml")
}
