package sender

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/pkg/models"
	"gopkg.in/yaml.v3"
)

// WriterSender encodes frames onto a stream, one JSON object per line or
// one YAML document per frame.
type WriterSender struct {
	mu   sync.Mutex
	json *json.Encoder
	yaml *yaml.Encoder
}

// NewWriterSender creates a sender writing to out.
func NewWriterSender(out io.Writer, format Format) *WriterSender {
	w := &WriterSender{}
	if format == FormatYAML {
		w.yaml = yaml.NewEncoder(out)
		w.yaml.SetIndent(2)
	} else {
		w.json = json.NewEncoder(out)
	}
	return w
}

// Send writes frame. Context cancellation is checked before writing.
func (w *WriterSender) Send(ctx context.Context, frame *models.Frame) error {
	if frame == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.yaml != nil {
		err = w.yaml.Encode(frame)
	} else {
		err = w.json.Encode(frame)
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSend, "Failed to write frame", "")
	}
	return nil
}

// Close flushes a pending YAML stream. The underlying writer stays open.
func (w *WriterSender) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.yaml != nil {
		return w.yaml.Close()
	}
	return nil
}
