package eventlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// TextHeader starts every text log
const TextHeader = "*** APX Server Log ***\n"

// TextRecorder writes one line per event
type TextRecorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
}

// OpenTextRecorder truncates the file at path and writes the header
func OpenTextRecorder(path string) (*TextRecorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file %s: %w", path, err)
	}
	r, err := NewTextRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewTextRecorder writes the header to w
func NewTextRecorder(w io.Writer) (*TextRecorder, error) {
	r := &TextRecorder{w: bufio.NewWriter(w)}
	if _, err := r.w.WriteString(TextHeader); err != nil {
		return nil, err
	}
	return r, r.w.Flush()
}

// Name implements Recorder
func (r *TextRecorder) Name() string { return "text" }

// Record writes the event line
func (r *TextRecorder) Record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.WriteString(e.Text() + "\n"); err != nil {
		return err
	}
	return r.w.Flush()
}

// Close flushes and closes the file
func (r *TextRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return err
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
