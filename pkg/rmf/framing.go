package rmf

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Reader reads NumHeader32 framed messages from a stream
type Reader struct {
	r       *bufio.Reader
	maxSize uint32
}

// NewReader creates a Reader. maxSize <= 0 selects DefaultMaxMessage.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessage
	}
	return &Reader{r: bufio.NewReader(r), maxSize: uint32(maxSize)}
}

// ReadMessage returns the next message body without its length header
func (r *Reader) ReadMessage() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r.r, hdr[:1]); err != nil {
		return nil, err
	}
	n := 1
	if hdr[0]&0x80 != 0 {
		if _, err := io.ReadFull(r.r, hdr[1:4]); err != nil {
			return nil, unexpected(err)
		}
		n = 4
	}
	size, _, err := DecodeNumHeader(hdr[:n])
	if err != nil {
		return nil, err
	}
	if size > r.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, r.maxSize)
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r.r, msg); err != nil {
		return nil, unexpected(err)
	}
	return msg, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Writer writes NumHeader32 framed messages. It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage writes the length header and msg in a single write
func (w *Writer) WriteMessage(msg []byte) error {
	buf := make([]byte, 0, 4+len(msg))
	buf, err := AppendNumHeader(buf, uint32(len(msg)))
	if err != nil {
		return err
	}
	buf = append(buf, msg...)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(buf)
	return err
}
