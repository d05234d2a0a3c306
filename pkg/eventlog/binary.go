package eventlog

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
)

// BinaryRecorder appends events as snappy-compressed JSON records.
//
// Record format: [Seq:8][Type:1][DataLen:4][Data:N][Checksum:4][Timestamp:8]
// with big-endian integers and the CRC-32 taken over the compressed data.
type BinaryRecorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	seq    uint64
}

// OpenBinaryRecorder appends to the log at path. Sequence numbers continue
// after the last record already in the file.
func OpenBinaryRecorder(path string) (*BinaryRecorder, error) {
	var last uint64
	if f, err := os.Open(path); err == nil {
		err = ReadBinaryLog(f, func(seq uint64, _ Event) error {
			last = seq
			return nil
		})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to recover event log: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	r := NewBinaryRecorder(f)
	r.closer = f
	r.seq = last
	return r, nil
}

// NewBinaryRecorder writes records to w
func NewBinaryRecorder(w io.Writer) *BinaryRecorder {
	return &BinaryRecorder{w: bufio.NewWriter(w)}
}

// Name implements Recorder
func (r *BinaryRecorder) Name() string { return "binary" }

// Record appends e
func (r *BinaryRecorder) Record(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++

	var head [13]byte
	binary.BigEndian.PutUint64(head[0:], r.seq)
	head[8] = byte(e.Type)
	binary.BigEndian.PutUint32(head[9:], uint32(len(compressed)))
	var tail [12]byte
	binary.BigEndian.PutUint32(tail[0:], crc32.ChecksumIEEE(compressed))
	binary.BigEndian.PutUint64(tail[4:], uint64(e.Time.Unix()))

	if _, err := r.w.Write(head[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(compressed); err != nil {
		return err
	}
	if _, err := r.w.Write(tail[:]); err != nil {
		return err
	}
	return r.w.Flush()
}

// Close flushes and closes the log
func (r *BinaryRecorder) Close() error {
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

// ErrChecksum is returned for a record whose data does not match its CRC
var ErrChecksum = errors.New("eventlog: checksum mismatch")

// ReadBinaryLog calls fn for every record in r, in order
func ReadBinaryLog(r io.Reader, fn func(seq uint64, e Event) error) error {
	reader := bufio.NewReader(r)
	for {
		var head [13]byte
		if _, err := io.ReadFull(reader, head[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		seq := binary.BigEndian.Uint64(head[0:])
		compressed := make([]byte, binary.BigEndian.Uint32(head[9:]))
		if _, err := io.ReadFull(reader, compressed); err != nil {
			return err
		}
		var tail [12]byte
		if _, err := io.ReadFull(reader, tail[:]); err != nil {
			return err
		}
		if crc32.ChecksumIEEE(compressed) != binary.BigEndian.Uint32(tail[0:]) {
			return fmt.Errorf("%w in record %d", ErrChecksum, seq)
		}
		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			return fmt.Errorf("failed to decompress record %d: %w", seq, err)
		}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to decode record %d: %w", seq, err)
		}
		if err := fn(seq, e); err != nil {
			return err
		}
	}
}
