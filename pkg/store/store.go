// Package store keeps a registry of the node definitions a server has
// seen, keyed by node name and definition checksum.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no definition is stored under a name
var ErrNotFound = errors.New("store: definition not found")

// Record is one distinct definition of a node
type Record struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Checksum   string    `json:"checksum"`
	Definition string    `json:"definition"`
	InPortLen  int       `json:"in_port_len"`
	OutPortLen int       `json:"out_port_len"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Seen       int       `json:"seen"`
}

// NewRecord creates a record for definition with its SHA-256 checksum
func NewRecord(name string, definition []byte, inLen, outLen int) *Record {
	sum := sha256.Sum256(definition)
	return &Record{
		Name:       name,
		Checksum:   hex.EncodeToString(sum[:]),
		Definition: string(definition),
		InPortLen:  inLen,
		OutPortLen: outLen,
	}
}

// Store persists definition records
type Store interface {
	// Put inserts rec, or bumps LastSeen and Seen when a record with the
	// same name and checksum exists. rec is updated with the stored values.
	Put(ctx context.Context, rec *Record) error
	// Get returns the most recently seen record for name
	Get(ctx context.Context, name string) (*Record, error)
	// List returns all records ordered by name and last seen time
	List(ctx context.Context) ([]*Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns a PGStore for postgres:// URLs, an in-memory store for an
// empty target and a FileStore for anything else.
func Open(ctx context.Context, target string) (Store, error) {
	switch {
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		return NewPGStore(ctx, target)
	case target == "":
		return NewMemoryStore(), nil
	default:
		return NewFileStore(target)
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
