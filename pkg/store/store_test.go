package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestFileStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "defs", "definitions.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	first := NewRecord("Engine", []byte("APX/1.2\nN\"Engine\"\n\n"), 0, 2)
	if err := s.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	if first.ID == uuid.Nil || first.Seen != 1 || first.FirstSeen.IsZero() {
		t.Errorf("stored record = %+v", first)
	}

	again := NewRecord("Engine", []byte("APX/1.2\nN\"Engine\"\n\n"), 0, 2)
	if err := s.Put(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || again.Seen != 2 {
		t.Errorf("repeated definition = %+v, want same id seen twice", again)
	}

	changed := NewRecord("Engine", []byte("APX/1.2\nN\"Engine\"\nP\"X\"C\n\n"), 0, 3)
	if err := s.Put(ctx, changed); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "Engine")
	if err != nil {
		t.Fatal(err)
	}
	if got.Checksum != changed.Checksum {
		t.Errorf("Get() returned checksum %s, want the latest %s", got.Checksum, changed.Checksum)
	}

	if _, err := s.Get(ctx, "Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(Missing) error = %v, want ErrNotFound", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	list, err := reopened.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("reloaded %d records, want 2", len(list))
	}
	if list[0].Seen != 2 || list[1].OutPortLen != 3 {
		t.Errorf("reloaded records = %+v %+v", list[0], list[1])
	}
}

func TestFileStore_LoadCorruptedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Error("expected error for corrupted file")
	}
}

func TestFileStore_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Put(ctx, NewRecord("Node", []byte("same"), 1, 1)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].Seen != 20 {
		t.Errorf("records = %+v, want one record seen 20 times", list)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if fs, ok := s.(*FileStore); !ok || fs.path != "" {
		t.Errorf("Open(\"\") = %T, want memory store", s)
	}

	path := filepath.Join(t.TempDir(), "defs.json")
	s, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if fs, ok := s.(*FileStore); !ok || fs.path != path {
		t.Errorf("Open(path) = %T", s)
	}
	if err := s.Ping(ctx); err != nil {
		t.Error(err)
	}
	s.Close()
}

func TestPGStore(t *testing.T) {
	dsn := os.Getenv("APX_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("APX_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	name := "PGTest_" + uuid.NewString()[:8]
	rec := NewRecord(name, []byte("APX/1.2\n"), 1, 2)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	again := NewRecord(name, []byte("APX/1.2\n"), 1, 2)
	if err := s.Put(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != rec.ID || again.Seen != 2 {
		t.Errorf("upsert = %+v", again)
	}
	got, err := s.Get(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition != "APX/1.2\n" || got.InPortLen != 1 {
		t.Errorf("Get() = %+v", got)
	}
}
