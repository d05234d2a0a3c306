package filemanager

import (
	"errors"
	"testing"

	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

func newFile(kind nodedata.FileKind, name string, length uint32) *File {
	return NewLocalFile(kind, rmf.NewFileInfo(name, rmf.InvalidAddress, length), nil)
}

func TestFileMap_AssignAddress(t *testing.T) {
	m := NewFileMap()

	tests := []struct {
		kind   nodedata.FileKind
		name   string
		length uint32
		want   uint32
	}{
		{nodedata.FileOutData, "A.out", 3, 0x0},
		{nodedata.FileDefinition, "A.apx", 100, 0x4000000},
		{nodedata.FileInData, "A.in", 2000, 0x400},
		{nodedata.FileOutData, "B.out", 0, 0xC00},
		{nodedata.FileDefinition, "B.apx", 20000, 0x4004000},
		{nodedata.FileDefinition, "C.apx", 10, 0x400C000},
		{nodedata.FileUserData, "blob.bin", 10, 0x20000000},
		{nodedata.FileEvent, EventFileName, EventFileLen, EventFileAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFile(tt.kind, tt.name, tt.length)
			if err := m.AssignAddress(f); err != nil {
				t.Fatalf("AssignAddress() error = %v", err)
			}
			if f.Address() != tt.want {
				t.Errorf("address = 0x%08X, want 0x%08X", f.Address(), tt.want)
			}
			if err := m.Insert(f); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		})
	}
	if m.Len() != len(tests) {
		t.Errorf("Len() = %d, want %d", m.Len(), len(tests))
	}
}

func TestFileMap_ReusesGap(t *testing.T) {
	m := NewFileMap()
	a := newFile(nodedata.FileOutData, "A.out", 10)
	b := newFile(nodedata.FileOutData, "B.out", 10)
	for _, f := range []*File{a, b} {
		if err := m.AssignAddress(f); err != nil {
			t.Fatal(err)
		}
		if err := m.Insert(f); err != nil {
			t.Fatal(err)
		}
	}
	m.Remove(a)

	c := newFile(nodedata.FileOutData, "C.out", 10)
	if err := m.AssignAddress(c); err != nil {
		t.Fatal(err)
	}
	if c.Address() != 0 {
		t.Errorf("address = 0x%X, want the freed slot at 0", c.Address())
	}
}

func TestFileMap_InsertErrors(t *testing.T) {
	m := NewFileMap()
	first := NewLocalFile(nodedata.FileOutData, rmf.NewFileInfo("A.out", 0x100, 0x100), nil)
	if err := m.Insert(first); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    *File
		wantErr error
	}{
		{"duplicate name", NewLocalFile(nodedata.FileOutData, rmf.NewFileInfo("A.out", 0x1000, 1), nil), ErrDuplicateName},
		{"overlaps start", NewLocalFile(nodedata.FileOutData, rmf.NewFileInfo("B.out", 0x80, 0x81), nil), ErrOverlap},
		{"overlaps end", NewLocalFile(nodedata.FileOutData, rmf.NewFileInfo("C.out", 0x1FF, 4), nil), ErrOverlap},
		{"no address", newFile(nodedata.FileOutData, "D.out", 1), ErrFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Insert(tt.file); !errors.Is(err, tt.wantErr) {
				t.Errorf("Insert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	adjacent := NewLocalFile(nodedata.FileOutData, rmf.NewFileInfo("E.out", 0x200, 4), nil)
	if err := m.Insert(adjacent); err != nil {
		t.Errorf("adjacent Insert() error = %v", err)
	}
}

func TestFileMap_Find(t *testing.T) {
	m := NewFileMap()
	f := NewLocalFile(nodedata.FileDefinition, rmf.NewFileInfo("N.apx", 0x4000000, 64), nil)
	if err := m.Insert(f); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		address uint32
		want    *File
	}{
		{0x4000000, f},
		{0x400003F, f},
		{0x4000040, nil},
		{0x3FFFFFF, nil},
	}
	for _, tt := range tests {
		if got := m.FindByAddress(tt.address); got != tt.want {
			t.Errorf("FindByAddress(0x%X) = %v, want %v", tt.address, got, tt.want)
		}
	}
	if m.FindByName("N.apx") != f || m.FindByName("M.apx") != nil {
		t.Error("FindByName mismatch")
	}
	if !m.Remove(f) || m.Remove(f) {
		t.Error("Remove should succeed once")
	}
}
