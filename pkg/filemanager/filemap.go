package filemanager

import (
	"fmt"
	"sort"

	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// Address areas
const (
	PortDataStart   uint32 = 0x0
	PortDataEnd     uint32 = 0x4000000
	PortDataAlign   uint32 = 1024
	DefinitionStart uint32 = 0x4000000
	DefinitionEnd   uint32 = 0x20000000
	DefinitionAlign uint32 = 16 * 1024
	UserDataStart   uint32 = 0x20000000
	UserDataEnd     uint32 = 0x3FFFF000
	UserDataAlign   uint32 = 1024

	EventFileAddress uint32 = 0x3FFFF000
	EventFileName           = "apx_event.log"
	EventFileLen     uint32 = 0x400
)

// FileMap keeps files ordered by address. It is not safe for concurrent
// use; the Manager guards its maps.
type FileMap struct {
	files  []*File
	byName map[string]*File
}

// NewFileMap creates an empty map
func NewFileMap() *FileMap {
	return &FileMap{byName: make(map[string]*File)}
}

func area(kind nodedata.FileKind) (start, end, align uint32) {
	switch kind {
	case nodedata.FileOutData, nodedata.FileInData:
		return PortDataStart, PortDataEnd, PortDataAlign
	case nodedata.FileDefinition:
		return DefinitionStart, DefinitionEnd, DefinitionAlign
	default:
		return UserDataStart, UserDataEnd, UserDataAlign
	}
}

func alignUp(v, align uint32) uint64 {
	return (uint64(v) + uint64(align) - 1) / uint64(align) * uint64(align)
}

// AssignAddress picks the first free aligned address in the file's area.
// Event files always get EventFileAddress.
func (m *FileMap) AssignAddress(f *File) error {
	if f.Kind == nodedata.FileEvent {
		f.Info.Address = EventFileAddress
		return nil
	}
	start, end, align := area(f.Kind)
	length := uint64(max(f.Info.Length, 1))
	candidate := uint64(start)
	for _, e := range m.files {
		lo, hi := e.span()
		if hi <= start || lo >= end {
			continue
		}
		if candidate+length <= uint64(lo) {
			break
		}
		if uint64(hi) > candidate {
			candidate = alignUp(hi, align)
		}
	}
	if candidate+length > uint64(end) {
		return fmt.Errorf("%w for %s", ErrNoSpace, f.Name())
	}
	f.Info.Address = uint32(candidate)
	return nil
}

// Insert adds a file with an assigned address
func (m *FileMap) Insert(f *File) error {
	if f.Info.Address == rmf.InvalidAddress {
		return fmt.Errorf("%w: %s has no address", ErrFileNotFound, f.Name())
	}
	if _, ok := m.byName[f.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, f.Name())
	}
	lo, hi := f.span()
	i := sort.Search(len(m.files), func(i int) bool { return m.files[i].Address() >= lo })
	if i > 0 {
		if _, prevHi := m.files[i-1].span(); prevHi > lo {
			return fmt.Errorf("%w: %s and %s", ErrOverlap, f.Name(), m.files[i-1].Name())
		}
	}
	if i < len(m.files) {
		if nextLo, _ := m.files[i].span(); nextLo < hi {
			return fmt.Errorf("%w: %s and %s", ErrOverlap, f.Name(), m.files[i].Name())
		}
	}
	m.files = append(m.files, nil)
	copy(m.files[i+1:], m.files[i:])
	m.files[i] = f
	m.byName[f.Name()] = f
	return nil
}

// Remove deletes f from the map and reports whether it was present
func (m *FileMap) Remove(f *File) bool {
	for i, e := range m.files {
		if e == f {
			m.files = append(m.files[:i], m.files[i+1:]...)
			delete(m.byName, f.Name())
			return true
		}
	}
	return false
}

// FindByAddress returns the file whose range contains address
func (m *FileMap) FindByAddress(address uint32) *File {
	i := sort.Search(len(m.files), func(i int) bool { return m.files[i].Address() > address })
	if i == 0 {
		return nil
	}
	f := m.files[i-1]
	if _, hi := f.span(); address < hi {
		return f
	}
	return nil
}

// FindByName returns the named file
func (m *FileMap) FindByName(name string) *File {
	return m.byName[name]
}

// Files returns the files in address order
func (m *FileMap) Files() []*File {
	return append([]*File(nil), m.files...)
}

// Len returns the number of files
func (m *FileMap) Len() int {
	return len(m.files)
}
