package logging

import (
	"fmt"
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Duration logs d in its String form, e.g. "1.5s"
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// Error logs err under "error". A nil error logs null.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component names the package or subsystem emitting the entry
func Component(name string) Field {
	return String("component", name)
}

// ConnectionID identifies the file manager of one client connection
func ConnectionID(id uint32) Field {
	return Field{Key: "connection_id", Value: id}
}

func NodeName(name string) Field {
	return String("node", name)
}

func PortName(name string) Field {
	return String("port", name)
}

func FileName(name string) Field {
	return String("file", name)
}

// Address formats a remote file address as hex
func Address(addr uint32) Field {
	return String("address", fmt.Sprintf("0x%08X", addr))
}

func Bytes(n int) Field {
	return Int("bytes", n)
}

func Remote(addr string) Field {
	return String("remote", addr)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
