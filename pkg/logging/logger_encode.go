package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type encoder interface {
	encode(buf *bytes.Buffer, t time.Time, level Level, msg string, fields []Field)
}

// jsonEncoder writes a flat object. Fields follow time, level and msg in
// the order they were given; a repeated key keeps its last value.
type jsonEncoder struct{}

func (jsonEncoder) encode(buf *bytes.Buffer, t time.Time, level Level, msg string, fields []Field) {
	buf.WriteString(`{"time":`)
	writeJSON(buf, t.UTC().Format(time.RFC3339Nano))
	buf.WriteString(`,"level":`)
	writeJSON(buf, level.String())
	buf.WriteString(`,"msg":`)
	writeJSON(buf, msg)
	for i, f := range fields {
		if shadowed(fields, i) || isReserved(f.Key) {
			continue
		}
		buf.WriteByte(',')
		writeJSON(buf, f.Key)
		buf.WriteByte(':')
		writeJSON(buf, f.Value)
	}
	buf.WriteByte('}')
}

func writeJSON(buf *bytes.Buffer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	buf.Write(data)
}

func isReserved(key string) bool {
	return key == "time" || key == "level" || key == "msg"
}

// shadowed reports whether fields[i] is overridden by a later field
func shadowed(fields []Field, i int) bool {
	for _, f := range fields[i+1:] {
		if f.Key == fields[i].Key {
			return true
		}
	}
	return false
}

// textEncoder writes "time LEVEL msg key=value ...". Values with spaces,
// quotes or equals signs are quoted.
type textEncoder struct{}

func (textEncoder) encode(buf *bytes.Buffer, t time.Time, level Level, msg string, fields []Field) {
	buf.WriteString(t.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(level.String())
	buf.WriteByte(' ')
	buf.WriteString(msg)
	for i, f := range fields {
		if shadowed(fields, i) {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(f.Key)
		buf.WriteByte('=')
		s := fmt.Sprint(f.Value)
		if f.Value == nil {
			s = "<nil>"
		}
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			s = strconv.Quote(s)
		}
		buf.WriteString(s)
	}
}
