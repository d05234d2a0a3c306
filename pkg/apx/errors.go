package apx

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the numeric error code shared by the parser, the node model
// and the runtime. The values are part of the wire-visible behavior and must
// not be reordered.
type ErrorCode int32

const (
	NoError ErrorCode = iota
	InvalidArgumentError
	MemError
	ParseError
	DataSignatureError
	ValueError
	LengthError
	ElementTypeError
	DvTypeError
	UnsupportedError
	NotImplementedError
	UnmatchedBraceError
	UnmatchedBracketError
	UnmatchedStringError
	InvalidTypeRefError
	ExpectedBracketError
)

var errorCodeNames = [...]string{
	NoError:               "no error",
	InvalidArgumentError:  "invalid argument",
	MemError:              "out of memory",
	ParseError:            "parse error",
	DataSignatureError:    "data signature error",
	ValueError:            "value error",
	LengthError:           "length error",
	ElementTypeError:      "element type error",
	DvTypeError:           "dynamic value type error",
	UnsupportedError:      "unsupported",
	NotImplementedError:   "not implemented",
	UnmatchedBraceError:   "unmatched brace",
	UnmatchedBracketError: "unmatched bracket",
	UnmatchedStringError:  "unmatched string",
	InvalidTypeRefError:   "invalid type reference",
	ExpectedBracketError:  "expected bracket",
}

// String returns a human readable name for the code
func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("error code %d", int32(c))
}

// Sentinel errors, one per code. Use errors.Is to test a returned error
// against them; matching compares codes only.
var (
	ErrInvalidArgument  = &Error{Code: InvalidArgumentError}
	ErrMem              = &Error{Code: MemError}
	ErrParse            = &Error{Code: ParseError}
	ErrDataSignature    = &Error{Code: DataSignatureError}
	ErrValue            = &Error{Code: ValueError}
	ErrLength           = &Error{Code: LengthError}
	ErrElementType      = &Error{Code: ElementTypeError}
	ErrDvType           = &Error{Code: DvTypeError}
	ErrUnsupported      = &Error{Code: UnsupportedError}
	ErrNotImplemented   = &Error{Code: NotImplementedError}
	ErrUnmatchedBrace   = &Error{Code: UnmatchedBraceError}
	ErrUnmatchedBracket = &Error{Code: UnmatchedBracketError}
	ErrUnmatchedString  = &Error{Code: UnmatchedStringError}
	ErrInvalidTypeRef   = &Error{Code: InvalidTypeRefError}
	ErrExpectedBracket  = &Error{Code: ExpectedBracketError}
)

// Error is the structured error returned by this package. Line is the
// 1-based line of the definition text the error refers to, or 0 when the
// error did not come from parsed text.
type Error struct {
	Code   ErrorCode
	Line   int
	Detail string
	Cause  error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the error code carried by err. The boolean is false when
// err is not (and does not wrap) an *Error.
func CodeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return NoError, true
	}
	var apxErr *Error
	if errors.As(err, &apxErr) {
		return apxErr.Code, true
	}
	return NoError, false
}

// LineOf returns the definition line number carried by err, or 0.
func LineOf(err error) int {
	var apxErr *Error
	if errors.As(err, &apxErr) {
		return apxErr.Line
	}
	return 0
}

// DetailOf returns the detail text carried by err, or "".
func DetailOf(err error) string {
	var apxErr *Error
	if errors.As(err, &apxErr) {
		return apxErr.Detail
	}
	return ""
}

func errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// atLine returns a copy of err annotated with line. Errors that already
// carry a line number keep it.
func atLine(err error, line int) error {
	if err == nil || line <= 0 {
		return err
	}
	var apxErr *Error
	if !errors.As(err, &apxErr) {
		return &Error{Code: ParseError, Line: line, Cause: err}
	}
	if apxErr.Line > 0 {
		return err
	}
	cp := *apxErr
	cp.Line = line
	return &cp
}
