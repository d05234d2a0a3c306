package apx

import (
	"errors"
	"testing"
)

func TestParseSignature_PackLen(t *testing.T) {
	tests := []struct {
		dsg  string
		want int
	}{
		{"C", 1},
		{"S", 2},
		{"L", 4},
		{"U", 8},
		{"c", 1},
		{"s", 2},
		{"l", 4},
		{"u", 8},
		{"C[8]", 8},
		{"S[16]", 32},
		{"L[2]", 8},
		{"a[10]", 10},
		{"C(0,7)", 1},
		{"s(-100,100)", 2},
		{`{"NodeId"C"DTCId"S"FailT"C"RqstData"C(0,3)}`, 5},
		{`{"a"a[9]"b"a[4]"c"a[9]"d"a[9]"e"a[4]"f"C}`, 36},
		{`{"x"S"y"S}[3]`, 12},
		{`{"outer"{"inner"L"flag"C}"tail"S[2]}`, 9},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.dsg, func(t *testing.T) {
			sig, err := ParseSignature(tt.dsg)
			if err != nil {
				t.Fatalf("ParseSignature(%q) error = %v", tt.dsg, err)
			}
			if got := sig.PackLen(); got != tt.want {
				t.Errorf("PackLen() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseSignature_Errors(t *testing.T) {
	tests := []struct {
		dsg  string
		want ErrorCode
	}{
		{"T[0", UnmatchedBracketError},
		{"T[]", InvalidTypeRefError},
		{"T[garbage]", InvalidTypeRefError},
		{"T[0garbage]", InvalidTypeRefError},
		{`T["type_T`, UnmatchedBracketError},
		{`T["type_T]`, UnmatchedStringError},
		{`T"type_T"`, ExpectedBracketError},
		{`{"UserId"S`, UnmatchedBraceError},
		{"X", ElementTypeError},
		{"C[", UnmatchedBracketError},
		{"C[x]", ExpectedBracketError},
		{"C[0]", LengthError},
		{"a", DataSignatureError},
		{"C(0,", ParseError},
		{"C(7,0)", ValueError},
		{"{}", DataSignatureError},
		{"CS", DataSignatureError},
	}

	for _, tt := range tests {
		t.Run(tt.dsg, func(t *testing.T) {
			_, err := ParseSignature(tt.dsg)
			if err == nil {
				t.Fatalf("ParseSignature(%q) expected error", tt.dsg)
			}
			code, ok := CodeOf(err)
			if !ok || code != tt.want {
				t.Errorf("ParseSignature(%q) code = %v, want %v (err: %v)", tt.dsg, code, tt.want, err)
			}
		})
	}
}

func TestParseSignature_TypeRefs(t *testing.T) {
	sig, err := ParseSignature("T[12]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Element.Type != TypeRefID || sig.Element.RefID != 12 {
		t.Errorf("got %+v, want reference by id 12", sig.Element)
	}

	sig, err = ParseSignature(`T["OffOn_T"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Element.Type != TypeRefName || sig.Element.RefName != "OffOn_T" {
		t.Errorf("got %+v, want reference by name", sig.Element)
	}
	if sig.PackLen() != 0 {
		t.Errorf("unresolved reference PackLen() = %d, want 0", sig.PackLen())
	}
}

func TestDataElement_String(t *testing.T) {
	for _, dsg := range []string{
		"C",
		"C(0,7)",
		"S[4]",
		"a[12]",
		"u(-5,5)",
		`{"Id"C"Value"S(0,1000)}`,
		`{"p"{"x"l"y"l}[2]}`,
		"T[3]",
		`T["Percent_T"]`,
	} {
		t.Run(dsg, func(t *testing.T) {
			sig, err := ParseSignature(dsg)
			if err != nil {
				t.Fatalf("ParseSignature(%q) error = %v", dsg, err)
			}
			if got := sig.Element.String(); got != dsg {
				t.Errorf("String() = %q, want %q", got, dsg)
			}
		})
	}
}

func TestErrorSentinels(t *testing.T) {
	_, err := ParseSignature(`{"UserId"S`)
	if !errors.Is(err, ErrUnmatchedBrace) {
		t.Errorf("errors.Is(%v, ErrUnmatchedBrace) = false", err)
	}
	if errors.Is(err, ErrUnmatchedBracket) {
		t.Error("unmatched brace must not match ErrUnmatchedBracket")
	}
}

func TestErrorCodeValues(t *testing.T) {
	codes := map[ErrorCode]int32{
		NoError:               0,
		InvalidArgumentError:  1,
		ParseError:            3,
		ValueError:            5,
		UnsupportedError:      9,
		UnmatchedBraceError:   11,
		UnmatchedBracketError: 12,
		UnmatchedStringError:  13,
		InvalidTypeRefError:   14,
		ExpectedBracketError:  15,
	}
	for code, want := range codes {
		if int32(code) != want {
			t.Errorf("%v = %d, want %d", code, int32(code), want)
		}
	}
}
