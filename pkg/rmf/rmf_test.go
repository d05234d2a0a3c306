package rmf

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestGreeting(t *testing.T) {
	if got := string(Greeting()); got != "RMFP/1.0\nNumHeader-Format:32\n\n" {
		t.Errorf("Greeting() = %q", got)
	}

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"default greeting", "RMFP/1.0\nNumHeader-Format:32\n\n", nil},
		{"no fields", "RMFP/1.0\n\n", nil},
		{"extra field", "RMFP/1.0\nNumHeader-Format:32\nClient-Name: test\n\n", nil},
		{"wrong protocol", "HTTP/1.1\n\n", ErrInvalidGreeting},
		{"numheader 16", "RMFP/1.0\nNumHeader-Format:16\n\n", ErrUnsupportedNumHeader},
		{"unterminated", "RMFP/1.0\nNumHeader-Format:32\n", ErrInvalidGreeting},
		{"malformed line", "RMFP/1.0\nbogus\n\n", ErrInvalidGreeting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseGreeting([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseGreeting() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGreeting() error = %v", err)
			}
			if h.NumHeaderFormat != 32 {
				t.Errorf("NumHeaderFormat = %d", h.NumHeaderFormat)
			}
		})
	}
}

func TestNumHeader(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x00, 0x00, 0x80}},
		{0x12345, []byte{0x80, 0x01, 0x23, 0x45}},
		{MaxNumHeader32, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		got, err := AppendNumHeader(nil, tt.value)
		if err != nil {
			t.Fatalf("AppendNumHeader(%d) error = %v", tt.value, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AppendNumHeader(%d) = % X, want % X", tt.value, got, tt.want)
		}
		if NumHeaderLen(tt.value) != len(tt.want) {
			t.Errorf("NumHeaderLen(%d) = %d", tt.value, NumHeaderLen(tt.value))
		}
		v, n, err := DecodeNumHeader(got)
		if err != nil || v != tt.value || n != len(tt.want) {
			t.Errorf("DecodeNumHeader(% X) = %d, %d, %v", got, v, n, err)
		}
	}

	if _, err := AppendNumHeader(nil, 0x80000000); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("expected ErrValueTooLarge, got %v", err)
	}
	if _, _, err := DecodeNumHeader([]byte{0x80, 0x01}); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}

func TestAddressHeader(t *testing.T) {
	tests := []struct {
		name    string
		address uint32
		more    bool
		want    []byte
	}{
		{"zero", 0, false, []byte{0x00, 0x00}},
		{"short max", 0x3FFF, false, []byte{0x3F, 0xFF}},
		{"short more", 0x400, true, []byte{0x44, 0x00}},
		{"long", 0x4000, false, []byte{0x80, 0x00, 0x40, 0x00}},
		{"definition area", 0x4000000, true, []byte{0xC4, 0x00, 0x00, 0x00}},
		{"command area", CmdStartAddress, false, []byte{0xBF, 0xFF, 0xFC, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AppendAddress(nil, tt.address, tt.more)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("AppendAddress() = % X, want % X", got, tt.want)
			}
			address, more, n, err := DecodeAddress(got)
			if err != nil || address != tt.address || more != tt.more || n != len(tt.want) {
				t.Errorf("DecodeAddress() = %#x, %v, %d, %v", address, more, n, err)
			}
		})
	}

	if _, err := AppendAddress(nil, 0x40000000, false); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestAckMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteMessage(AckMessage()); err != nil {
		t.Fatal(err)
	}
	want := []byte{8, 0xBF, 0xFF, 0xFC, 0x00, 0, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("framed ack = % X, want % X", buf.Bytes(), want)
	}
	if !IsAck(AckMessage()) {
		t.Error("IsAck(AckMessage()) = false")
	}
	if IsAck(CommandMessage(EncodeCommand(CmdNack))) {
		t.Error("IsAck(NACK) = true")
	}
}

func TestFileInfoCodec(t *testing.T) {
	info := NewFileInfo("TestNode1.apx", 0x4000000, 54)
	info.DigestType = DigestSHA256
	info.Digest[0] = 0xAB
	payload, err := info.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != FileInfoBaseLen+len("TestNode1.apx")+1 {
		t.Errorf("payload length = %d", len(payload))
	}
	if !bytes.Equal(payload[:12], []byte{3, 0, 0, 0, 0, 0, 0, 4, 54, 0, 0, 0}) {
		t.Errorf("payload header = % X", payload[:12])
	}

	decoded, err := DecodeFileInfo(payload)
	if err != nil {
		t.Fatal(err)
	}
	if *decoded != *info {
		t.Errorf("DecodeFileInfo() = %+v, want %+v", decoded, info)
	}

	long := NewFileInfo(string(bytes.Repeat([]byte{'x'}, MaxFileNameLen+1)), 0, 1)
	if _, err := long.Encode(); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("expected ErrNameTooLong, got %v", err)
	}
	if _, err := DecodeFileInfo(payload[:len(payload)-1]); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand for unterminated name, got %v", err)
	}
	if _, err := DecodeFileInfo(payload[:20]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}

func TestAddressCommands(t *testing.T) {
	for _, cmd := range []CmdType{CmdFileOpen, CmdFileClose, CmdRevokeFile} {
		got, address, err := DecodeAddressCommand(EncodeAddressCommand(cmd, 0x400))
		if err != nil || got != cmd || address != 0x400 {
			t.Errorf("%s round trip = %s, %#x, %v", cmd, got, address, err)
		}
	}
	if _, _, err := DecodeAddressCommand(EncodeAddressCommand(CmdPingRqst, 0)); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
	if CmdType(99).String() != "CMD(99)" {
		t.Errorf("String() = %s", CmdType(99))
	}
}

func TestReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	small := []byte("hello")
	large := bytes.Repeat([]byte{0x5A}, 300)
	for _, msg := range [][]byte{small, large, {}} {
		if err := w.WriteMessage(msg); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(&buf, 0)
	for i, want := range [][]byte{small, large, {}} {
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d = %d bytes, want %d", i, len(got), len(want))
		}
	}
	if _, err := r.ReadMessage(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteMessage(make([]byte, 200)); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(bytes.NewReader(buf.Bytes()), 100).ReadMessage(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
	truncated := buf.Bytes()[:50]
	if _, err := NewReader(bytes.NewReader(truncated), 0).ReadMessage(); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestHeaderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("numheader round trip", prop.ForAll(
		func(v uint32) bool {
			enc, err := AppendNumHeader(nil, v)
			if err != nil {
				return false
			}
			got, n, err := DecodeNumHeader(enc)
			return err == nil && got == v && n == NumHeaderLen(v)
		},
		gen.UInt32Range(0, MaxNumHeader32),
	))

	properties.Property("address round trip", prop.ForAll(
		func(address uint32, more bool) bool {
			enc, err := AppendAddress(nil, address, more)
			if err != nil {
				return false
			}
			got, gotMore, n, err := DecodeAddress(enc)
			return err == nil && got == address && gotMore == more && n == AddressHeaderLen(address)
		},
		gen.UInt32Range(0, MaxAddress),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
