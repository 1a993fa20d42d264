package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestUTF8RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ascii", "hunter2"},
		{"empty", ""},
		{"multibyte", "pässwörd"},
		{"cjk", "秘密の値"},
		{"emoji", "🔑 key"},
		{"control chars", "line1\nline2\x00tab\t"},
	}

	c := UTF8{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(data, []byte(tt.value)) {
				t.Errorf("Encode() = %q, want %q", data, tt.value)
			}

			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.value {
				t.Errorf("Decode() = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestUTF8EncodeRejectsInvalidString(t *testing.T) {
	c := UTF8{}
	_, err := c.Encode("ok\xff\xfe")
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Encode() error = %v, want ErrInvalidEncoding", err)
	}
}

func TestUTF8DecodeRejectsInvalidBytes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"lone continuation", []byte{0x80}},
		{"invalid byte", []byte{0xff, 0xfe, 0xfd}},
		{"truncated sequence", []byte{0xe7, 0xa7}},
	}

	c := UTF8{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode(tt.data)
			if !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("Decode() error = %v, want ErrInvalidEncoding", err)
			}
			if got != "" {
				t.Errorf("Decode() = %q, want empty string on failure", got)
			}
		})
	}
}
