// Package codec converts binary audio to and from the wire representation used
// by the live session channel.
//
// The remote service accepts inline media only as pure standard base64
// (RFC 4648 §4, padded). Any preamble such as a data-URL media type is a
// contamination: the peer answers it by closing the channel with an
// invalid-payload code, so every outbound payload must pass through [Encode]
// or [Normalize] before it reaches the transport.
//
// All functions are pure and safe for concurrent use.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrFrameCorrupt is returned by [Decode] and [Normalize] when a payload
	// contains characters outside the base64 alphabet or is not a whole number
	// of padded quanta.
	ErrFrameCorrupt = errors.New("codec: corrupt frame")

	// ErrTextUnsanitizable is returned by [SanitizeText] when input with visible
	// content consists solely of characters that sanitisation removes.
	ErrTextUnsanitizable = errors.New("codec: text unsanitizable")
)

// strict rejects non-canonical trailing bits so that a decoded frame always
// re-encodes to the exact same string.
var strict = base64.StdEncoding.Strict()

// WireFrame is a payload in its transport representation: pure padded base64
// with no header. The zero value is the encoding of an empty buffer.
type WireFrame string

// String returns the frame as a plain string.
func (f WireFrame) String() string { return string(f) }

// Encode converts raw bytes to a [WireFrame]. The output is allocated once
// and never contains a comma or any character outside the alphabet.
func Encode(raw []byte) WireFrame {
	return WireFrame(base64.StdEncoding.EncodeToString(raw))
}

// Decode converts f back to raw bytes. It never panics; malformed input yields
// an error wrapping [ErrFrameCorrupt] and a nil slice. The empty frame decodes
// to an empty, non-nil slice.
func Decode(f WireFrame) ([]byte, error) {
	s := string(f)
	if s == "" {
		return []byte{}, nil
	}
	if i := invalidIndex(s); i >= 0 {
		return nil, fmt.Errorf("%w: invalid character %q at offset %d", ErrFrameCorrupt, s[i], i)
	}
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrFrameCorrupt, len(s))
	}
	out, err := strict.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
	}
	return out, nil
}

// StripHeader removes a comma-delimited preamble (for example
// "data:audio/pcm;base64,") and surrounding whitespace. Strings without a
// comma are returned trimmed. Only the text after the last comma is kept.
func StripHeader(s string) string {
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// Normalize turns an externally produced base64 string into a [WireFrame]:
// it strips any header and verifies the result is a decodable payload.
func Normalize(s string) (WireFrame, error) {
	f := WireFrame(StripHeader(s))
	if _, err := Decode(f); err != nil {
		return "", err
	}
	return f, nil
}

// Valid reports whether s consists only of alphabet and padding characters,
// with padding appearing only at the end.
func Valid(s string) bool {
	return invalidIndex(s) < 0
}

// invalidIndex returns the offset of the first byte that is not allowed at its
// position, or -1.
func invalidIndex(s string) int {
	pad := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=':
			pad = true
		case pad:
			// Data after padding.
			return i
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		default:
			return i
		}
	}
	return -1
}

// MIMEType returns the media type for 16-bit little-endian mono PCM at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// SanitizeText prepares free text for the setup and content messages. Invalid
// UTF-8 sequences and control characters other than newline and tab are
// removed and the result is normalized to NFC.
func SanitizeText(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}
	out := norm.NFC.String(b.String())
	if strings.TrimSpace(out) == "" && strings.TrimSpace(s) != "" {
		return "", ErrTextUnsanitizable
	}
	return out, nil
}
