package process

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// String encodings commonly found in target processes. UTF-16 variants
// neither write nor expect a byte order mark.
var (
	UTF8        encoding.Encoding = unicode.UTF8
	UTF16LE                       = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	UTF16BE                       = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	Windows1252 encoding.Encoding = charmap.Windows1252
	Latin1      encoding.Encoding = charmap.ISO8859_1
)

// ReadString reads a NUL-terminated string with the configured encoding and
// maximum length
func (m *RemoteMemory) ReadString(addr ProcessMemoryAddress, relative bool) (string, error) {
	return m.ReadStringEncoded(addr, m.encoding, m.maxStringLength, relative)
}

// ReadStringEncoded reads exactly maxLength bytes, decodes them with enc and
// truncates at the first NUL. If no NUL appears the whole decoded buffer is
// returned. The read fails if any of the maxLength bytes is unreadable, even
// when the terminator comes earlier.
func (m *RemoteMemory) ReadStringEncoded(addr ProcessMemoryAddress, enc encoding.Encoding, maxLength ProcessMemorySize, relative bool) (string, error) {
	if enc == nil {
		enc = m.encoding
	}
	data, err := m.ReadBytes(addr, maxLength, relative)
	if err != nil {
		return "", err
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", &ReadError{Address: addr, Size: maxLength, Err: fmt.Errorf("decode: %w", err)}
	}

	s := string(decoded)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s, nil
}

// WriteString encodes value with the configured encoding and writes it
// followed by a terminator
func (m *RemoteMemory) WriteString(addr ProcessMemoryAddress, value string, relative bool) error {
	return m.WriteStringEncoded(addr, value, m.encoding, relative)
}

// WriteStringEncoded encodes value plus a trailing NUL with enc and writes the
// result in one transfer
func (m *RemoteMemory) WriteStringEncoded(addr ProcessMemoryAddress, value string, enc encoding.Encoding, relative bool) error {
	if enc == nil {
		enc = m.encoding
	}
	data, err := enc.NewEncoder().Bytes([]byte(value + "\x00"))
	if err != nil {
		return &WriteError{Address: addr, Size: ProcessMemorySize(len(value) + 1), Err: fmt.Errorf("%w: encode: %w", ErrInvalidArgument, err)}
	}
	return m.WriteBytes(addr, data, relative)
}
