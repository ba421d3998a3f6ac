package process

import (
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/text/encoding"
)

// Option configures a RemoteMemory
type Option func(*RemoteMemory)

// WithLogger replaces the default per-process logger
func WithLogger(log *logger.Logger) Option {
	return func(m *RemoteMemory) {
		m.log = log
	}
}

// WithStringEncoding sets the encoding used by ReadString and WriteString.
// The default is UTF-8.
func WithStringEncoding(enc encoding.Encoding) Option {
	return func(m *RemoteMemory) {
		if enc != nil {
			m.encoding = enc
		}
	}
}

// WithMaxStringLength sets how many bytes ReadString fetches
func WithMaxStringLength(n ProcessMemorySize) Option {
	return func(m *RemoteMemory) {
		if n > 0 {
			m.maxStringLength = n
		}
	}
}
