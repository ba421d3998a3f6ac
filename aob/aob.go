// Package aob matches array-of-bytes signatures with per-bit wildcards.
package aob

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// AOB is a byte pattern with a mask. A mask byte of 0xFF means exact match,
// 0x00 means wildcard, anything else compares only the set bits.
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask, nil means every byte is exact
}

// IsValid checks if the AOB pattern is valid
func (a AOB) IsValid() bool {
	return len(a.Pattern) > 0 && (a.Mask == nil || len(a.Pattern) == len(a.Mask))
}

func New(pattern, mask []byte) (AOB, error) {
	if len(pattern) == 0 {
		return AOB{}, fmt.Errorf("pattern is empty")
	}
	if mask != nil && len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// Parse reads a PEiD style signature such as "48 8B ?? ?? 4? C3".
// Bytes are separated by spaces or commas; "?" and "??" match anything, and a
// single "?" nibble matches any value for that half of the byte.
func Parse(signature string) (AOB, error) {
	parts := strings.FieldsFunc(signature, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return AOB{}, fmt.Errorf("empty signature")
	}

	a := AOB{
		Pattern: make([]byte, 0, len(parts)),
		Mask:    make([]byte, 0, len(parts)),
	}
	for _, part := range parts {
		value, mask, err := parseByte(part)
		if err != nil {
			return AOB{}, err
		}
		a.Pattern = append(a.Pattern, value)
		a.Mask = append(a.Mask, mask)
	}
	return a, nil
}

// MustParse is like Parse but panics on a malformed signature
func MustParse(signature string) AOB {
	a, err := Parse(signature)
	if err != nil {
		panic(err)
	}
	return a
}

func parseByte(part string) (value, mask byte, err error) {
	if part == "?" || part == "??" {
		return 0, 0, nil
	}
	if len(part) != 2 {
		return 0, 0, fmt.Errorf("invalid hex byte: %s", part)
	}

	for i, shift := range []uint{4, 0} {
		c := part[i]
		if c == '?' {
			continue
		}
		nibble, err := strconv.ParseUint(string(c), 16, 8)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid hex byte: %s", part)
		}
		value |= byte(nibble) << shift
		mask |= 0x0F << shift
	}
	return value, mask, nil
}

// Find returns the index of the first match at or after start, or -1
func (a AOB) Find(data []byte, start int) int {
	if start < 0 {
		start = 0
	}
	if !a.IsValid() || len(data)-start < len(a.Pattern) {
		return -1
	}

	if a.exact() {
		i := bytes.Index(data[start:], a.Pattern)
		if i < 0 {
			return -1
		}
		return start + i
	}

	for i := start; i <= len(data)-len(a.Pattern); i++ {
		if a.matchAt(data, i) {
			return i
		}
	}
	return -1
}

// FindAll returns the index of every match, overlapping ones included
func (a AOB) FindAll(data []byte) []int {
	var matches []int
	for i := a.Find(data, 0); i >= 0; i = a.Find(data, i+1) {
		matches = append(matches, i)
	}
	return matches
}

func (a AOB) exact() bool {
	for _, m := range a.Mask {
		if m != 0xFF {
			return false
		}
	}
	return true
}

func (a AOB) matchAt(data []byte, i int) bool {
	for j, want := range a.Pattern {
		m := a.Mask[j]
		if m == 0 {
			continue
		}
		if data[i+j]&m != want&m {
			return false
		}
	}
	return true
}

func (a AOB) String() string {
	var sb strings.Builder
	for i, value := range a.Pattern {
		if i > 0 {
			sb.WriteString(" ")
		}
		mask := byte(0xFF)
		if a.Mask != nil {
			mask = a.Mask[i]
		}
		s := strings.ToUpper(hex.EncodeToString([]byte{value}))
		if mask&0xF0 == 0 {
			s = "?" + s[1:]
		}
		if mask&0x0F == 0 {
			s = s[:1] + "?"
		}
		sb.WriteString(s)
	}
	return sb.String()
}
