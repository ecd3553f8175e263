package parser

import (
	"fmt"
	"strconv"
	"strings"
)

func isUpper(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

func isTerminator(b byte) bool {
	return b == '\r' || b == '\n'
}

// hexNibble decodes one hex digit, either case
func hexNibble(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	}
	return 0, false
}

// ParseHex decodes an unsigned hex field of 1..8 digits
func ParseHex(s string) (uint32, error) {
	if len(s) == 0 || len(s) > 8 {
		return 0, fmt.Errorf("hex field %q: bad length", s)
	}
	var v uint32
	for i := 0; i < len(s); i++ {
		n, ok := hexNibble(s[i])
		if !ok {
			return 0, fmt.Errorf("hex field %q: bad digit %q", s, s[i])
		}
		v = v<<4 | uint32(n)
	}
	return v, nil
}

// ParseHexByte decodes exactly two hex digits
func ParseHexByte(s string) (uint8, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("hex byte %q: want 2 digits", s)
	}
	v, err := ParseHex(s)
	return uint8(v), err
}

// ParseSerial decodes a serial number value: an optional leading letter
// followed by decimal digits.
func ParseSerial(s string) (prefix byte, serial uint32, err error) {
	if s == "" {
		return 0, 0, fmt.Errorf("serial number: empty")
	}
	digits := s
	if isUpper(s[0]) {
		prefix = s[0]
		digits = s[1:]
	}
	if digits == "" {
		return 0, 0, fmt.Errorf("serial number %q: no digits", s)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, 0, fmt.Errorf("serial number %q: bad digit %q", s, digits[i])
		}
	}
	v, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("serial number %q: %w", s, err)
	}
	return prefix, uint32(v), nil
}

// ParseRoute decodes a comma separated list of hex node IDs ("01,02,0A").
// "NA" and the empty string mean no route.
func ParseRoute(s string, maxNodes int) ([]uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > maxNodes {
		return nil, fmt.Errorf("route %q: %d nodes exceeds %d", s, len(parts), maxNodes)
	}
	nodes := make([]uint8, 0, len(parts))
	for _, p := range parts {
		n, err := ParseHexByte(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", s, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// FormatRoute encodes route nodes the way @RT and @DT /R expect them
func FormatRoute(nodes []uint8) string {
	if len(nodes) == 0 {
		return "NA"
	}
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = fmt.Sprintf("%02X", n)
	}
	return strings.Join(parts, ",")
}
