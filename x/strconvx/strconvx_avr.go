//go:build avr

package strconvx

type numError string

func (e numError) Error() string { return string(e) }

const (
	errSyntax numError = "invalid syntax"
	errRange  numError = "value out of range"
)

// ParseUint rejects values that do not fit bitSize (0 means 64).
func ParseUint(s string, base, bitSize int) (uint64, error) {
	if base == 0 {
		base = detectBase(&s)
	}
	if base < 2 || base > 36 || len(s) == 0 {
		return 0, errSyntax
	}
	if bitSize <= 0 || bitSize > 64 {
		bitSize = 64
	}
	limit := uint64(1)<<uint(bitSize) - 1 // wraps to all ones for 64
	b := uint64(base)
	var v uint64
	for i := 0; i < len(s); i++ {
		d, ok := digit(s[i])
		if !ok || d >= b {
			return 0, errSyntax
		}
		if v > (limit-d)/b {
			return 0, errRange
		}
		v = v*b + d
	}
	return v, nil
}

func digit(c byte) (uint64, bool) {
	switch {
	case '0' <= c && c <= '9':
		return uint64(c - '0'), true
	case 'a' <= c && c <= 'z':
		return uint64(c-'a') + 10, true
	case 'A' <= c && c <= 'Z':
		return uint64(c-'A') + 10, true
	}
	return 0, false
}

func FormatUint(u uint64, base int) string {
	if base < 2 || base > 36 {
		base = 10
	}
	if u == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [64]byte
	i := len(buf)
	b := uint64(base)
	for u > 0 {
		i--
		buf[i] = digits[u%b]
		u /= b
	}
	return string(buf[i:])
}

func Itoa(i int) string {
	if i < 0 {
		return "-" + FormatUint(uint64(-int64(i)), 10)
	}
	return FormatUint(uint64(i), 10)
}
