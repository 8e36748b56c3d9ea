//go:build !avr

package strconvx

import "strconv"

func ParseUint(s string, base, bitSize int) (uint64, error) {
	if base == 0 {
		base = detectBase(&s)
	}
	return strconv.ParseUint(s, base, bitSize)
}

func FormatUint(u uint64, base int) string { return strconv.FormatUint(u, base) }

func Itoa(i int) string { return strconv.Itoa(i) }
