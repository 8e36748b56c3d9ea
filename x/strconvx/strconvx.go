// Package strconvx parses and formats unsigned integers with the same
// signatures as strconv, without pulling strconv into AVR builds.
//
// Base 0 accepts 0x, 0b and 0o prefixes. A bare leading zero is decimal,
// so "010" is ten.
package strconvx

// detectBase strips a radix prefix from *ps and returns the base, 10 when
// there is none.
func detectBase(ps *string) int {
	s := *ps
	if len(s) >= 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			*ps = s[2:]
			return 16
		case 'b', 'B':
			*ps = s[2:]
			return 2
		case 'o', 'O':
			*ps = s[2:]
			return 8
		}
	}
	return 10
}
