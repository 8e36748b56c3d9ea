package strconvx

import "testing"

func TestParseUint(t *testing.T) {
	for _, c := range []struct {
		s    string
		base int
		bits int
		want uint64
	}{
		{"0", 0, 16, 0},
		{"1023", 0, 16, 1023},
		{"010", 0, 16, 10}, // bare zero prefix stays decimal
		{"0x3ff", 0, 16, 1023},
		{"0XFF", 0, 8, 255},
		{"0b101", 0, 8, 5},
		{"0o17", 0, 8, 15},
		{"ff", 16, 8, 255},
		{"65535", 10, 16, 65535},
	} {
		got, err := ParseUint(c.s, c.base, c.bits)
		if err != nil {
			t.Fatalf("ParseUint(%q,%d,%d) error: %v", c.s, c.base, c.bits, err)
		}
		if got != c.want {
			t.Fatalf("ParseUint(%q,%d,%d) = %d, want %d", c.s, c.base, c.bits, got, c.want)
		}
	}
}

func TestParseUintErrors(t *testing.T) {
	for _, c := range []struct {
		s    string
		bits int
	}{
		{"", 16},
		{"0x", 16},
		{"g", 16},
		{"-1", 16},
		{"0x100", 8},
		{"256", 8},
		{"65536", 16},
		{"0b102", 8},
	} {
		if v, err := ParseUint(c.s, 0, c.bits); err == nil {
			t.Fatalf("ParseUint(%q, 0, %d) = %d, expected error", c.s, c.bits, v)
		}
	}
}

func TestFormat(t *testing.T) {
	for _, c := range []struct {
		u    uint64
		base int
		want string
	}{
		{0, 16, "0"},
		{5, 2, "101"},
		{255, 16, "ff"},
		{1023, 10, "1023"},
	} {
		if got := FormatUint(c.u, c.base); got != c.want {
			t.Fatalf("FormatUint(%d,%d) = %q, want %q", c.u, c.base, got, c.want)
		}
	}
	if got := Itoa(-42); got != "-42" {
		t.Fatalf("Itoa(-42) = %q", got)
	}
}
