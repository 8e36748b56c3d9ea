package conv

const hexd = "0123456789ABCDEF"

// U8Hex writes 2-digit uppercase hex without 0x into the tail of buf.
func U8Hex(buf []byte, n uint8) []byte { return hexN(buf, uint32(n), 2) }

// U16Hex writes 4-digit uppercase hex without 0x, zero-padded.
func U16Hex(buf []byte, n uint16) []byte { return hexN(buf, uint32(n), 4) }

func hexN(buf []byte, n uint32, digits int) []byte {
	if len(buf) < digits {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < digits; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}
