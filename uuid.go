package att

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// UUID is a BLE UUID, stored little-endian (as it appears on the wire),
// in either its 2-byte (16-bit) or 16-byte (128-bit) form.
type UUID struct {
	b []byte
}

// bluetoothBaseUUID is the Bluetooth SIG base UUID,
// 00000000-0000-1000-8000-00805F9B34FB, stored little-endian.
var bluetoothBaseUUID = UUID{[]byte{
	0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}}

// UUID16 constructs a UUID from its 16-bit form.
func UUID16(i uint16) UUID {
	return UUID{[]byte{byte(i), byte(i >> 8)}}
}

// MustParseUUID parses a UUID in dash-delimited, hyphenated, or bare
// hex form. It panics on a malformed UUID; it exists for convenience
// when registering attributes with literal UUIDs.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseUUID parses a UUID in dash-delimited, hyphenated, or bare hex form.
func ParseUUID(s string) (UUID, error) {
	s = strings.Replace(s, "-", "", -1)
	b, err := hex.DecodeString(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid uuid %q: %v", s, err)
	}
	switch len(b) {
	case 2, 16:
	default:
		return UUID{}, fmt.Errorf("invalid uuid %q: must be 2 or 16 bytes, got %d", s, len(b))
	}
	return UUID{reverse(b)}, nil
}

// Len returns the length of the UUID in bytes: 2 or 16.
func (u UUID) Len() int { return len(u.b) }

// Equal reports whether u and v represent the same UUID, expanding
// either side to its 128-bit form if necessary.
func (u UUID) Equal(v UUID) bool { return uuidEqual(u, v) }

// String returns the UUID in canonical dash-delimited big-endian form.
func (u UUID) String() string {
	b := reverse(u.b)
	if len(b) != 16 {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// to128 expands u to its 128-bit form using the Bluetooth base UUID,
// if it isn't already 128 bits.
func (u UUID) to128() UUID {
	if len(u.b) == 16 {
		return u
	}
	b := make([]byte, 16)
	copy(b, bluetoothBaseUUID.b)
	copy(b[12:14], u.b)
	return UUID{b}
}

// short16 reports whether u's 128-bit form carries a 16-bit short form
// (i.e. it matches the Bluetooth base UUID template outside bytes
// [12:14] of the little-endian form), and if so returns that 16-bit
// value.
func (u UUID) short16() (uint16, bool) {
	full := u.to128()
	base := bluetoothBaseUUID.b
	if full.b[0] != base[0] || full.b[1] != base[1] {
		return 0, false
	}
	for i := 0; i < 16; i++ {
		if i == 12 || i == 13 {
			continue
		}
		if full.b[i] != base[i] {
			return 0, false
		}
	}
	return uint16(full.b[12]) | uint16(full.b[13])<<8, true
}

// uuidEqual reports whether u and v name the same attribute type,
// regardless of whether either is expressed in 16-bit or 128-bit form.
// All comparisons are performed on the 128-bit expansion.
func uuidEqual(u, v UUID) bool {
	a, b := u.to128(), v.to128()
	if len(a.b) != len(b.b) {
		return false
	}
	for i := range a.b {
		if a.b[i] != b.b[i] {
			return false
		}
	}
	return true
}

// reverse returns a reversed copy of b, used to flip between the
// wire's little-endian UUID byte order and a human-readable big-endian
// rendering.
func reverse(b []byte) []byte {
	r := make([]byte, len(b))
	for i, c := range b {
		r[len(b)-1-i] = c
	}
	return r
}
