package packer

import "errors"

// ErrUnexpectedEnd is returned whenever a read needs more bytes than remain.
// The cursor is left where it was, so the failure is unambiguous.
var ErrUnexpectedEnd = errors.New("unexpected end of buffer")

// maxVarintBytes bounds one encoded integer: 6 payload bits in the first byte
// plus four continuation bytes of 7 bits each, truncated to 32 bits.
const maxVarintBytes = 5

// Unpacker is a sequential cursor over a fully resident buffer. It is not
// safe for concurrent use.
type Unpacker struct {
	buf []byte
	off int
}

func New(buf []byte) *Unpacker {
	return &Unpacker{buf: buf}
}

// Remaining reports how many bytes are left to read.
func (u *Unpacker) Remaining() int {
	return len(u.buf) - u.off
}

// Offset reports how many bytes have been consumed.
func (u *Unpacker) Offset() int {
	return u.off
}

// ReadRaw returns the next n bytes as a subslice of the underlying buffer.
func (u *Unpacker) ReadRaw(n int) ([]byte, error) {
	if n < 0 || n > u.Remaining() {
		return nil, ErrUnexpectedEnd
	}
	b := u.buf[u.off : u.off+n]
	u.off += n
	return b, nil
}

// ReadString reads one length-prefixed payload: a signed varint length
// followed by that many raw bytes. A negative length can never be satisfied
// and reads as ErrUnexpectedEnd.
func (u *Unpacker) ReadString() ([]byte, error) {
	start := u.off
	n, err := u.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > u.Remaining() {
		u.off = start
		return nil, ErrUnexpectedEnd
	}
	b := u.buf[u.off : u.off+int(n)]
	u.off += int(n)
	return b, nil
}

// ReadInt reads one signed variable-length integer. The first byte carries an
// extension flag (0x80), the sign (0x40) and six payload bits; continuation
// bytes carry an extension flag and seven payload bits. The sign is applied
// by XOR after assembly, and the extension flag of a fifth byte is ignored.
func (u *Unpacker) ReadInt() (int32, error) {
	rem := u.buf[u.off:]
	if len(rem) == 0 {
		return 0, ErrUnexpectedEnd
	}
	b := rem[0]
	sign := int32(b>>6) & 1
	v := int32(b & 0x3F)
	n := 1
	shift := uint(6)
	for b&0x80 != 0 && n < maxVarintBytes {
		if n == len(rem) {
			return 0, ErrUnexpectedEnd
		}
		b = rem[n]
		v |= int32(b&0x7F) << shift
		n++
		shift += 7
	}
	u.off += n
	return v ^ -sign, nil
}
