// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"encoding/binary"
	"math/big"
	"strings"
	"unicode/utf8"
)

// This file implements the wire codec of §4.1: fixed-width primitives,
// length-prefixed strings, name-lists, mpints, and the "blob" convention of
// serialising an inner structure behind its own length prefix. Tagged
// unions (variant-prefix, sibling-name and context forms) are built on top
// of these primitives in messages.go, which is where the Unknown-variant
// catch-all lives.

// maxNameListBytes bounds the wire length of a name-list before we even
// attempt to split it, so a hostile peer can't make us allocate megabytes
// of substrings from a single packet (§7 Resource errors).
const maxNameListBytes = 16 * 1024

// decoder reads primitives off a byte slice it does not own; each read
// advances buf and never copies unless the primitive needs a fresh backing
// array (name-list only, everything else is a slice view into the caller's
// packet buffer — live only as long as the buffer is).
type decoder struct {
	buf []byte
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) remaining() int { return len(d.buf) }

func (d *decoder) rest() []byte {
	out := d.buf
	d.buf = nil
	return out
}

func (d *decoder) byte() (byte, error) {
	if len(d.buf) < 1 {
		return 0, errShortInput
	}
	b := d.buf[0]
	d.buf = d.buf[1:]
	return b, nil
}

func (d *decoder) bool() (bool, error) {
	b, err := d.byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (d *decoder) uint32() (uint32, error) {
	if len(d.buf) < 4 {
		return 0, errShortInput
	}
	v := binary.BigEndian.Uint32(d.buf[:4])
	d.buf = d.buf[4:]
	return v, nil
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if len(d.buf) < n {
		return nil, errShortInput
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out, nil
}

// str reads a u32-length-prefixed byte string (binary string or UTF-8 text
// before validation — validation is the caller's job, done lazily per §4.1).
func (d *decoder) str() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(len(d.buf)) {
		return nil, errLengthExceedsInput
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out, nil
}

func (d *decoder) text() (string, error) {
	b, err := d.str()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// textStrict is text() but rejects invalid UTF-8 immediately, for call
// sites that need it (most don't: §4.1 says validation is lazy).
func (d *decoder) textStrict() (string, error) {
	b, err := d.str()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", protoErrorf("invalid UTF-8 in text field")
	}
	return string(b), nil
}

// nameList reads a comma-separated, length-prefixed ASCII list with no
// internal commas or whitespace and rejects duplicates (§4.1).
func (d *decoder) nameList() ([]string, error) {
	b, err := d.str()
	if err != nil {
		return nil, err
	}
	if len(b) > maxNameListBytes {
		return nil, errNameListTooLarge
	}
	if len(b) == 0 {
		return nil, nil
	}
	parts := strings.Split(string(b), ",")
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if p == "" || !isASCIIName(p) {
			return nil, errNonASCIIName
		}
		if _, dup := seen[p]; dup {
			return nil, errDuplicateName
		}
		seen[p] = struct{}{}
	}
	return parts, nil
}

func isASCIIName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || c == ',' || c == ' ' || c == '\t' {
			return false
		}
	}
	return true
}

// mpint reads a length-prefixed big-endian multi-precision integer (the
// leading zero byte used to disambiguate sign, if present, is handled
// transparently by big.Int).
func (d *decoder) mpint() (*big.Int, error) {
	b, err := d.str()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// blob bounds a nested decode to the byte string just read: it returns a
// fresh decoder over exactly those bytes, so an inner parser can never read
// past the outer length prefix (§4.1 blob convention; also bounds-checks
// against "structural bound imposed by outer blob" from §4.1 failure modes).
func (d *decoder) blob(limit int) (*decoder, error) {
	b, err := d.str()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(b) > limit {
		return nil, errLengthExceedsBound
	}
	return newDecoder(b), nil
}

// encoder accumulates an outbound payload using the same primitives as
// decoder, mirrored. Grounded on the teacher's appendU32/appendString free
// functions in common.go, generalised into a single accumulating type so
// call sites don't have to thread "the rest of the buffer" through by hand.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) putByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) putBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) putUint32(v uint32) {
	e.buf = appendU32(e.buf, v)
}

func (e *encoder) putFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) putString(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) putText(s string) {
	e.putString([]byte(s))
}

func (e *encoder) putNameList(names []string) {
	e.putString([]byte(strings.Join(names, ",")))
}

func (e *encoder) putMpint(v *big.Int) {
	e.putString(mpintBytes(v))
}

// mpintBytes renders v the way RFC 4251 §5 mandates: big-endian, with a
// leading zero byte inserted whenever the high bit of the first byte would
// otherwise be set (so a positive integer is never mistaken for negative).
func mpintBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	b := v.Bytes()
	if b[0]&0x80 != 0 {
		out := make([]byte, len(b)+1)
		copy(out[1:], b)
		return out
	}
	return b
}

// putBlob serialises build's output behind its own u32 length prefix, the
// encode-side mirror of decoder.blob.
func (e *encoder) putBlob(build func(*encoder)) {
	inner := newEncoder()
	build(inner)
	e.putString(inner.bytes())
}
