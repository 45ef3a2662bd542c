// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"encoding/binary"
)

// This file implements §4.3: the binary packet send/receive path built on
// top of a negotiated cipherSuite (cipher.go). Unlike the teacher's
// transport, which reads directly off a net.Conn inside a goroutine, these
// are pure functions over byte slices — the cooperative engine (session.go)
// owns buffering and calls in here only once enough bytes are available.

const (
	minCipherBlockSize = 8
	minPacketTotal     = 16
	maxPacketLength    = 1 << 20 // defensive cap well above any real payload
)

// transportCipher is a per-direction cipherSuite paired with its running
// sequence number (§3: 32-bit wraparound counter incremented once per
// packet) and the plaintext (identity) cipher used before NEWKEYS.
//
// pendingLength caches the just-decrypted length prefix of the packet
// currently being assembled. decryptLength is not idempotent for the
// continuous aes256-ctr keystream (calling it twice would consume two
// blocks of keystream for one packet), so it must be called at most once
// per packet; packetSizer may be called many times while more bytes are
// still arriving; it decrypts the length on its first call and caches the
// result here for its own later calls and for openPacket.
type transportCipher struct {
	seqNum        uint32
	suite         cipherSuite // plaintext framing until the first NEWKEYS
	pendingLength *uint32
}

// plaintextSuite frames packets with no encryption and no MAC, used for
// every packet up to and including each side's first SSH_MSG_NEWKEYS.
type plaintextSuite struct{}

func (plaintextSuite) blockSize() int { return minCipherBlockSize }
func (plaintextSuite) isAEAD() bool   { return false }
func (plaintextSuite) tagLen() int    { return 0 }
func (plaintextSuite) decryptLength(_ uint32, lengthBytes [4]byte) (uint32, error) {
	return binary.BigEndian.Uint32(lengthBytes[:]), nil
}
func (plaintextSuite) openRest(_ uint32, _ [4]byte, _ uint32, _, _ []byte) error { return nil }
func (plaintextSuite) seal(_ uint32, payloadAndPad []byte) ([4]byte, []byte, []byte, error) {
	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(len(payloadAndPad)))
	return lengthBytes, payloadAndPad, nil, nil
}

func newTransportCipher() *transportCipher {
	return &transportCipher{suite: plaintextSuite{}}
}

// padLength computes §4.3 step 1's padding length: pad so that the
// block-aligned region (1 pad-length byte + payload + pad, plus the length
// prefix itself when the cipher is not AEAD) is a multiple of blockSize,
// pad is at least 4, and the packet excluding any MAC is at least
// minPacketTotal bytes.
func padLength(payloadLen, blockSize int, aead bool) int {
	bs := blockSize
	if bs < minCipherBlockSize {
		bs = minCipherBlockSize
	}
	alignedLen := 1 + payloadLen // pad-length byte + payload
	if !aead {
		alignedLen += 4 // length prefix shares the block-aligned region
	}
	pad := bs - (alignedLen % bs)
	if pad < 4 {
		pad += bs
	}
	total := 4 + 1 + payloadLen + pad // length + pad-byte + payload + pad
	for total < minPacketTotal {
		pad += bs
		total += bs
	}
	return pad
}

// sealPacket renders one complete outbound wire packet for payload,
// advancing tc's sequence number. The wire format is exactly §3's
// `uint32 packet_length | byte padding_length | payload | random padding |
// MAC/tag`.
func sealPacket(tc *transportCipher, payload []byte) ([]byte, error) {
	pad := padLength(len(payload), tc.suite.blockSize(), tc.suite.isAEAD())
	payloadAndPad := make([]byte, 1+len(payload)+pad)
	payloadAndPad[0] = byte(pad)
	copy(payloadAndPad[1:], payload)
	if _, err := rand.Read(payloadAndPad[1+len(payload):]); err != nil {
		return nil, resourceErrorf("reading random padding: %v", err)
	}

	lengthBytes, encrypted, tag, err := tc.suite.seal(tc.seqNum, payloadAndPad)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4+len(encrypted)+len(tag))
	out = append(out, lengthBytes[:]...)
	out = append(out, encrypted...)
	out = append(out, tag...)
	tc.seqNum++
	return out, nil
}

// packetSizer reports how many more bytes recvBuffer needs to accumulate
// before the next packet can be opened, or 0 if a full packet is already
// present (in which case openPacket can be called). It is the suspension-
// point test the spec's §5 "no progress possible" model calls for: the
// caller re-invokes it as more input arrives and only proceeds once it
// returns 0.
//
// minLookahead is the number of leading bytes (>= 4) that must already be
// present for the length prefix to be decryptable; for AEAD ciphers this
// is exactly 4, for block ciphers it is the cipher's block size (which
// this engine's two supported block sizes, 8 and 16, always exceed 4).
func packetSizer(tc *transportCipher, recvBuffer []byte) (needMore int, err error) {
	minLookahead := 4
	if bs := tc.suite.blockSize(); !tc.suite.isAEAD() && bs > minLookahead {
		minLookahead = bs
	}
	if len(recvBuffer) < minLookahead {
		return minLookahead - len(recvBuffer), nil
	}

	length, err := tc.peekLength(recvBuffer)
	if err != nil {
		return 0, err
	}
	if length > maxPacketLength {
		return 0, protoErrorf("packet length %d exceeds maximum", length)
	}
	total := 4 + int(length) + tc.suite.tagLen()
	if total < minPacketTotal {
		return 0, protoErrorf("packet length %d below minimum frame size", length)
	}
	if len(recvBuffer) < total {
		return total - len(recvBuffer), nil
	}
	return 0, nil
}

// peekLength returns the decrypted length prefix for the packet at the
// front of recvBuffer, decrypting it (and caching the result) on first
// call and returning the cached value on every subsequent call until
// openPacket consumes it.
func (tc *transportCipher) peekLength(recvBuffer []byte) (uint32, error) {
	if tc.pendingLength != nil {
		return *tc.pendingLength, nil
	}
	var lengthBytes [4]byte
	copy(lengthBytes[:], recvBuffer[:4])
	length, err := tc.suite.decryptLength(tc.seqNum, lengthBytes)
	if err != nil {
		return 0, err
	}
	tc.pendingLength = &length
	return length, nil
}

// openPacket consumes exactly one packet's worth of bytes from the front
// of recvBuffer (which packetSizer has already confirmed is fully
// present), returning the decoded payload (pad stripped) and the number of
// bytes consumed. tc's sequence number is advanced on success only — a
// failed MAC/tag check must not let a retried call desynchronize the
// sequence counter, so callers must treat any error here as fatal to the
// connection, never retried.
func openPacket(tc *transportCipher, recvBuffer []byte) (payload []byte, consumed int, err error) {
	var lengthBytes [4]byte
	copy(lengthBytes[:], recvBuffer[:4])
	length, err := tc.peekLength(recvBuffer)
	if err != nil {
		return nil, 0, err
	}
	if length > maxPacketLength {
		return nil, 0, protoErrorf("packet length %d exceeds maximum", length)
	}
	bodyLen := int(length)
	tagLen := tc.suite.tagLen()
	total := 4 + bodyLen + tagLen
	if total < minPacketTotal {
		return nil, 0, protoErrorf("packet length %d below minimum frame size", length)
	}
	if len(recvBuffer) < total {
		return nil, 0, bug("openPacket called before packetSizer confirmed availability")
	}

	body := recvBuffer[4 : 4+bodyLen]
	tag := recvBuffer[4+bodyLen : total]
	if err := tc.suite.openRest(tc.seqNum, lengthBytes, length, body, tag); err != nil {
		return nil, 0, err
	}

	if bodyLen < 1 {
		return nil, 0, protoErrorf("packet body too short for padding-length byte")
	}
	padLen := int(body[0])
	if padLen < 4 {
		return nil, 0, protoErrorf("padding length %d below minimum of 4", padLen)
	}
	if padLen > bodyLen-1 {
		return nil, 0, protoErrorf("padding length %d exceeds packet body", padLen)
	}
	tc.seqNum++
	tc.pendingLength = nil
	return body[1 : bodyLen-padLen], total, nil
}
