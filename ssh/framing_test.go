// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"testing"
)

func newTestCipherPair(t *testing.T, name string) (send, recv *transportCipher) {
	t.Helper()
	info, ok := cipherModes[name]
	if !ok {
		t.Fatalf("unknown cipher %q", name)
	}
	key := make([]byte, info.keySize)
	for i := range key {
		key[i] = byte(i)
	}
	iv := make([]byte, info.ivSize)
	for i := range iv {
		iv[i] = byte(0xa0 + i)
	}
	macKey := make([]byte, info.macKeySize)
	for i := range macKey {
		macKey[i] = byte(0x40 + i)
	}
	send = &transportCipher{suite: info.newCipher(key, iv, macKey)}
	recv = &transportCipher{suite: info.newCipher(key, iv, macKey)}
	return send, recv
}

func TestFramingRoundTripBothCiphers(t *testing.T) {
	for _, name := range []string{cipherChacha20Poly1305, cipherAES256CTR} {
		t.Run(name, func(t *testing.T) {
			send, recv := newTestCipherPair(t, name)
			payloads := [][]byte{
				[]byte("hello"),
				{},
				bytes.Repeat([]byte{0x42}, 5000),
			}
			for _, payload := range payloads {
				framed, err := sealPacket(send, payload)
				if err != nil {
					t.Fatalf("sealPacket: %v", err)
				}

				// Feed the framed bytes in arbitrary small chunks to
				// exercise packetSizer's suspension behaviour.
				var buf []byte
				for i := 0; i < len(framed); i++ {
					buf = append(buf, framed[i])
					needMore, err := packetSizer(recv, buf)
					if err != nil {
						t.Fatalf("packetSizer: %v", err)
					}
					if needMore == 0 {
						break
					}
				}
				got, consumed, err := openPacket(recv, buf)
				if err != nil {
					t.Fatalf("openPacket: %v", err)
				}
				if consumed != len(buf) {
					t.Fatalf("consumed %d, want %d", consumed, len(buf))
				}
				if !bytes.Equal(got, payload) {
					t.Fatalf("round trip mismatch: got %x, want %x", got, payload)
				}
			}
		})
	}
}

func TestFramingDetectsBitFlip(t *testing.T) {
	for _, name := range []string{cipherChacha20Poly1305, cipherAES256CTR} {
		t.Run(name, func(t *testing.T) {
			send, recv := newTestCipherPair(t, name)
			framed, err := sealPacket(send, []byte("authenticate me"))
			if err != nil {
				t.Fatalf("sealPacket: %v", err)
			}
			flipped := append([]byte(nil), framed...)
			flipped[len(flipped)-1] ^= 0x01 // corrupt a tag byte

			if needMore, err := packetSizer(recv, flipped); err != nil {
				t.Fatalf("packetSizer: %v", err)
			} else if needMore != 0 {
				t.Fatalf("packetSizer reports %d more bytes needed, want 0", needMore)
			}
			if _, _, err := openPacket(recv, flipped); err == nil {
				t.Fatal("expected a corrupted tag to fail integrity verification")
			}
		})
	}
}

func TestPacketSizerAsksForMoreOnEmptyBuffer(t *testing.T) {
	_, recv := newTestCipherPair(t, cipherAES256CTR)
	// With no bytes at all, packetSizer must report "need more" rather
	// than erroring or blocking.
	needMore, err := packetSizer(recv, nil)
	if err != nil {
		t.Fatalf("packetSizer on empty buffer: %v", err)
	}
	if needMore <= 0 {
		t.Fatalf("expected packetSizer to ask for more bytes, got %d", needMore)
	}
}

func TestPlaintextSuiteUntilNewKeys(t *testing.T) {
	tc := newTransportCipher()
	framed, err := sealPacket(tc, []byte("pre-kex"))
	if err != nil {
		t.Fatalf("sealPacket: %v", err)
	}
	recv := newTransportCipher()
	got, _, err := openPacket(recv, framed)
	if err != nil {
		t.Fatalf("openPacket: %v", err)
	}
	if string(got) != "pre-kex" {
		t.Fatalf("got %q, want %q", got, "pre-kex")
	}
}
