// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"math/big"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := newEncoder()
	e.putByte(7)
	e.putBool(true)
	e.putUint32(0xdeadbeef)
	e.putString([]byte("hello"))
	e.putText("world")
	e.putNameList([]string{"aes256-ctr", "chacha20-poly1305@openssh.com"})
	e.putMpint(big.NewInt(12345))
	e.putBlob(func(inner *encoder) { inner.putUint32(42) })

	d := newDecoder(e.bytes())
	if b, err := d.byte(); err != nil || b != 7 {
		t.Fatalf("byte: got %v, %v", b, err)
	}
	if b, err := d.bool(); err != nil || !b {
		t.Fatalf("bool: got %v, %v", b, err)
	}
	if v, err := d.uint32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("uint32: got %v, %v", v, err)
	}
	if s, err := d.str(); err != nil || string(s) != "hello" {
		t.Fatalf("str: got %q, %v", s, err)
	}
	if s, err := d.text(); err != nil || s != "world" {
		t.Fatalf("text: got %q, %v", s, err)
	}
	if names, err := d.nameList(); err != nil || len(names) != 2 || names[1] != "chacha20-poly1305@openssh.com" {
		t.Fatalf("nameList: got %v, %v", names, err)
	}
	if v, err := d.mpint(); err != nil || v.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("mpint: got %v, %v", v, err)
	}
	inner, err := d.blob(0)
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	if v, err := inner.uint32(); err != nil || v != 42 {
		t.Fatalf("blob inner: got %v, %v", v, err)
	}
	if d.remaining() != 0 {
		t.Fatalf("expected decoder exhausted, %d bytes left", d.remaining())
	}
}

func TestMpintSignConvention(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, nil},
		{1, []byte{1}},
		{127, []byte{127}},
		{128, []byte{0, 128}},
		{255, []byte{0, 255}},
	}
	for _, c := range cases {
		got := mpintBytes(big.NewInt(c.v))
		if len(got) != len(c.want) {
			t.Fatalf("mpintBytes(%d) = %x, want %x", c.v, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("mpintBytes(%d) = %x, want %x", c.v, got, c.want)
			}
		}
	}
}

func TestNameListRejectsDuplicatesAndSpaces(t *testing.T) {
	e := newEncoder()
	e.putString([]byte("aes256-ctr,aes256-ctr"))
	d := newDecoder(e.bytes())
	if _, err := d.nameList(); err == nil {
		t.Fatal("expected duplicate name-list entries to be rejected")
	}

	e2 := newEncoder()
	e2.putString([]byte("bad name"))
	d2 := newDecoder(e2.bytes())
	if _, err := d2.nameList(); err == nil {
		t.Fatal("expected a name containing a space to be rejected")
	}
}

func TestNameListEmptyIsNil(t *testing.T) {
	e := newEncoder()
	e.putString(nil)
	d := newDecoder(e.bytes())
	names, err := d.nameList()
	if err != nil || names != nil {
		t.Fatalf("empty name-list: got %v, %v", names, err)
	}
}

func TestDecoderShortInputErrors(t *testing.T) {
	d := newDecoder([]byte{0, 0})
	if _, err := d.uint32(); err == nil {
		t.Fatal("expected short input to error")
	}
	d2 := newDecoder([]byte{0, 0, 0, 10, 'a', 'b'})
	if _, err := d2.str(); err == nil {
		t.Fatal("expected a length prefix exceeding the remaining buffer to error")
	}
}

func TestBlobBoundsInnerDecoder(t *testing.T) {
	e := newEncoder()
	e.putBlob(func(inner *encoder) {
		inner.putUint32(1)
		inner.putUint32(2)
	})
	e.putUint32(0xffffffff) // trailing data outside the blob

	d := newDecoder(e.bytes())
	inner, err := d.blob(0)
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	if v, err := inner.uint32(); err != nil || v != 1 {
		t.Fatalf("inner first uint32: %v, %v", v, err)
	}
	if v, err := inner.uint32(); err != nil || v != 2 {
		t.Fatalf("inner second uint32: %v, %v", v, err)
	}
	if inner.remaining() != 0 {
		t.Fatalf("inner decoder should be exhausted at the blob boundary, got %d left", inner.remaining())
	}
	// The outer decoder should still see the trailing uint32.
	if v, err := d.uint32(); err != nil || v != 0xffffffff {
		t.Fatalf("outer trailing uint32: %v, %v", v, err)
	}
}

func TestBlobRejectsOversizeInner(t *testing.T) {
	e := newEncoder()
	e.putBlob(func(inner *encoder) { inner.putString(make([]byte, 64)) })
	d := newDecoder(e.bytes())
	if _, err := d.blob(8); err == nil {
		t.Fatal("expected a blob exceeding its caller-imposed limit to error")
	}
}
