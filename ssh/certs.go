// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ed25519"
)

// Adapted from the teacher package's certs.go: the original implemented
// OpenSSH's [PROTOCOL.certkeys] certificate envelope (ssh-rsa-cert-v01@...
// and friends) atop an RSA/DSA/ECDSA PublicKey interface. Spec §6 lists only
// ssh-ed25519 and spec §9 treats key-file/certificate parsing as entirely
// out of scope beyond a pluggable key source, so the certificate type,
// tuple lists and multi-algorithm PublicKeyAlgo/PrivateKeyAlgo dispatch are
// gone; what remains is the plain public-key blob envelope and the
// signature tuple, narrowed to Ed25519 — the one signature algorithm this
// engine implements natively (spec §9).

// signature is the {format, blob} tuple RFC 4253 §6.6 wraps every SSH
// signature in, still used verbatim by the kex host-key signature and the
// publickey auth method.
type signature struct {
	Format string
	Blob   []byte
}

// marshalSignature renders sig as the "blob" RFC 4253 §6.6 describes: a
// length-prefixed format name followed by a length-prefixed signature blob,
// the whole thing then embedded as a single wire string by the caller.
func marshalSignature(sig *signature) []byte {
	e := newEncoder()
	e.putText(sig.Format)
	e.putString(sig.Blob)
	return e.bytes()
}

func parseSignature(b []byte) (*signature, error) {
	d := newDecoder(b)
	format, err := d.text()
	if err != nil {
		return nil, err
	}
	blob, err := d.str()
	if err != nil {
		return nil, err
	}
	if d.remaining() != 0 {
		return nil, protoErrorf("trailing bytes after signature body")
	}
	return &signature{Format: format, Blob: blob}, nil
}

// Ed25519PublicKeyBlob renders pub as the wire key blob RFC 8709 §4
// specifies: the algorithm name "ssh-ed25519" followed by the 32-byte
// point, the same envelope convention as marshalSignature (spec §4.1 blob
// wrapping), generalizing the teacher's MarshalPublicKey for the one
// algorithm this engine supports.
func Ed25519PublicKeyBlob(pub ed25519.PublicKey) []byte {
	e := newEncoder()
	e.putText(hostAlgoEd25519)
	e.putString(pub)
	return e.bytes()
}

// ParseEd25519PublicKeyBlob is the inverse of Ed25519PublicKeyBlob. It
// rejects any blob whose algorithm name isn't "ssh-ed25519" with a
// crypto-kind error — unsupported host-key/user-key algorithms are refused
// outright (spec §4.4:
// negotiation only ever offers ssh-ed25519), not something this parser
// tries to represent as an Unknown variant, since a key blob is consumed
// only after its algorithm name has already been selected.
func ParseEd25519PublicKeyBlob(blob []byte) (ed25519.PublicKey, error) {
	d := newDecoder(blob)
	algo, err := d.text()
	if err != nil {
		return nil, err
	}
	if algo != hostAlgoEd25519 {
		return nil, cryptoErrorf("unsupported public key algorithm %q", algo)
	}
	key, err := d.str()
	if err != nil {
		return nil, err
	}
	if d.remaining() != 0 {
		return nil, protoErrorf("trailing bytes after ed25519 public key blob")
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, cryptoErrorf("malformed ed25519 public key (got %d bytes)", len(key))
	}
	return ed25519.PublicKey(key), nil
}

// signEd25519 produces the {format, blob} signature envelope for msg under
// priv, the data-signed convention RFC 8709 §3 and spec §4.1 describe.
func signEd25519(priv ed25519.PrivateKey, msg []byte) *signature {
	return &signature{Format: hostAlgoEd25519, Blob: ed25519.Sign(priv, msg)}
}

// verifyEd25519 checks sig against msg under pub, failing closed (and
// rejecting any format other than ssh-ed25519) per spec §4.4/§4.5
// signature-verification failure mode.
func verifyEd25519(pub ed25519.PublicKey, msg []byte, sig *signature) bool {
	if sig.Format != hostAlgoEd25519 {
		return false
	}
	if len(sig.Blob) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig.Blob)
}
