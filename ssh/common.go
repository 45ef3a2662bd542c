// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// Adapted from the teacher package's common.go: the original carried a much
// wider algorithm menu (legacy diffie-hellman-group*, ecdh-sha2-nistp*,
// ssh-rsa/ssh-dss host keys) plus a goroutine/condvar-based channel window
// and RSA/DSA-shaped signing helpers. Spec §6 narrows the wire-compatible
// set to Curve25519 + Ed25519 + chacha20-poly1305@openssh.com/aes256-ctr, and
// spec §5 replaces the goroutine-per-connection model with a synchronous
// cooperative engine, so the DH groups, non-Ed25519 host-key machinery and
// the sync.Cond window type are gone (see channel.go for the replacement);
// the algorithm-table shape, findCommonAlgorithm, and CryptoConfig survive
// structurally unchanged.

// String constants this engine recognizes on the wire (spec §6: Curve25519 +
// Ed25519 + chacha20-poly1305@openssh.com / aes256-ctr are the only
// wire-compatible choices; legacy DH groups and non-Ed25519 host keys are an
// explicit non-goal).
const (
	kexAlgoCurve25519SHA256       = "curve25519-sha256"
	kexAlgoCurve25519SHA256LibSSH = "curve25519-sha256@libssh.org"
	kexMarkerExtInfoC             = "ext-info-c"
	kexMarkerExtInfoS             = "ext-info-s"
	kexMarkerGuess2               = "kexguess2@matt.ucc.asn.au"

	hostAlgoEd25519 = "ssh-ed25519"

	cipherChacha20Poly1305 = "chacha20-poly1305@openssh.com"
	cipherAES256CTR        = "aes256-ctr"

	macHMACSHA256 = "hmac-sha2-256"

	compressionNone = "none"

	serviceUserAuth = "ssh-userauth"
	serviceSSH      = "ssh-connection"
)

// defaultKexAlgos is the negotiation order offered when a ClientConfig or
// ServerConfig does not override it. kexguess2 (RFC-less OpenSSH extension,
// spec §4.4) is not itself listed here: it is a marker a peer may add to
// *its own* offered list to signal first-kex-follows guessing convention,
// not an algorithm we negotiate to.
var defaultKexAlgos = []string{
	kexAlgoCurve25519SHA256,
	kexAlgoCurve25519SHA256LibSSH,
}

var defaultHostKeyAlgos = []string{hostAlgoEd25519}
var defaultCiphers = []string{cipherChacha20Poly1305, cipherAES256CTR}
var defaultMACs = []string{macHMACSHA256}
var defaultCompressions = []string{compressionNone}

// isKexMarker reports whether name is one of the marker algorithms of §4.4
// that participate in negotiation but must never be the winning choice.
func isKexMarker(name string) bool {
	switch name {
	case kexMarkerExtInfoC, kexMarkerExtInfoS, kexMarkerGuess2:
		return true
	default:
		return false
	}
}

// findCommonAlgorithm walks the client's preference list and returns the
// first entry also present in the server's list, ignoring marker names.
func findCommonAlgorithm(clientAlgos, serverAlgos []string) (commonAlgo string, ok bool) {
	for _, c := range clientAlgos {
		if isKexMarker(c) {
			continue
		}
		for _, s := range serverAlgos {
			if c == s {
				return c, true
			}
		}
	}
	return "", false
}

// findCommonCipher is like findCommonAlgorithm but only accepts ciphers this
// engine actually has a cipherModes entry for (populated in cipher.go).
func findCommonCipher(clientCiphers, serverCiphers []string) (commonCipher string, ok bool) {
	for _, c := range clientCiphers {
		for _, s := range serverCiphers {
			if c == s && cipherModes[c] != nil {
				return c, true
			}
		}
	}
	return "", false
}

// handshakeMagics is the set of exchange-hash inputs fixed before key
// exchange math begins (§4.4): both identification lines and both raw
// KexInit payloads, in the order SHA-256 consumes them.
type handshakeMagics struct {
	clientVersion, serverVersion []byte
	clientKexInit, serverKexInit []byte
}

// negotiatedAlgorithms is the outcome of §4.4 algorithm negotiation:
// kex/host-key are connection-wide, cipher/mac/compression are negotiated
// once per direction.
type negotiatedAlgorithms struct {
	kex         string
	hostKey     string
	cipherC2S   string
	cipherS2C   string
	macC2S      string
	macS2C      string
	compC2S     string
	compS2C     string
	guessCipherOurs string // the client's first listed kex algo (recorded only)
}

// findAgreedAlgorithms implements §4.4 negotiation across all the
// dimensions a KexInit carries: for each, pick the first entry on the
// client's list also present in the server's, failing the whole
// negotiation if any dimension has no overlap. Compression must resolve to
// "none" (spec §1 non-goal).
func findAgreedAlgorithms(clientInit, serverInit *kexInitMsg) (*negotiatedAlgorithms, error) {
	na := &negotiatedAlgorithms{}
	var ok bool
	if na.kex, ok = findCommonAlgorithm(clientInit.KexAlgos, serverInit.KexAlgos); !ok {
		return nil, cryptoErrorf("no common key exchange algorithm")
	}
	if na.hostKey, ok = findCommonAlgorithm(clientInit.ServerHostKeyAlgos, serverInit.ServerHostKeyAlgos); !ok {
		return nil, cryptoErrorf("no common host key algorithm")
	}
	if na.cipherC2S, ok = findCommonCipher(clientInit.CiphersClientServer, serverInit.CiphersClientServer); !ok {
		return nil, cryptoErrorf("no common client-to-server cipher")
	}
	if na.cipherS2C, ok = findCommonCipher(clientInit.CiphersServerClient, serverInit.CiphersServerClient); !ok {
		return nil, cryptoErrorf("no common server-to-client cipher")
	}
	if na.macC2S, ok = findCommonAlgorithm(clientInit.MACsClientServer, serverInit.MACsClientServer); !ok {
		return nil, cryptoErrorf("no common client-to-server MAC")
	}
	if na.macS2C, ok = findCommonAlgorithm(clientInit.MACsServerClient, serverInit.MACsServerClient); !ok {
		return nil, cryptoErrorf("no common server-to-client MAC")
	}
	if na.compC2S, ok = findCommonAlgorithm(clientInit.CompressionClientServer, serverInit.CompressionClientServer); !ok || na.compC2S != compressionNone {
		return nil, cryptoErrorf("no common (or non-none) client-to-server compression")
	}
	if na.compS2C, ok = findCommonAlgorithm(clientInit.CompressionServerClient, serverInit.CompressionServerClient); !ok || na.compS2C != compressionNone {
		return nil, cryptoErrorf("no common (or non-none) server-to-client compression")
	}
	if len(clientInit.KexAlgos) > 0 {
		na.guessCipherOurs = clientInit.KexAlgos[0]
	}
	return na, nil
}

// CryptoConfig is cryptographic configuration shared by ClientConfig and
// ServerConfig, generalized from the teacher's CryptoConfig.
type CryptoConfig struct {
	// KeyExchanges is the allowed key-exchange algorithm preference order.
	// If nil, defaultKexAlgos is used.
	KeyExchanges []string
	// Ciphers is the allowed cipher preference order. If nil, defaultCiphers
	// is used.
	Ciphers []string
	// MACs is the allowed MAC preference order, ignored by AEAD ciphers. If
	// nil, defaultMACs is used.
	MACs []string
}

func (c *CryptoConfig) kexes() []string {
	if c == nil || c.KeyExchanges == nil {
		return defaultKexAlgos
	}
	return c.KeyExchanges
}

func (c *CryptoConfig) ciphers() []string {
	if c == nil || c.Ciphers == nil {
		return defaultCiphers
	}
	return c.Ciphers
}

func (c *CryptoConfig) macs() []string {
	if c == nil || c.MACs == nil {
		return defaultMACs
	}
	return c.MACs
}

// safeString sanitises s per RFC 4251 §9.2: all control characters except
// tab, carriage return and newline become a space. Used before surfacing
// peer-controlled text (banners, debug/disconnect messages) to a behaviour
// callback.
func safeString(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c < 0x20 && c != 0x9 && c != 0xd && c != 0xa {
			out[i] = 0x20
		}
	}
	return string(out)
}

func appendU32(buf []byte, n uint32) []byte {
	return append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}
