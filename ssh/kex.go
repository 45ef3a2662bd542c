// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/curve25519"
)

// This file implements §4.4: the key-exchange state machine, curve25519
// ECDH, the exchange hash, and the RFC 4253 §7.2 key derivation that
// framing.go's cipherSuite instances are built from. There is no teacher
// equivalent for the state machine shape (the teacher's `client.go`
// performs kex inline inside `clientHandshake`, driven by blocking reads);
// this version is the same math wired into the spec's explicit states so
// the cooperative driver (conn.go) can suspend between any two of them.

// kexState is the client/server-symmetric state machine of §4.4. Both
// roles share these states; role-specific behaviour lives in the
// transition functions, not in extra states.
type kexState int

const (
	kexIdle kexState = iota
	kexInitSent
	kexDH
	kexNewKeysSent
	kexTaken // transient: state has been consumed and must be replaced before reuse
)

// kexRole distinguishes which side of the exchange this engine is
// playing, since the exchange-hash input order and KexDHInit/KexDHReply
// roles are not symmetric.
type kexRole int

const (
	kexRoleClient kexRole = iota
	kexRoleServer
)

// kex holds everything in flight during one key-exchange round, from the
// first KexInit to the paired NewKeys. A *Conn holds at most one of these
// at a time; finishNewKeys hands a finished exchange's two cipherSuites to
// the caller, and conn_handlers.go then drops the kex value.
type kex struct {
	role kexRole

	state kexState

	ourCookie   [16]byte
	ourKexInit  *kexInitMsg
	ourKexInitRaw []byte

	peerKexInit    *kexInitMsg
	peerKexInitRaw []byte

	magics handshakeMagics

	agreed *negotiatedAlgorithms

	// firstKexFollowsDiscard is the one-shot flag of §4.4's "first-follows
	// discard" rule: set when negotiation disagrees with a guessed
	// algorithm the peer already sent a KexDH* packet for, cleared after
	// the next KexDH* packet is silently dropped.
	firstKexFollowsDiscard bool

	ecdhPriv [32]byte
	ecdhPub  [32]byte

	sessionID []byte // fixed at the very first exchange, reused by every rekey

	// exchangeHash/sharedSecret are populated once the ECDH math
	// completes (serverHandleKexDHInit / clientHandleKexDHReply) and
	// consumed by finishNewKeys.
	exchangeHash []byte
	sharedSecret []byte // raw X25519 output, not yet mpint-encoded
}

// newKex starts a fresh exchange in kexIdle; the caller (conn.go) drives it
// by calling the kexXxx transition methods as messages arrive.
func newKex(role kexRole, existingSessionID []byte) *kex {
	return &kex{role: role, state: kexIdle, sessionID: existingSessionID}
}

// startKexInit builds and returns this side's KexInit payload (§4.4: "Idle
// + peer KexInit or local trigger → send own KexInit"), transitioning to
// kexInitSent. cfg supplies the configured algorithm preference lists.
func (k *kex) startKexInit(cfg *CryptoConfig, hostKeyAlgos []string) ([]byte, error) {
	if k.state != kexIdle {
		return nil, bug("startKexInit called outside Idle (state=%d)", k.state)
	}
	if _, err := rand.Read(k.ourCookie[:]); err != nil {
		return nil, resourceErrorf("reading kex cookie: %v", err)
	}
	k.ourKexInit = &kexInitMsg{
		Cookie:                  k.ourCookie,
		KexAlgos:                cfg.kexes(),
		ServerHostKeyAlgos:      hostKeyAlgos,
		CiphersClientServer:     cfg.ciphers(),
		CiphersServerClient:     cfg.ciphers(),
		MACsClientServer:        cfg.macs(),
		MACsServerClient:        cfg.macs(),
		CompressionClientServer: defaultCompressions,
		CompressionServerClient: defaultCompressions,
	}
	raw := encodeMessage(k.ourKexInit, nil)
	k.ourKexInitRaw = raw
	k.state = kexInitSent
	return raw, nil
}

// receivePeerKexInit negotiates algorithms once both KexInit payloads are
// known (§4.4: "KexInit + peer KexInit → negotiate"). For the client this
// also produces the outbound KexDHInit; for the server it only advances to
// kexDH to await KexDHInit.
func (k *kex) receivePeerKexInit(raw []byte, msg *kexInitMsg) (kexDHInitToSend []byte, err error) {
	if k.state != kexInitSent {
		return nil, bug("receivePeerKexInit called outside KexInit (state=%d)", k.state)
	}
	k.peerKexInit = msg
	k.peerKexInitRaw = raw

	var clientInit, serverInit *kexInitMsg
	var clientRaw, serverRaw []byte
	if k.role == kexRoleClient {
		clientInit, serverInit = k.ourKexInit, msg
		clientRaw, serverRaw = k.ourKexInitRaw, raw
	} else {
		clientInit, serverInit = msg, k.ourKexInit
		clientRaw, serverRaw = raw, k.ourKexInitRaw
	}
	agreed, err := findAgreedAlgorithms(clientInit, serverInit)
	if err != nil {
		return nil, err
	}
	k.agreed = agreed
	k.magics.clientKexInit = clientRaw
	k.magics.serverKexInit = serverRaw

	k.firstKexFollowsDiscard = k.computeFirstFollowsDiscard(clientInit, serverInit)

	if _, err := rand.Read(k.ecdhPriv[:]); err != nil {
		return nil, resourceErrorf("reading ecdh private scalar: %v", err)
	}
	curve25519.ScalarBaseMult(&k.ecdhPub, &k.ecdhPriv)

	k.state = kexDH
	if k.role == kexRoleClient {
		dhInit := &kexECDHInitMsg{ClientPubKey: append([]byte(nil), k.ecdhPub[:]...)}
		return encodeMessage(dhInit, nil), nil
	}
	return nil, nil
}

// computeFirstFollowsDiscard implements §4.4's guessed-algorithm check: by
// default the guess is valid only if both sides' first offered kex
// algorithm literally matched. If either side lists the kexguess2 marker,
// the guess is instead checked against whatever kex algorithm negotiation
// would actually pick (the first common, non-marker entry) — the
// kexguess2 convention, which lets a peer guess using its own first entry
// without requiring the literal index-0 match RFC 4253 otherwise demands.
func (k *kex) computeFirstFollowsDiscard(clientInit, serverInit *kexInitMsg) bool {
	var guesser *kexInitMsg
	if k.peerFirstKexFollows(clientInit, serverInit) {
		guesser = serverInit
		if k.role == kexRoleServer {
			guesser = clientInit
		}
	}
	if guesser == nil {
		return false
	}
	if len(clientInit.KexAlgos) == 0 || len(serverInit.KexAlgos) == 0 {
		return true
	}
	if usesKexGuess2(clientInit) || usesKexGuess2(serverInit) {
		agreed, ok := findCommonAlgorithm(clientInit.KexAlgos, serverInit.KexAlgos)
		if !ok {
			return true
		}
		return firstNonMarkerKexAlgo(guesser.KexAlgos) != agreed
	}
	guessedMatch := clientInit.KexAlgos[0] == serverInit.KexAlgos[0]
	return !guessedMatch
}

// usesKexGuess2 reports whether msg advertises the kexguess2 marker.
func usesKexGuess2(msg *kexInitMsg) bool {
	for _, a := range msg.KexAlgos {
		if a == kexMarkerGuess2 {
			return true
		}
	}
	return false
}

// firstNonMarkerKexAlgo returns the first entry of algos that isn't one of
// §4.4's marker names (ext-info-c/s, kexguess2 itself).
func firstNonMarkerKexAlgo(algos []string) string {
	for _, a := range algos {
		if !isKexMarker(a) {
			return a
		}
	}
	return ""
}

func (k *kex) peerFirstKexFollows(clientInit, serverInit *kexInitMsg) bool {
	if k.role == kexRoleClient {
		return serverInit.FirstKexFollows
	}
	return clientInit.FirstKexFollows
}

// shouldDiscardNextKexDH reports and clears the one-shot discard flag;
// conn.go calls this before dispatching any KexDH-category message while a
// kex is in progress.
func (k *kex) shouldDiscardNextKexDH() bool {
	if !k.firstKexFollowsDiscard {
		return false
	}
	k.firstKexFollowsDiscard = false
	return true
}

// serverHandleKexDHInit implements the server half of §4.4's `KexDH +
// KexDHInit` transition: compute the shared secret, build the exchange
// hash, sign it with hostKey, and return the KexDHReply and NewKeys
// payloads to send (NewKeys is sent immediately after KexDHReply, per
// spec).
func (k *kex) serverHandleKexDHInit(msg *kexECDHInitMsg, hostPub ed25519.PublicKey, hostPriv ed25519.PrivateKey, clientVersion, serverVersion []byte) (reply, newKeys []byte, err error) {
	if k.state != kexDH || k.role != kexRoleServer {
		return nil, nil, bug("serverHandleKexDHInit called outside server KexDH (state=%d)", k.state)
	}
	if len(msg.ClientPubKey) != 32 {
		return nil, nil, protoErrorf("malformed client ECDH public key (%d bytes)", len(msg.ClientPubKey))
	}
	var clientPub [32]byte
	copy(clientPub[:], msg.ClientPubKey)
	secret, err := curve25519.X25519(k.ecdhPriv[:], clientPub[:])
	if err != nil {
		return nil, nil, cryptoErrorf("curve25519: %v", err)
	}

	hostKeyBlob := Ed25519PublicKeyBlob(hostPub)
	k.magics.clientVersion = clientVersion
	k.magics.serverVersion = serverVersion
	h := computeExchangeHash(&k.magics, hostKeyBlob, msg.ClientPubKey, k.ecdhPub[:], secret)
	if k.sessionID == nil {
		k.sessionID = h
	}

	sig := marshalSignature(signEd25519(hostPriv, h))
	replyMsg := &kexECDHReplyMsg{HostKey: hostKeyBlob, ServerPubKey: append([]byte(nil), k.ecdhPub[:]...), Signature: sig}
	reply = encodeMessage(replyMsg, nil)
	newKeys = encodeMessage(&newKeysMsg{}, nil)

	k.exchangeHash = h
	k.sharedSecret = secret
	k.state = kexNewKeysSent
	return reply, newKeys, nil
}

// clientHandleKexDHReply implements the client half of §4.4's `KexDH +
// KexDHReply` transition: verify the host-key signature and return the
// NewKeys payload together with the server's host key blob. Accepting or
// rejecting that key (the §5 suspension point for interactive host-key
// validation) belongs to the caller, which consults ValidHostKey before
// sending the NewKeys.
func (k *kex) clientHandleKexDHReply(msg *kexECDHReplyMsg, clientVersion, serverVersion []byte) (newKeys []byte, hostKeyBlob []byte, err error) {
	if k.state != kexDH || k.role != kexRoleClient {
		return nil, nil, bug("clientHandleKexDHReply called outside client KexDH (state=%d)", k.state)
	}
	if len(msg.ServerPubKey) != 32 {
		return nil, nil, protoErrorf("malformed server ECDH public key (%d bytes)", len(msg.ServerPubKey))
	}
	var serverPub [32]byte
	copy(serverPub[:], msg.ServerPubKey)
	secret, err := curve25519.X25519(k.ecdhPriv[:], serverPub[:])
	if err != nil {
		return nil, nil, cryptoErrorf("curve25519: %v", err)
	}

	k.magics.clientVersion = clientVersion
	k.magics.serverVersion = serverVersion
	h := computeExchangeHash(&k.magics, msg.HostKey, k.ecdhPub[:], msg.ServerPubKey, secret)

	hostPub, err := ParseEd25519PublicKeyBlob(msg.HostKey)
	if err != nil {
		return nil, nil, err
	}
	sig, err := parseSignature(msg.Signature)
	if err != nil {
		return nil, nil, err
	}
	if !verifyEd25519(hostPub, h, sig) {
		return nil, nil, cryptoErrorf("host key signature verification failed")
	}

	if k.sessionID == nil {
		k.sessionID = h
	}
	k.exchangeHash = h
	k.sharedSecret = secret
	k.state = kexNewKeysSent
	return encodeMessage(&newKeysMsg{}, nil), msg.HostKey, nil
}

// finishNewKeys implements §4.4's `NewKeys + peer NewKeys → install keys →
// Idle` transition, deriving the six key-schedule outputs and returning
// the two cipherSuite instances (client→server, server→client) the caller
// installs into its transportCiphers.
func (k *kex) finishNewKeys() (c2s, s2c cipherSuite, err error) {
	if k.state != kexNewKeysSent {
		return nil, nil, bug("finishNewKeys called outside NewKeys (state=%d)", k.state)
	}
	sched := deriveKeys(k.sharedSecret, k.exchangeHash, k.sessionID)

	c2sInfo := cipherModes[k.agreed.cipherC2S]
	s2cInfo := cipherModes[k.agreed.cipherS2C]
	if c2sInfo == nil || s2cInfo == nil {
		return nil, nil, bug("negotiated cipher missing from cipherModes table")
	}
	if c2sInfo.macKeySize > 0 && macModes[k.agreed.macC2S] == nil {
		return nil, nil, cryptoErrorf("cipher %q requires a MAC but none was negotiated", k.agreed.cipherC2S)
	}
	if s2cInfo.macKeySize > 0 && macModes[k.agreed.macS2C] == nil {
		return nil, nil, cryptoErrorf("cipher %q requires a MAC but none was negotiated", k.agreed.cipherS2C)
	}

	c2sMacKey := sched.cut(letterE, c2sInfo.macKeySize)
	s2cMacKey := sched.cut(letterF, s2cInfo.macKeySize)
	c2sKey := sched.cut(letterC, c2sInfo.keySize)
	s2cKey := sched.cut(letterD, s2cInfo.keySize)
	c2sIV := sched.cut(letterA, c2sInfo.ivSize)
	s2cIV := sched.cut(letterB, s2cInfo.ivSize)

	c2s = c2sInfo.newCipher(c2sKey, c2sIV, c2sMacKey)
	s2c = s2cInfo.newCipher(s2cKey, s2cIV, s2cMacKey)

	k.state = kexIdle
	return c2s, s2c, nil
}

// computeExchangeHash implements §4.4's "Exchange hash input order":
// SHA-256 of length-prefixed client version, server version, client
// KexInit payload, server KexInit payload, host-key blob, client public
// point, server public point, shared secret as mpint — in that fixed
// order regardless of which role is computing it.
func computeExchangeHash(magics *handshakeMagics, hostKeyBlob, clientPub, serverPub, sharedSecret []byte) []byte {
	e := newEncoder()
	e.putString(magics.clientVersion)
	e.putString(magics.serverVersion)
	e.putString(magics.clientKexInit)
	e.putString(magics.serverKexInit)
	e.putString(hostKeyBlob)
	e.putString(clientPub)
	e.putString(serverPub)
	e.putMpint(new(big.Int).SetBytes(sharedSecret))
	sum := sha256.Sum256(e.bytes())
	return sum[:]
}

// mpintWireBytes renders raw (a big-endian-interpreted byte string, per
// the curve25519-sha256 convention of treating the ECDH output directly as
// an unsigned integer) as the full RFC 4251 §5 mpint wire encoding —
// length prefix included — the form RFC 4253 §7.2's key derivation hashes
// K as.
func mpintWireBytes(raw []byte) []byte {
	e := newEncoder()
	e.putMpint(new(big.Int).SetBytes(raw))
	return e.bytes()
}

// keySchedule lazily derives RFC 4253 §7.2 letter-keyed outputs from (K, H,
// session_id), extending with HASH(K || H || K1) if more bytes than one
// SHA-256 block are ever needed by a cut.
type keySchedule struct {
	sharedSecret []byte // mpint-encoded K, as fed to every hash
	exchangeHash []byte
	sessionID    []byte
	k1           []byte // this round's first derived block, cached for extension
}

type kexLetter byte

const (
	letterA kexLetter = 'A' // client -> server IV
	letterB kexLetter = 'B' // server -> client IV
	letterC kexLetter = 'C' // client -> server encryption key
	letterD kexLetter = 'D' // server -> client encryption key
	letterE kexLetter = 'E' // client -> server integrity key
	letterF kexLetter = 'F' // server -> client integrity key
)

func deriveKeys(sharedSecret, exchangeHash, sessionID []byte) *keySchedule {
	return &keySchedule{
		sharedSecret: mpintWireBytes(sharedSecret),
		exchangeHash: exchangeHash,
		sessionID:    sessionID,
	}
}

// cut returns n bytes of key material for the given letter, extending the
// hash chain with HASH(K || H || K1 || ... ) as many times as needed.
func (s *keySchedule) cut(letter kexLetter, n int) []byte {
	if n == 0 {
		return nil
	}
	h := sha256.New()
	h.Write(s.sharedSecret)
	h.Write(s.exchangeHash)
	h.Write([]byte{byte(letter)})
	h.Write(s.sessionID)
	out := h.Sum(nil)
	if s.k1 == nil {
		s.k1 = out
	}
	for len(out) < n {
		h := sha256.New()
		h.Write(s.sharedSecret)
		h.Write(s.exchangeHash)
		h.Write(out)
		out = append(out, h.Sum(nil)...)
	}
	return out[:n]
}
