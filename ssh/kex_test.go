// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

// decodeKexInit round-trips raw through decodeMessage, asserting it is a
// *kexInitMsg, the way conn.go's dispatch would see it off the wire.
func decodeKexInit(t *testing.T, raw []byte) *kexInitMsg {
	t.Helper()
	m, err := decodeMessage(raw, &wireContext{})
	if err != nil {
		t.Fatalf("decodeMessage(KexInit): %v", err)
	}
	ki, ok := m.(*kexInitMsg)
	if !ok {
		t.Fatalf("decodeMessage(KexInit) = %T, want *kexInitMsg", m)
	}
	return ki
}

func TestKeyExchangeEndToEndAgreesOnSessionAndCiphers(t *testing.T) {
	hostPub, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	clientVersion := []byte("SSH-2.0-testclient")
	serverVersion := []byte("SSH-2.0-testserver")

	clientK := newKex(kexRoleClient, nil)
	serverK := newKex(kexRoleServer, nil)

	clientInitRaw, err := clientK.startKexInit(&CryptoConfig{}, defaultHostKeyAlgos)
	if err != nil {
		t.Fatalf("client startKexInit: %v", err)
	}
	serverInitRaw, err := serverK.startKexInit(&CryptoConfig{}, defaultHostKeyAlgos)
	if err != nil {
		t.Fatalf("server startKexInit: %v", err)
	}

	clientInitMsg := decodeKexInit(t, clientInitRaw)
	serverInitMsg := decodeKexInit(t, serverInitRaw)

	dhInitRaw, err := clientK.receivePeerKexInit(serverInitRaw, serverInitMsg)
	if err != nil {
		t.Fatalf("client receivePeerKexInit: %v", err)
	}
	if dhInitRaw == nil {
		t.Fatal("client receivePeerKexInit should produce a KexDHInit payload")
	}
	if noneExpected, err := serverK.receivePeerKexInit(clientInitRaw, clientInitMsg); err != nil {
		t.Fatalf("server receivePeerKexInit: %v", err)
	} else if noneExpected != nil {
		t.Fatal("server receivePeerKexInit should not itself produce an outbound payload")
	}

	dhInitMsgIface, err := decodeMessage(dhInitRaw, &wireContext{})
	if err != nil {
		t.Fatalf("decodeMessage(KexDHInit): %v", err)
	}
	dhInitMsg, ok := dhInitMsgIface.(*kexECDHInitMsg)
	if !ok {
		t.Fatalf("decodeMessage(KexDHInit) = %T, want *kexECDHInitMsg", dhInitMsgIface)
	}

	replyRaw, serverNewKeysRaw, err := serverK.serverHandleKexDHInit(dhInitMsg, hostPub, hostPriv, clientVersion, serverVersion)
	if err != nil {
		t.Fatalf("serverHandleKexDHInit: %v", err)
	}
	if serverNewKeysRaw == nil {
		t.Fatal("serverHandleKexDHInit should also produce NewKeys")
	}

	replyMsgIface, err := decodeMessage(replyRaw, &wireContext{})
	if err != nil {
		t.Fatalf("decodeMessage(KexDHReply): %v", err)
	}
	replyMsg, ok := replyMsgIface.(*kexECDHReplyMsg)
	if !ok {
		t.Fatalf("decodeMessage(KexDHReply) = %T, want *kexECDHReplyMsg", replyMsgIface)
	}

	clientNewKeysRaw, hostKeyBlob, err := clientK.clientHandleKexDHReply(replyMsg, clientVersion, serverVersion)
	if err != nil {
		t.Fatalf("clientHandleKexDHReply: %v", err)
	}
	if clientNewKeysRaw == nil {
		t.Fatal("clientHandleKexDHReply should produce NewKeys")
	}
	gotHostPub, err := ParseEd25519PublicKeyBlob(hostKeyBlob)
	if err != nil || !gotHostPub.Equal(hostPub) {
		t.Fatalf("client did not recover the server's host key: %v", err)
	}

	if !bytes.Equal(clientK.sessionID, serverK.sessionID) {
		t.Fatal("client and server disagree on session id")
	}
	if !bytes.Equal(clientK.exchangeHash, serverK.exchangeHash) {
		t.Fatal("client and server disagree on exchange hash")
	}

	clientC2S, clientS2C, err := clientK.finishNewKeys()
	if err != nil {
		t.Fatalf("client finishNewKeys: %v", err)
	}
	serverC2S, serverS2C, err := serverK.finishNewKeys()
	if err != nil {
		t.Fatalf("server finishNewKeys: %v", err)
	}

	// A packet sealed with the client's idea of c2s must open cleanly
	// with the server's idea of c2s, and likewise in the other direction.
	sendTC := &transportCipher{suite: clientC2S}
	recvTC := &transportCipher{suite: serverC2S}
	framed, err := sealPacket(sendTC, []byte("client to server"))
	if err != nil {
		t.Fatalf("sealPacket c2s: %v", err)
	}
	got, _, err := openPacket(recvTC, framed)
	if err != nil {
		t.Fatalf("openPacket c2s: %v", err)
	}
	if string(got) != "client to server" {
		t.Fatalf("c2s payload mismatch: got %q", got)
	}

	sendTC2 := &transportCipher{suite: serverS2C}
	recvTC2 := &transportCipher{suite: clientS2C}
	framed2, err := sealPacket(sendTC2, []byte("server to client"))
	if err != nil {
		t.Fatalf("sealPacket s2c: %v", err)
	}
	got2, _, err := openPacket(recvTC2, framed2)
	if err != nil {
		t.Fatalf("openPacket s2c: %v", err)
	}
	if string(got2) != "server to client" {
		t.Fatalf("s2c payload mismatch: got %q", got2)
	}
}

// TestFirstKexFollowsDiscardWithoutGuess2RequiresLiteralMatch covers the
// plain RFC 4253 guess rule: a guesser whose first entry doesn't literally
// match the peer's first entry is discarded.
func TestFirstKexFollowsDiscardWithoutGuess2RequiresLiteralMatch(t *testing.T) {
	client := &kexInitMsg{KexAlgos: []string{"curve25519-sha256", "diffie-hellman-group14-sha256"}, FirstKexFollows: true}
	server := &kexInitMsg{KexAlgos: []string{"diffie-hellman-group14-sha256", "curve25519-sha256"}}

	k := &kex{role: kexRoleServer}
	if discard := k.computeFirstFollowsDiscard(client, server); !discard {
		t.Fatal("expected a literal first-entry mismatch to be discarded")
	}

	serverMatching := &kexInitMsg{KexAlgos: []string{"curve25519-sha256", "diffie-hellman-group14-sha256"}}
	if discard := k.computeFirstFollowsDiscard(client, serverMatching); discard {
		t.Fatal("expected a literal first-entry match to not be discarded")
	}
}

// TestFirstKexFollowsDiscardWithGuess2ChecksAgainstNegotiatedAlgo covers
// the kexguess2 relaxation: once either side lists the kexguess2 marker,
// a guess is valid whenever the guesser's first (non-marker) entry equals
// the algorithm negotiation would actually pick, even if the two sides'
// literal first entries differ.
func TestFirstKexFollowsDiscardWithGuess2ChecksAgainstNegotiatedAlgo(t *testing.T) {
	// Client guesses curve25519-sha256, listing it first; client's list
	// also carries the kexguess2 marker. Server's first entry differs
	// literally, but curve25519-sha256 is still the first algorithm common
	// to both lists once negotiation runs - so the guess was correct.
	client := &kexInitMsg{
		KexAlgos:        []string{"curve25519-sha256", kexMarkerGuess2, "diffie-hellman-group14-sha256"},
		FirstKexFollows: true,
	}
	server := &kexInitMsg{
		KexAlgos: []string{"diffie-hellman-group16-sha512", "curve25519-sha256", "diffie-hellman-group14-sha256"},
	}

	k := &kex{role: kexRoleServer}
	if discard := k.computeFirstFollowsDiscard(client, server); discard {
		t.Fatal("expected a kexguess2-marked guess matching the negotiated algorithm to not be discarded")
	}

	// Now the client's guessed algorithm isn't what negotiation would pick
	// (server doesn't offer it at all): the guess was wrong and must be
	// discarded even with kexguess2 present.
	serverWithoutGuess := &kexInitMsg{
		KexAlgos: []string{"diffie-hellman-group16-sha512", "diffie-hellman-group14-sha256"},
	}
	if discard := k.computeFirstFollowsDiscard(client, serverWithoutGuess); !discard {
		t.Fatal("expected a kexguess2-marked guess for an algorithm the peer never offered to be discarded")
	}
}

func TestClientRejectsTamperedHostKeySignature(t *testing.T) {
	hostPub, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	clientVersion := []byte("SSH-2.0-testclient")
	serverVersion := []byte("SSH-2.0-testserver")

	clientK := newKex(kexRoleClient, nil)
	serverK := newKex(kexRoleServer, nil)

	clientInitRaw, _ := clientK.startKexInit(&CryptoConfig{}, defaultHostKeyAlgos)
	serverInitRaw, _ := serverK.startKexInit(&CryptoConfig{}, defaultHostKeyAlgos)
	clientInitMsg := decodeKexInit(t, clientInitRaw)
	serverInitMsg := decodeKexInit(t, serverInitRaw)

	dhInitRaw, err := clientK.receivePeerKexInit(serverInitRaw, serverInitMsg)
	if err != nil {
		t.Fatalf("client receivePeerKexInit: %v", err)
	}
	if _, err := serverK.receivePeerKexInit(clientInitRaw, clientInitMsg); err != nil {
		t.Fatalf("server receivePeerKexInit: %v", err)
	}
	dhInitMsgIface, _ := decodeMessage(dhInitRaw, &wireContext{})
	dhInitMsg := dhInitMsgIface.(*kexECDHInitMsg)

	replyRaw, _, err := serverK.serverHandleKexDHInit(dhInitMsg, hostPub, hostPriv, clientVersion, serverVersion)
	if err != nil {
		t.Fatalf("serverHandleKexDHInit: %v", err)
	}
	replyMsgIface, _ := decodeMessage(replyRaw, &wireContext{})
	replyMsg := replyMsgIface.(*kexECDHReplyMsg)
	// Flip a bit in the signature; verification must fail.
	replyMsg.Signature = append([]byte(nil), replyMsg.Signature...)
	replyMsg.Signature[len(replyMsg.Signature)-1] ^= 0x01

	if _, _, err := clientK.clientHandleKexDHReply(replyMsg, clientVersion, serverVersion); err == nil {
		t.Fatal("expected a tampered host-key signature to be rejected")
	}
}
