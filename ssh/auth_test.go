// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

type fakeServerBehaviour struct {
	DefaultServerBehaviour
	password   string
	authorized ed25519.PublicKey
}

func (f *fakeServerBehaviour) HaveAuthPassword(string) bool { return f.password != "" }
func (f *fakeServerBehaviour) HaveAuthPubkey(string) bool   { return f.authorized != nil }
func (f *fakeServerBehaviour) AuthPassword(_, password string) bool {
	return f.password != "" && password == f.password
}
func (f *fakeServerBehaviour) AuthPubkey(_ string, pub ed25519.PublicKey) bool {
	return f.authorized != nil && f.authorized.Equal(pub)
}

func decodeAuthReply(t *testing.T, raw []byte) message {
	t.Helper()
	m, err := decodeMessage(raw, &wireContext{authHint: authHintPubKey})
	if err != nil {
		t.Fatalf("decodeMessage(auth reply): %v", err)
	}
	return m
}

func TestAuthServerPasswordSuccessAndFailure(t *testing.T) {
	behaviour := &fakeServerBehaviour{password: "correct horse"}
	srv := newAuthServer(behaviour)

	fail, err := srv.handleRequest(&userAuthRequestMsg{User: "alice", Service: serviceSSH, Method: "password", Body: &passwordMethod{Password: "wrong"}})
	if err != nil {
		t.Fatalf("handleRequest(wrong password): %v", err)
	}
	if _, ok := decodeAuthReply(t, fail).(*userAuthFailureMsg); !ok {
		t.Fatal("expected a UserauthFailure for a wrong password")
	}
	if srv.authenticated() {
		t.Fatal("server should not consider itself authenticated after a failed attempt")
	}

	ok, err := srv.handleRequest(&userAuthRequestMsg{User: "alice", Service: serviceSSH, Method: "password", Body: &passwordMethod{Password: "correct horse"}})
	if err != nil {
		t.Fatalf("handleRequest(correct password): %v", err)
	}
	if _, isOK := decodeAuthReply(t, ok).(*userAuthSuccessMsg); !isOK {
		t.Fatal("expected a UserauthSuccess for the correct password")
	}
	if !srv.authenticated() {
		t.Fatal("server should be authenticated after a successful attempt")
	}
}

func TestAuthServerRejectsRequestAfterSuccess(t *testing.T) {
	behaviour := &fakeServerBehaviour{password: "p"}
	srv := newAuthServer(behaviour)
	if _, err := srv.handleRequest(&userAuthRequestMsg{User: "bob", Service: serviceSSH, Method: "password", Body: &passwordMethod{Password: "p"}}); err != nil {
		t.Fatalf("handleRequest: %v", err)
	}
	if _, err := srv.handleRequest(&userAuthRequestMsg{User: "bob", Service: serviceSSH, Method: "none", Body: &noneMethod{}}); err == nil {
		t.Fatal("expected a request after success to be rejected")
	}
}

func TestAuthServerPubkeyProbeThenSignedRequest(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	behaviour := &fakeServerBehaviour{authorized: pub}
	srv := newAuthServer(behaviour)

	blob := Ed25519PublicKeyBlob(pub)
	probeReply, err := srv.handleRequest(&userAuthRequestMsg{
		User: "carol", Service: serviceSSH, Method: "publickey",
		Body: &pubkeyMethod{HasSignature: false, Algo: hostAlgoEd25519, PubKeyBlob: blob},
	})
	if err != nil {
		t.Fatalf("handleRequest(probe): %v", err)
	}
	pkOk, ok := decodeAuthReply(t, probeReply).(*userauth60Msg)
	if !ok {
		t.Fatal("expected message 60 (PK_OK) in response to an unsigned pubkey probe")
	}
	if _, ok := pkOk.Body.(*pkOkBody); !ok {
		t.Fatalf("expected *pkOkBody, got %T", pkOk.Body)
	}

	toSign := &userAuthRequestMsg{
		User: "carol", Service: serviceSSH, Method: "publickey",
		Body: &pubkeyMethod{HasSignature: true, Algo: hostAlgoEd25519, PubKeyBlob: blob},
	}
	signPayload := encodeMessage(toSign, &wireContext{forceSigPresent: true})
	sig := marshalSignature(&signature{Format: hostAlgoEd25519, Blob: ed25519.Sign(priv, signPayload)})

	finalReply, err := srv.handleRequest(&userAuthRequestMsg{
		User: "carol", Service: serviceSSH, Method: "publickey",
		Body: &pubkeyMethod{HasSignature: true, Algo: hostAlgoEd25519, PubKeyBlob: blob, Signature: sig},
	})
	if err != nil {
		t.Fatalf("handleRequest(signed): %v", err)
	}
	if _, ok := decodeAuthReply(t, finalReply).(*userAuthSuccessMsg); !ok {
		t.Fatal("expected UserauthSuccess once the signature verifies")
	}
}

func TestAuthServerRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	behaviour := &fakeServerBehaviour{authorized: pub}
	srv := newAuthServer(behaviour)

	blob := Ed25519PublicKeyBlob(pub)
	toSign := &userAuthRequestMsg{
		User: "mallory", Service: serviceSSH, Method: "publickey",
		Body: &pubkeyMethod{HasSignature: true, Algo: hostAlgoEd25519, PubKeyBlob: blob},
	}
	signPayload := encodeMessage(toSign, &wireContext{forceSigPresent: true})
	// Sign with the wrong key entirely.
	sig := marshalSignature(&signature{Format: hostAlgoEd25519, Blob: ed25519.Sign(otherPriv, signPayload)})

	reply, err := srv.handleRequest(&userAuthRequestMsg{
		User: "mallory", Service: serviceSSH, Method: "publickey",
		Body: &pubkeyMethod{HasSignature: true, Algo: hostAlgoEd25519, PubKeyBlob: blob, Signature: sig},
	})
	if err != nil {
		t.Fatalf("handleRequest: %v", err)
	}
	if _, ok := decodeAuthReply(t, reply).(*userAuthFailureMsg); !ok {
		t.Fatal("expected a signature from the wrong key to be rejected")
	}
}

func TestAuthServerUnchallengedBypassesCredentials(t *testing.T) {
	behaviour := &fakeServerBehaviourUnchallenged{}
	srv := newAuthServer(behaviour)
	reply, err := srv.handleRequest(&userAuthRequestMsg{User: "root", Service: serviceSSH, Method: "none", Body: &noneMethod{}})
	if err != nil {
		t.Fatalf("handleRequest: %v", err)
	}
	if _, ok := decodeAuthReply(t, reply).(*userAuthSuccessMsg); !ok {
		t.Fatal("expected AuthUnchallenged=true to succeed regardless of method")
	}
}

type fakeServerBehaviourUnchallenged struct {
	DefaultServerBehaviour
}

func (fakeServerBehaviourUnchallenged) AuthUnchallenged(string) bool { return true }
