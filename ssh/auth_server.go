// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "crypto/ed25519"

// This file implements the server half of §4.5: dispatching every
// authentication decision to a ServerBehaviour, with the publickey method
// split into an unsigned probe ("do you have this key") and a signed
// request, per RFC 4252 §7. There is no teacher equivalent (the retrieved
// massiveart-go.crypto snapshot is client-only); the dispatch shape is
// built directly from the spec, reusing common.go/messages.go throughout.

// authServerState records only whether authentication has succeeded; a
// request arriving after that is a protocol error. A publickey probe and
// its signed request are handled independently, with no state between them.
type authServerState int

const (
	authServerAwaitingRequest authServerState = iota
	authServerDone
)

type authServer struct {
	state     authServerState
	behaviour ServerBehaviour
	user      string
}

func newAuthServer(behaviour ServerBehaviour) *authServer {
	return &authServer{behaviour: behaviour}
}

// availableMethods builds the "methods" list a UserauthFailure reports,
// consulting HaveAuthPassword/HaveAuthPubkey for the given user.
func (s *authServer) availableMethods(user string) []string {
	var methods []string
	if s.behaviour.HaveAuthPubkey(user) {
		methods = append(methods, "publickey")
	}
	if s.behaviour.HaveAuthPassword(user) {
		methods = append(methods, "password")
	}
	return methods
}

// handleRequest dispatches one UserauthRequest, returning the reply
// payload (UserauthSuccess, UserauthFailure, or a PkOk/UserauthFailure for
// a publickey probe) to send.
func (s *authServer) handleRequest(msg *userAuthRequestMsg) ([]byte, error) {
	if s.state == authServerDone {
		return nil, protoErrorf("userauth request received after authentication already succeeded")
	}
	s.user = msg.User

	if s.behaviour.AuthUnchallenged(msg.User) {
		return s.succeed(), nil
	}

	switch body := msg.Body.(type) {
	case *noneMethod:
		return s.fail(msg.User, false), nil
	case *passwordMethod:
		if body.ChangeRequest {
			return nil, behaviourErrorf("password change requests are not supported")
		}
		if s.behaviour.AuthPassword(msg.User, body.Password) {
			return s.succeed(), nil
		}
		return s.fail(msg.User, false), nil
	case *pubkeyMethod:
		pub, err := ParseEd25519PublicKeyBlob(body.PubKeyBlob)
		if err != nil {
			return s.fail(msg.User, false), nil
		}
		if !s.behaviour.AuthPubkey(msg.User, pub) {
			return s.fail(msg.User, false), nil
		}
		if !body.HasSignature {
			return encodeMessage(&userauth60Msg{Body: &pkOkBody{Algo: body.Algo, Key: body.PubKeyBlob}}, nil), nil
		}
		return s.verifySignedPubkey(msg, body, pub)
	default:
		return s.fail(msg.User, false), nil
	}
}

// verifySignedPubkey checks the signature of a fully-signed publickey
// UserauthRequest against the same payload the client signed: itself,
// re-encoded with the signature blanked and forceSigPresent set (§4.1/§4.5).
func (s *authServer) verifySignedPubkey(msg *userAuthRequestMsg, body *pubkeyMethod, pub ed25519.PublicKey) ([]byte, error) {
	toVerify := &userAuthRequestMsg{
		User:    msg.User,
		Service: msg.Service,
		Method:  msg.Method,
		Body:    &pubkeyMethod{HasSignature: true, Algo: body.Algo, PubKeyBlob: body.PubKeyBlob},
	}
	signedPayload := encodeMessage(toVerify, &wireContext{forceSigPresent: true})
	sig, err := parseSignature(body.Signature)
	if err != nil {
		return s.fail(msg.User, false), nil
	}
	if !verifyEd25519(pub, signedPayload, sig) {
		return s.fail(msg.User, false), nil
	}
	return s.succeed(), nil
}

func (s *authServer) succeed() []byte {
	s.state = authServerDone
	return encodeMessage(&userAuthSuccessMsg{}, nil)
}

func (s *authServer) fail(user string, partial bool) []byte {
	return encodeMessage(&userAuthFailureMsg{Methods: s.availableMethods(user), PartialSuccess: partial}, nil)
}

func (s *authServer) authenticated() bool { return s.state == authServerDone }
