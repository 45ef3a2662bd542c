// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// This file implements the client half of §4.5: the authentication state
// machine driving username/password/pubkey exchange against a
// ClientBehaviour. The teacher's client.go authenticates inline inside
// `clientAuthenticate`, trying each configured AuthMethod in a blocking
// loop; the spec instead wants an explicit state machine the cooperative
// driver can suspend and resume (e.g. while `agent_sign` is pending).

// authClientState is the client authentication state machine of §4.5.
type authClientState int

const (
	authClientUnstarted authClientState = iota
	authClientMethodQuery
	authClientRequest
	authClientIdle // authenticated
)

// authClientRequestKind distinguishes what kind of UserauthRequest is
// outstanding, since message 60's decoded shape depends on it.
type authClientRequestKind int

const (
	authRequestNone authClientRequestKind = iota
	authRequestPubKey
	authRequestPassword
)

// authClient drives client-side authentication. One instance per
// connection; conn.go owns it and feeds it decoded messages.
type authClient struct {
	state      authClientState
	lastKind   authClientRequestKind
	lastKey    *AuthKey // the key a pubkey probe/request referenced
	triedPassword bool
	behaviour  ClientBehaviour
}

func newAuthClient(behaviour ClientBehaviour) *authClient {
	return &authClient{behaviour: behaviour}
}

// start returns the `none` probe and transitions to MethodQuery. Conn
// calls it once the server accepts the ServiceRequest(ssh-userauth) that
// handleNewKeys sent.
func (a *authClient) start() []byte {
	if a.state != authClientUnstarted {
		bug("authClient.start called twice")
	}
	a.state = authClientMethodQuery
	user := a.behaviour.Username()
	req := &userAuthRequestMsg{User: user, Service: serviceSSH, Method: "none", Body: &noneMethod{}}
	return encodeMessage(req, nil)
}

// handleFailure implements the `UserauthFailure` transition: try the next
// pubkey, else fall back to password, else fail.
func (a *authClient) handleFailure(msg *userAuthFailureMsg) (next []byte, done bool, err error) {
	for _, m := range msg.Methods {
		if m == "publickey" {
			if key, ok := a.behaviour.NextAuthKey(); ok {
				a.lastKind = authRequestPubKey
				a.lastKey = key
				a.state = authClientRequest
				body := &pubkeyMethod{HasSignature: false, Algo: hostAlgoEd25519, PubKeyBlob: Ed25519PublicKeyBlob(key.PublicKey)}
				req := &userAuthRequestMsg{User: a.behaviour.Username(), Service: serviceSSH, Method: "publickey", Body: body}
				return encodeMessage(req, nil), false, nil
			}
		}
	}
	for _, m := range msg.Methods {
		if m == "password" && !a.triedPassword {
			if password, ok := a.behaviour.AuthPassword(); ok {
				a.triedPassword = true
				a.lastKind = authRequestPassword
				a.state = authClientRequest
				body := &passwordMethod{Password: password}
				req := &userAuthRequestMsg{User: a.behaviour.Username(), Service: serviceSSH, Method: "password", Body: body}
				return encodeMessage(req, nil), false, nil
			}
		}
	}
	return nil, true, behaviourErrorf("no authentication methods left")
}

// handle60 implements the message-60 transitions: PkOk verification and
// signing, or a bare surfaced error for PwChangeReq (not required by §4.5).
func (a *authClient) handle60(body userauth60Body, signer func(key *AuthKey, msg []byte) ([]byte, error)) ([]byte, error) {
	if a.state != authClientRequest || a.lastKind != authRequestPubKey {
		return nil, protoErrorf("unexpected userauth message 60 (no pubkey probe outstanding)")
	}
	switch v := body.(type) {
	case *pkOkBody:
		wantBlob := Ed25519PublicKeyBlob(a.lastKey.PublicKey)
		if v.Algo != hostAlgoEd25519 || !constantTimeEqual(v.Key, wantBlob) {
			return nil, protoErrorf("PK_OK echoed an unexpected key")
		}
		toSign := &userAuthRequestMsg{
			User:    a.behaviour.Username(),
			Service: serviceSSH,
			Method:  "publickey",
			Body:    &pubkeyMethod{HasSignature: true, Algo: hostAlgoEd25519, PubKeyBlob: wantBlob},
		}
		signCtx := &wireContext{forceSigPresent: true}
		signPayload := encodeMessage(toSign, signCtx)
		sigBytes, err := signer(a.lastKey, signPayload)
		if err != nil {
			return nil, behaviourErrorf("signing pubkey auth request: %v", err)
		}
		sig := marshalSignature(&signature{Format: hostAlgoEd25519, Blob: sigBytes})
		final := &userAuthRequestMsg{
			User:    a.behaviour.Username(),
			Service: serviceSSH,
			Method:  "publickey",
			Body:    &pubkeyMethod{HasSignature: true, Algo: hostAlgoEd25519, PubKeyBlob: wantBlob, Signature: sig},
		}
		return encodeMessage(final, nil), nil
	case *pwChangeReqBody:
		return nil, behaviourErrorf("server requested a password change, which is not supported")
	default:
		return nil, bug("unreachable userauth60Body variant")
	}
}

// handleSuccess implements "On UserauthSuccess": ServiceRequest(ssh-
// connection), notify behaviour, transition to Idle.
func (a *authClient) handleSuccess() []byte {
	a.state = authClientIdle
	a.behaviour.Authenticated()
	return encodeMessage(&serviceRequestMsg{Service: serviceSSH}, nil)
}

func (a *authClient) authenticated() bool { return a.state == authClientIdle }

// pendingHint reports which authMethodHint decodeMessage should use to
// disambiguate an incoming message 60, based on which request kind this
// client last sent (see messages.go's userauth60Msg.unmarshal).
func (a *authClient) pendingHint() authMethodHint {
	switch a.lastKind {
	case authRequestPubKey:
		return authHintPubKey
	case authRequestPassword:
		return authHintPassword
	default:
		return authHintNone
	}
}
