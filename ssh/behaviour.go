// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "crypto/ed25519"

// This file implements §4.8: the behaviour interfaces the engine borrows
// the application through. The teacher's client.go instead hard-codes a
// ClientConfig struct of function-pointer fields (`HostKeyCallback`,
// `Auth []AuthMethod`); the spec calls for a capability-set interface so a
// host can share one object across connections and keep auth/channel
// state next to its own bookkeeping, closer to the `rob-gra-go-iecp5/
// clog.LogProvider` style single-interface collaborator than to a config
// struct of callbacks.

// AuthKey is one candidate key a ClientBehaviour may offer during pubkey
// authentication, paired with the signer that produces a signature over
// it. The engine calls Sign synchronously while answering a PK_OK and waits
// for it to return; a signer backed by an external agent holds the engine
// for that whole round trip.
type AuthKey struct {
	PublicKey ed25519.PublicKey
	Sign      func(msg []byte) ([]byte, error)
}

// ClientBehaviour is the capability set §4.8 requires of a client-role
// application. Every method, and Sign on whatever AuthKey NextAuthKey
// returns, is called synchronously: the engine waits for it to return.
type ClientBehaviour interface {
	// Username returns the account name to authenticate as.
	Username() string
	// ValidHostKey is consulted once per key exchange (including rekeys)
	// to accept or reject the server's host key; returning false aborts
	// the connection.
	ValidHostKey(hostKey ed25519.PublicKey) bool
	// AuthPassword is consulted when password authentication is offered
	// and no pubkey authentication succeeded; ok false means "do not try
	// a password, move on".
	AuthPassword() (password string, ok bool)
	// NextAuthKey returns the next candidate key to try, or ok=false once
	// exhausted.
	NextAuthKey() (key *AuthKey, ok bool)
	// Authenticated is called once authentication succeeds.
	Authenticated()
	// ShowBanner surfaces a server authentication banner.
	ShowBanner(text, lang string)
	// Disconnected is called when the connection ends, with the reason
	// the peer gave (or a locally generated one).
	Disconnected(reason error)
}

// ServerBehaviour is the capability set §4.8 requires of a server-role
// application.
type ServerBehaviour interface {
	// HostKeys returns the signing keys this server offers during kex,
	// most preferred first.
	HostKeys() []ed25519.PrivateKey
	// HaveAuthPassword/HaveAuthPubkey report, without checking a specific
	// credential, whether the named user has that method available — used
	// to build the UserauthFailure method list.
	HaveAuthPassword(user string) bool
	HaveAuthPubkey(user string) bool
	// AuthUnchallenged reports whether user may skip credential checks
	// entirely (e.g. during local testing); the default implementation
	// (DefaultServerBehaviour) always refuses — spec §9 Open Question,
	// resolved: never hardcoded true, see DESIGN.md.
	AuthUnchallenged(user string) bool
	// AuthPassword/AuthPubkey check a specific credential. Implementations
	// must compare in constant time where a timing difference would leak
	// whether the user exists (spec §4.5).
	AuthPassword(user, password string) bool
	AuthPubkey(user string, pubKey ed25519.PublicKey) bool
	// OpenSession is consulted when a "session" channel-open arrives;
	// returning false refuses it with SSH_OPEN_ADMINISTRATIVELY_PROHIBITED.
	OpenSession(channelID uint32) bool
	// SessShell/SessExec/SessPTY answer the corresponding channel
	// requests; returning false sends a channel failure reply.
	SessShell(channelID uint32) bool
	SessExec(channelID uint32, command string) bool
	SessPTY(channelID uint32, term string, width, height uint32) bool
	Disconnected(reason error)
}

// DefaultServerBehaviour refuses every privileged decision; embed it and
// override only the methods a host cares about. AuthUnchallenged always
// returns false here — see DESIGN.md's Open Questions.
type DefaultServerBehaviour struct{}

func (DefaultServerBehaviour) HostKeys() []ed25519.PrivateKey        { return nil }
func (DefaultServerBehaviour) HaveAuthPassword(string) bool          { return false }
func (DefaultServerBehaviour) HaveAuthPubkey(string) bool            { return false }
func (DefaultServerBehaviour) AuthUnchallenged(string) bool          { return false }
func (DefaultServerBehaviour) AuthPassword(string, string) bool      { return false }
func (DefaultServerBehaviour) AuthPubkey(string, ed25519.PublicKey) bool {
	return false
}
func (DefaultServerBehaviour) OpenSession(uint32) bool                            { return false }
func (DefaultServerBehaviour) SessShell(uint32) bool                              { return false }
func (DefaultServerBehaviour) SessExec(uint32, string) bool                       { return false }
func (DefaultServerBehaviour) SessPTY(uint32, string, uint32, uint32) bool         { return false }
func (DefaultServerBehaviour) Disconnected(error)                                 {}
