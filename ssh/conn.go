// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "crypto/ed25519"

// This file implements §4.7: the connection driver that dispatches
// decoded messages by category/phase admissibility, plus the channel
// table and rekey trigger it owns. The teacher's equivalent
// (`ClientConn.mainLoop`) blocks on channel receives inside a goroutine
// and dispatches with a type switch; this Conn is pure state plus a
// `handle` method session.go calls once framing.go has produced a decoded
// message, so the whole dispatch is synchronous and side-effect-free
// beyond the returned outbound payloads (§5).

// connRole mirrors kexRole but is the connection's own persistent role,
// since (unlike kex, which is transient per exchange) the connection's
// client/server identity never changes.
type connRole int

const (
	connRoleClient connRole = iota
	connRoleServer
)

// connPhase is this engine's coarser phase gate, derived from where kex
// and auth have gotten to; §4.7 "rejecting any message whose category is
// incompatible with the current phase" is implemented against this.
type connPhase int

const (
	phaseKex connPhase = iota
	phaseAuth
	phaseSession
)

// ClientConfig carries a client connection's algorithm preferences and
// identification string, generalized from the teacher's ClientConfig
// (trimmed of the HostKeyCallback/Auth callback fields now covered by
// ClientBehaviour, see behaviour.go).
type ClientConfig struct {
	Crypto  CryptoConfig
	Version string // defaults to ourVersion if empty
	// Logger receives diagnostic events (kex completion, auth outcomes,
	// channel lifecycle, disconnects). Nil disables logging entirely.
	Logger Logger
	// Metrics receives counters about the connection's lifecycle. Nil
	// disables metrics entirely.
	Metrics Metrics
}

// ServerConfig is ClientConfig's server-side counterpart.
type ServerConfig struct {
	Crypto  CryptoConfig
	Version string
	Logger  Logger
	Metrics Metrics
}

// Conn is one SSH-2 connection: the key-exchange/auth/channel state
// described across §4.4-§4.7, driven entirely by session.go feeding it
// bytes and draining its outbound queue. Conn itself never touches a
// network connection.
type Conn struct {
	role  connRole
	phase connPhase

	cryptoCfg *CryptoConfig

	clientBehaviour ClientBehaviour
	serverBehaviour ServerBehaviour

	hostKeys []ed25519.PrivateKey // server role only

	k *kex

	authClient *authClient
	authServer *authServer

	channels *channelTable

	peerExtensions map[string][]byte // from a received ExtInfo, e.g. server-sig-algs

	rekeyRequested bool

	disconnected bool

	log     Logger
	metrics Metrics
}

// NewClientConn constructs a client-role Conn. cfg may be nil for
// defaults.
func NewClientConn(behaviour ClientBehaviour, cfg *ClientConfig) *Conn {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	log := cfg.Logger
	if log == nil {
		log = discardLogger
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = discardMetrics
	}
	return &Conn{
		role:            connRoleClient,
		phase:           phaseKex,
		cryptoCfg:       &cfg.Crypto,
		clientBehaviour: behaviour,
		authClient:      newAuthClient(behaviour),
		channels:        newChannelTable(),
		log:             log,
		metrics:         metrics,
	}
}

// NewServerConn constructs a server-role Conn.
func NewServerConn(behaviour ServerBehaviour, cfg *ServerConfig) *Conn {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	log := cfg.Logger
	if log == nil {
		log = discardLogger
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = discardMetrics
	}
	return &Conn{
		role:            connRoleServer,
		phase:           phaseKex,
		cryptoCfg:       &cfg.Crypto,
		serverBehaviour: behaviour,
		hostKeys:        behaviour.HostKeys(),
		authServer:      newAuthServer(behaviour),
		channels:        newChannelTable(),
		log:             log,
		metrics:         metrics,
	}
}

// RequestRekey records that the host asked for a rekey (§9 Open Question,
// resolved: the driver never initiates one automatically). It does not
// start an exchange itself; Session.Rekey calls it and then
// startKexIfNeeded.
func (c *Conn) RequestRekey() {
	c.rekeyRequested = true
}

func (c *Conn) kexRole() kexRole {
	if c.role == connRoleClient {
		return kexRoleClient
	}
	return kexRoleServer
}

func (c *Conn) hostKeyAlgos() []string {
	return defaultHostKeyAlgos
}

// startKexIfNeeded begins a new key exchange whenever none is in flight,
// returning the KexInit payload to send, or nil if an exchange is already
// in progress. It does not consult rekeyRequested.
func (c *Conn) startKexIfNeeded() ([]byte, error) {
	if c.k != nil {
		return nil, nil
	}
	existingSessionID := []byte(nil)
	c.k = newKex(c.kexRole(), existingSessionID)
	return c.k.startKexInit(c.cryptoCfg, c.hostKeyAlgos())
}

// kexCipherPair is the pair of cipherSuite instances a finished key exchange
// produces; session.go installs c2s/s2c into its transportCiphers according
// to its own role (client sends c2s/receives s2c, server the reverse).
type kexCipherPair struct {
	c2s, s2c cipherSuite
}

// handle dispatches one decoded inbound message, enforcing §4.7's category/
// phase admissibility and returning zero or more outbound payloads
// (already encodeMessage'd) to send in order, plus a non-nil newCiphers
// exactly when this message completed a key exchange (session.go must
// install them into its transportCiphers before sending or decrypting
// anything further).
func (c *Conn) handle(m message, sign func(key *AuthKey, msg []byte) ([]byte, error), clientVersion, serverVersion []byte) (outs [][]byte, newCiphers *kexCipherPair, err error) {
	if c.disconnected {
		return nil, nil, protoErrorf("message received after disconnect")
	}
	cat := categoryOf(m.messageNumber())
	if err := c.checkAdmissible(cat); err != nil {
		return nil, nil, err
	}

	switch msg := m.(type) {
	case *disconnectMsg:
		c.disconnected = true
		reason := protoErrorf("peer disconnected: %s", safeString(msg.Message))
		c.log.Info("peer disconnected", "reason", msg.Reason, "message", safeString(msg.Message))
		c.notifyDisconnected(reason)
		return nil, nil, nil
	case *ignoreMsg:
		return nil, nil, nil
	case *debugMsg:
		return nil, nil, nil
	case *unimplementedMsg:
		return nil, nil, nil
	case *extInfoMsg:
		c.peerExtensions = make(map[string][]byte, len(msg.Names))
		for i, n := range msg.Names {
			c.peerExtensions[n] = msg.Values[i]
		}
		return nil, nil, nil
	case *serviceRequestMsg:
		return [][]byte{encodeMessage(&serviceAcceptMsg{Service: msg.Service}, nil)}, nil, nil
	case *serviceAcceptMsg:
		if c.role == connRoleClient && msg.Service == serviceUserAuth && c.authClient.state == authClientUnstarted {
			return [][]byte{c.authClient.start()}, nil, nil
		}
		return nil, nil, nil

	case *kexInitMsg:
		out, err := c.handleKexInit(msg)
		return out, nil, err
	case *kexECDHInitMsg:
		out, err := c.handleKexECDHInit(msg, serverVersion, clientVersion)
		return out, nil, err
	case *kexECDHReplyMsg:
		out, err := c.handleKexECDHReply(msg, clientVersion, serverVersion)
		return out, nil, err
	case *newKeysMsg:
		return c.handleNewKeys()

	case *userAuthFailureMsg:
		out, err := c.handleAuthFailure(msg)
		return out, nil, err
	case *userAuthSuccessMsg:
		out, err := c.handleAuthSuccess()
		return out, nil, err
	case *userauth60Msg:
		out, err := c.handleAuth60(msg, sign)
		return out, nil, err
	case *userAuthRequestMsg:
		out, err := c.handleAuthRequest(msg)
		return out, nil, err
	case *userAuthBannerMsg:
		if c.clientBehaviour != nil {
			c.clientBehaviour.ShowBanner(safeString(msg.Message), msg.Language)
		}
		return nil, nil, nil

	case *globalRequestMsg:
		if msg.WantReply {
			return [][]byte{encodeMessage(&requestFailureMsg{}, nil)}, nil, nil
		}
		return nil, nil, nil
	case *requestSuccessMsg, *requestFailureMsg:
		return nil, nil, nil

	case *channelOpenMsg:
		out, err := c.handleChannelOpen(msg)
		return out, nil, err
	case *channelOpenConfirmMsg:
		out, err := c.handleChannelOpenConfirm(msg)
		return out, nil, err
	case *channelOpenFailureMsg:
		out, err := c.handleChannelOpenFailure(msg)
		return out, nil, err
	case *channelWindowAdjustMsg:
		out, err := c.handleChannelWindowAdjust(msg)
		return out, nil, err
	case *channelDataMsg:
		out, err := c.handleChannelData(msg)
		return out, nil, err
	case *channelExtendedDataMsg:
		out, err := c.handleChannelExtendedData(msg)
		return out, nil, err
	case *channelEOFMsg:
		out, err := c.handleChannelEOF(msg)
		return out, nil, err
	case *channelCloseMsg:
		out, err := c.handleChannelClose(msg)
		return out, nil, err
	case *channelRequestMsg:
		out, err := c.handleChannelRequest(msg)
		return out, nil, err
	case *channelSuccessMsg, *channelFailureMsg:
		out, err := c.handleChannelRequestReply(m)
		return out, nil, err
	default:
		return nil, nil, bug("unhandled message type %T reached conn.handle", m)
	}
}

// checkAdmissible implements §4.7's phase gate: Sess-category messages
// before authentication are rejected; Kex-category messages are always
// admissible (a rekey may start mid-session), Auth-category only once a
// service request has selected ssh-userauth (approximated here as "not
// before kex completes"). Per §3, once a rekey is in flight (c.k != nil,
// tracked from the KexInit that starts it until handleNewKeys clears it)
// only Kex- and All-category packets may cross the wire, regardless of
// c.phase — a connection already in phaseSession must still reject
// Sess/Auth traffic for the duration of a rekey.
func (c *Conn) checkAdmissible(cat category) error {
	switch cat {
	case catSess:
		if c.phase != phaseSession {
			return protoErrorf("session-phase message received before authentication completed")
		}
		if c.k != nil {
			return protoErrorf("session-phase message received during an in-flight key re-exchange")
		}
	case catAuth:
		if c.phase == phaseKex {
			return protoErrorf("authentication message received before key exchange completed")
		}
		if c.k != nil && c.phase != phaseKex {
			return protoErrorf("authentication message received during an in-flight key re-exchange")
		}
	}
	return nil
}

func (c *Conn) notifyDisconnected(reason error) {
	if c.clientBehaviour != nil {
		c.clientBehaviour.Disconnected(reason)
	}
	if c.serverBehaviour != nil {
		c.serverBehaviour.Disconnected(reason)
	}
}
