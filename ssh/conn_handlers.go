// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "crypto/ed25519"

// This file holds Conn's per-message-type transition functions, split out
// of conn.go's dispatch table for readability. Each one is a thin adapter
// from the decoded wire message to the relevant sub-engine (kex.go,
// auth_client.go/auth_server.go, channel.go), folding the sub-engine's
// result back into Conn's own phase bookkeeping.

// handleKexInit implements the peer-initiated half of §4.4: a KexInit may
// arrive either as the peer's response to our own (rekey we started) or as
// the peer spontaneously starting a rekey, in which case we must answer
// with our own KexInit before negotiating.
func (c *Conn) handleKexInit(msg *kexInitMsg) ([][]byte, error) {
	raw := encodeMessage(msg, nil)
	var out [][]byte
	if c.k == nil {
		ourInit, err := c.startKexIfNeeded()
		if err != nil {
			return nil, err
		}
		out = append(out, ourInit)
	}
	dhInit, err := c.k.receivePeerKexInit(raw, msg)
	if err != nil {
		return nil, err
	}
	if dhInit != nil {
		out = append(out, dhInit)
	}
	return out, nil
}

func (c *Conn) handleKexECDHInit(msg *kexECDHInitMsg, serverVersion, clientVersion []byte) ([][]byte, error) {
	if c.role != connRoleServer || c.k == nil {
		return nil, protoErrorf("KexDHInit received in client role or with no exchange in progress")
	}
	if c.k.shouldDiscardNextKexDH() {
		return nil, nil
	}
	if len(c.hostKeys) == 0 {
		return nil, behaviourErrorf("no host key configured to answer key exchange")
	}
	hostKey := c.hostKeys[0]
	hostPub, _ := hostKey.Public().(ed25519.PublicKey)
	reply, newKeys, err := c.k.serverHandleKexDHInit(msg, hostPub, hostKey, clientVersion, serverVersion)
	if err != nil {
		return nil, err
	}
	return [][]byte{reply, newKeys}, nil
}

func (c *Conn) handleKexECDHReply(msg *kexECDHReplyMsg, clientVersion, serverVersion []byte) ([][]byte, error) {
	if c.role != connRoleClient || c.k == nil {
		return nil, protoErrorf("KexDHReply received in server role or with no exchange in progress")
	}
	if c.k.shouldDiscardNextKexDH() {
		return nil, nil
	}
	newKeys, hostKeyBlob, err := c.k.clientHandleKexDHReply(msg, clientVersion, serverVersion)
	if err != nil {
		return nil, err
	}
	hostPub, err := ParseEd25519PublicKeyBlob(hostKeyBlob)
	if err != nil {
		return nil, err
	}
	if !c.clientBehaviour.ValidHostKey(hostPub) {
		return nil, behaviourErrorf("host key rejected")
	}
	return [][]byte{newKeys}, nil
}

// handleNewKeys implements §4.4's `NewKeys + peer NewKeys → install keys →
// Idle` transition. A NewKeys arriving before this side has sent its own
// (state != kexNewKeysSent) is a protocol error: both KexDHReply/KexDHInit
// handling always sends NewKeys in the same reply as the one that reaches
// kexNewKeysSent, so the peer's NewKeys can only legitimately arrive after.
// On success this derives and returns the two cipherSuites session.go must
// install into its transportCiphers before anything else is sent or
// decrypted, and for a first-ever exchange kicks off the ssh-userauth
// service request (client) or simply waits for one (server).
func (c *Conn) handleNewKeys() ([][]byte, *kexCipherPair, error) {
	if c.k == nil || c.k.state != kexNewKeysSent {
		return nil, nil, protoErrorf("NewKeys received before this side's own NewKeys was sent")
	}
	c2s, s2c, err := c.k.finishNewKeys()
	if err != nil {
		return nil, nil, err
	}
	firstExchange := c.phase == phaseKex
	c.k = nil
	pair := &kexCipherPair{c2s: c2s, s2c: s2c}
	c.log.Info("key exchange complete", "rekey", !firstExchange)
	c.metrics.RekeyCompleted(!firstExchange)
	if !firstExchange {
		return nil, pair, nil
	}
	c.phase = phaseAuth
	if c.role == connRoleClient {
		return [][]byte{encodeMessage(&serviceRequestMsg{Service: serviceUserAuth}, nil)}, pair, nil
	}
	return nil, pair, nil
}

func (c *Conn) handleAuthFailure(msg *userAuthFailureMsg) ([][]byte, error) {
	if c.role != connRoleClient {
		return nil, protoErrorf("UserauthFailure received in server role")
	}
	c.metrics.AuthOutcome(c.authClient.pendingHint().String(), false)
	next, done, err := c.authClient.handleFailure(msg)
	if err != nil {
		c.log.Warn("authentication failed", "err", err)
		return nil, err
	}
	if done {
		return nil, err
	}
	return [][]byte{next}, nil
}

func (c *Conn) handleAuthSuccess() ([][]byte, error) {
	if c.role != connRoleClient {
		return nil, protoErrorf("UserauthSuccess received in server role")
	}
	c.phase = phaseSession
	c.log.Info("authenticated")
	c.metrics.AuthOutcome(c.authClient.pendingHint().String(), true)
	return [][]byte{c.authClient.handleSuccess()}, nil
}

func (c *Conn) handleAuth60(msg *userauth60Msg, sign func(key *AuthKey, payload []byte) ([]byte, error)) ([][]byte, error) {
	if c.role != connRoleClient {
		return nil, protoErrorf("message 60 received in server role")
	}
	out, err := c.authClient.handle60(msg.Body, sign)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

func (c *Conn) handleAuthRequest(msg *userAuthRequestMsg) ([][]byte, error) {
	if c.role != connRoleServer {
		return nil, protoErrorf("UserauthRequest received in client role")
	}
	reply, err := c.authServer.handleRequest(msg)
	if err != nil {
		return nil, err
	}
	if c.authServer.authenticated() {
		c.phase = phaseSession
		c.log.Info("user authenticated", "user", msg.User, "method", msg.Method)
		c.metrics.AuthOutcome(msg.Method, true)
	} else {
		c.log.Debug("auth request", "user", msg.User, "method", msg.Method)
		if len(reply) > 0 && reply[0] == msgUserAuthFailure {
			c.metrics.AuthOutcome(msg.Method, false)
		}
	}
	return [][]byte{reply}, nil
}

func (c *Conn) handleChannelOpen(msg *channelOpenMsg) ([][]byte, error) {
	if c.role != connRoleServer {
		return c.refuseChannelOpen(msg, "channel open requests are only accepted in the server role")
	}
	switch body := msg.Body.(type) {
	case *sessionOpenBody:
		_ = body
		if !c.serverBehaviour.OpenSession(msg.PeersID) {
			c.log.Info("channel open refused", "type", msg.Body.chanType())
			return c.refuseChannelOpenReason(msg, ReasonAdministrativelyProhibited, "session refused")
		}
	default:
		c.log.Warn("channel open refused", "type", msg.Body.chanType(), "reason", "unsupported channel type")
		return c.refuseChannelOpenReason(msg, ReasonUnknownChannelType, "unsupported channel type")
	}
	ch := c.channels.allocate(msg.Body.chanType(), defaultChannelWindow, defaultMaxPacketSize)
	ch.remoteID = msg.PeersID
	ch.sendWindow = msg.PeersWindow
	ch.state = channelOpen
	c.log.Info("channel opened", "type", msg.Body.chanType(), "localID", ch.localID)
	c.metrics.ChannelOpened(msg.Body.chanType())
	confirm := &channelOpenConfirmMsg{
		RecipientChannel: ch.remoteID,
		SenderChannel:    ch.localID,
		InitialWindow:    defaultChannelWindow,
		MaxPacketSize:    defaultMaxPacketSize,
	}
	return [][]byte{encodeMessage(confirm, nil)}, nil
}

func (c *Conn) refuseChannelOpen(msg *channelOpenMsg, reason string) ([][]byte, error) {
	return c.refuseChannelOpenReason(msg, ReasonAdministrativelyProhibited, reason)
}

func (c *Conn) refuseChannelOpenReason(msg *channelOpenMsg, code uint32, reason string) ([][]byte, error) {
	fail := &channelOpenFailureMsg{RecipientChannel: msg.PeersID, Reason: code, Message: reason, Language: "en"}
	return [][]byte{encodeMessage(fail, nil)}, nil
}

func (c *Conn) handleChannelOpenConfirm(msg *channelOpenConfirmMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelOpenConfirm for unknown channel %d", msg.RecipientChannel)
	}
	return nil, ch.completeOpenConfirm(msg)
}

func (c *Conn) handleChannelOpenFailure(msg *channelOpenFailureMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelOpenFailure for unknown channel %d", msg.RecipientChannel)
	}
	if _, _, err := ch.completeOpenFailure(msg); err != nil {
		return nil, err
	}
	c.channels.free(msg.RecipientChannel)
	return nil, nil
}

func (c *Conn) handleChannelWindowAdjust(msg *channelWindowAdjustMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelWindowAdjust for unknown channel %d", msg.RecipientChannel)
	}
	ch.receiveWindowAdjust(msg)
	return nil, nil
}

func (c *Conn) handleChannelData(msg *channelDataMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelData for unknown channel %d", msg.RecipientChannel)
	}
	return nil, ch.receiveData(0, msg.Data)
}

func (c *Conn) handleChannelExtendedData(msg *channelExtendedDataMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelExtendedData for unknown channel %d", msg.RecipientChannel)
	}
	return nil, ch.receiveData(msg.DataTypeCode, msg.Data)
}

func (c *Conn) handleChannelEOF(msg *channelEOFMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelEOF for unknown channel %d", msg.RecipientChannel)
	}
	ch.receiveEOF()
	return nil, nil
}

func (c *Conn) handleChannelClose(msg *channelCloseMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelClose for unknown channel %d", msg.RecipientChannel)
	}
	if freeNow := ch.receiveClose(); freeNow {
		c.channels.free(msg.RecipientChannel)
		c.log.Info("channel closed", "type", ch.openKind, "localID", ch.localID)
		c.metrics.ChannelClosed(ch.openKind)
		return nil, nil
	}
	out, err := ch.sendClose()
	if err != nil {
		// Peer closed before we sent EOF; answer with our own EOF+close.
		eof, eofErr := ch.sendEOF()
		if eofErr != nil {
			return nil, eofErr
		}
		out, err = ch.sendClose()
		if err != nil {
			return nil, err
		}
		c.channels.free(msg.RecipientChannel)
		c.log.Info("channel closed", "type", ch.openKind, "localID", ch.localID)
		c.metrics.ChannelClosed(ch.openKind)
		return [][]byte{eof, out}, nil
	}
	c.channels.free(msg.RecipientChannel)
	c.log.Info("channel closed", "type", ch.openKind, "localID", ch.localID)
	c.metrics.ChannelClosed(ch.openKind)
	return [][]byte{out}, nil
}

func (c *Conn) handleChannelRequest(msg *channelRequestMsg) ([][]byte, error) {
	ch, ok := c.channels.get(msg.RecipientChannel)
	if !ok {
		return nil, protoErrorf("ChannelRequest for unknown channel %d", msg.RecipientChannel)
	}
	if c.role != connRoleServer {
		if msg.WantReply {
			return [][]byte{encodeMessage(&channelFailureMsg{RecipientChannel: ch.remoteID}, nil)}, nil
		}
		return nil, nil
	}
	ok2 := c.dispatchSessionRequest(ch, msg)
	if !msg.WantReply {
		return nil, nil
	}
	if ok2 {
		return [][]byte{encodeMessage(&channelSuccessMsg{RecipientChannel: ch.remoteID}, nil)}, nil
	}
	return [][]byte{encodeMessage(&channelFailureMsg{RecipientChannel: ch.remoteID}, nil)}, nil
}

// dispatchSessionRequest implements the handful of "session" channel
// requests this engine recognises (shell/exec/pty-req), routed to
// ServerBehaviour. Unrecognized request types are refused, per RFC 4254
// §6.5's "servers SHOULD ignore unknown requests".
func (c *Conn) dispatchSessionRequest(ch *channel, msg *channelRequestMsg) bool {
	d := newDecoder(msg.Data)
	switch msg.RequestType {
	case "shell":
		return c.serverBehaviour.SessShell(ch.localID)
	case "exec":
		command, err := d.str()
		if err != nil {
			return false
		}
		return c.serverBehaviour.SessExec(ch.localID, string(command))
	case "pty-req":
		term, err := d.text()
		if err != nil {
			return false
		}
		width, err := d.uint32()
		if err != nil {
			return false
		}
		height, err := d.uint32()
		if err != nil {
			return false
		}
		return c.serverBehaviour.SessPTY(ch.localID, term, width, height)
	default:
		return false
	}
}

func (c *Conn) handleChannelRequestReply(m message) ([][]byte, error) {
	var recipientChannel uint32
	var success bool
	switch msg := m.(type) {
	case *channelSuccessMsg:
		recipientChannel, success = msg.RecipientChannel, true
	case *channelFailureMsg:
		recipientChannel, success = msg.RecipientChannel, false
	default:
		return nil, bug("handleChannelRequestReply called with non-reply message %T", m)
	}
	ch, ok := c.channels.get(recipientChannel)
	if !ok {
		return nil, protoErrorf("channel request reply for unknown channel %d", recipientChannel)
	}
	kind, ok, err := ch.completeRequest(success)
	if err != nil {
		return nil, err
	}
	c.log.Debug("channel request completed", "channel", recipientChannel, "kind", kind, "success", ok)
	return nil, nil
}
