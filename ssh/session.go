// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// This file implements §5/§9: the cooperative duplex driver that owns
// every buffer the engine touches and exposes exactly the suspension
// points §5 names — FeedInput/DrainOutput report "no progress possible"
// by simply returning without consuming or producing anything, rather
// than blocking, so a host can drive the engine from any I/O model
// (goroutine-per-connection, a poller, an async runtime via cgo, ...).
// There is no teacher equivalent: massiveart-go.crypto's `client.go`
// blocks directly on a `net.Conn` inside `mainLoop`, which this
// synchronous model can't reuse, so the accumulate-then-decide shape
// here is original, assembled from framing.go/ident.go's own two-phase
// peek/consume primitives (themselves grounded per their own files).

// Waker is a suspension-point callback (§5: "the engine records a wake
// token ... invoked when transitions make the other direction newly
// ready"). Either may be nil, in which case the corresponding
// readiness transition is simply not announced and the host must poll.
type Waker func()

// Session drives one Conn's wire-level input/output. It owns the
// identification-exchange scanner, both directions' transportCipher, and
// the raw byte buffers between "bytes arrived" and "packet dispatched".
type Session struct {
	conn *Conn

	recvTC *transportCipher
	sendTC *transportCipher

	ident         identScanner
	peerIdentDone bool

	ourVersionLine  []byte // CRLF-terminated, as sent on the wire
	ourVersionPlain []byte // without CRLF, as fed into the exchange hash
	peerVersionLine []byte // without CRLF (identScanner.line() already strips it)

	recvBuf []byte
	outbox  [][]byte

	readWaker, writeWaker Waker

	signer func(key *AuthKey, msg []byte) ([]byte, error)

	fatal error
}

func newSession(conn *Conn, version string) (*Session, error) {
	plain := version
	if plain == "" {
		plain = ourVersion
	}
	s := &Session{
		conn:            conn,
		recvTC:          newTransportCipher(),
		sendTC:          newTransportCipher(),
		ourVersionPlain: []byte(plain),
		ourVersionLine:  encodeIdentLine(version),
		signer:          defaultAuthKeySigner,
	}
	s.enqueueRaw(s.ourVersionLine)
	kexInit, err := conn.startKexIfNeeded()
	if err != nil {
		return nil, err
	}
	if err := s.enqueuePacket(kexInit); err != nil {
		return nil, err
	}
	return s, nil
}

// defaultAuthKeySigner adapts an AuthKey's own Sign callback to the
// signature conn.go's dispatch expects, so behaviour.go's AuthKey remains
// the single place a host wires up local or agent-backed signing (spec §3
// "Supplemented features": agent_sign is a property of NextAuthKey's
// returned AuthKey, not a second signer seam here).
func defaultAuthKeySigner(key *AuthKey, msg []byte) ([]byte, error) {
	return key.Sign(msg)
}

// NewClientSession constructs a Session driving a client-role connection.
func NewClientSession(behaviour ClientBehaviour, cfg *ClientConfig) (*Session, error) {
	conn := NewClientConn(behaviour, cfg)
	version := ""
	if cfg != nil {
		version = cfg.Version
	}
	return newSession(conn, version)
}

// NewServerSession constructs a Session driving a server-role connection.
func NewServerSession(behaviour ServerBehaviour, cfg *ServerConfig) (*Session, error) {
	conn := NewServerConn(behaviour, cfg)
	version := ""
	if cfg != nil {
		version = cfg.Version
	}
	return newSession(conn, version)
}

// SetReadWaker/SetWriteWaker register the suspension-point callbacks of §5.
func (s *Session) SetReadWaker(w Waker)  { s.readWaker = w }
func (s *Session) SetWriteWaker(w Waker) { s.writeWaker = w }

func (s *Session) notifyRead() {
	if s.readWaker != nil {
		s.readWaker()
	}
}

func (s *Session) notifyWrite() {
	if s.writeWaker != nil {
		s.writeWaker()
	}
}

func (s *Session) fail(err error) error {
	if s.fatal == nil {
		s.fatal = err
		if _, ok := err.(*Error); ok {
			// Best effort: try to tell the peer before refusing further
			// input (§7 "the engine emits a Disconnect packet if
			// possible"). A failure here is not itself surfaced — the
			// connection is already being torn down.
			reason := DisconnectProtocolError
			if e, ok := err.(*Error); ok && e.Kind == KindCrypto {
				reason = DisconnectKeyExchangeFailed
			}
			disc := encodeMessage(&disconnectMsg{Reason: reason, Message: safeString(err.Error())}, nil)
			if framed, sealErr := sealPacket(s.sendTC, disc); sealErr == nil {
				s.outbox = append(s.outbox, framed)
				s.notifyWrite()
			}
		}
	}
	return err
}

func (s *Session) enqueueRaw(b []byte) {
	if len(b) == 0 {
		return
	}
	s.outbox = append(s.outbox, b)
	s.notifyWrite()
}

func (s *Session) enqueuePacket(payload []byte) error {
	if payload == nil {
		return nil
	}
	framed, err := sealPacket(s.sendTC, payload)
	if err != nil {
		return s.fail(err)
	}
	s.conn.metrics.BytesOut(len(payload))
	s.outbox = append(s.outbox, framed)
	s.notifyWrite()
	return nil
}

func (s *Session) enqueuePackets(payloads [][]byte) error {
	for _, p := range payloads {
		if err := s.enqueuePacket(p); err != nil {
			return err
		}
	}
	return nil
}

// FeedInput is suspension point 1 of §5: deliver newly arrived bytes. It
// always consumes all of data (buffering whatever isn't yet a complete
// ident line or packet) and returns nil unless a fatal protocol/crypto
// error was found, in which case the connection is now unusable and every
// subsequent call returns the same error.
func (s *Session) FeedInput(data []byte) error {
	if s.fatal != nil {
		return s.fatal
	}
	if !s.peerIdentDone {
		consumed, done, err := s.ident.feed(data)
		if err != nil {
			return s.fail(err)
		}
		if !done {
			return nil
		}
		s.peerIdentDone = true
		s.peerVersionLine = append([]byte(nil), s.ident.line()...)
		if err := validateVersion(s.peerVersionLine); err != nil {
			return s.fail(err)
		}
		data = data[consumed:]
		s.notifyRead()
	}
	s.recvBuf = append(s.recvBuf, data...)
	return s.pump()
}

// pump processes as many complete packets as recvBuf currently holds,
// stopping (without error) the moment packetSizer reports more bytes are
// needed — suspension point 1 again, now at the binary-packet layer.
func (s *Session) pump() error {
	for {
		needMore, err := packetSizer(s.recvTC, s.recvBuf)
		if err != nil {
			return s.fail(err)
		}
		if needMore > 0 {
			return nil
		}
		payload, consumed, err := openPacket(s.recvTC, s.recvBuf)
		if err != nil {
			return s.fail(err)
		}
		s.recvBuf = s.recvBuf[consumed:]
		s.conn.metrics.BytesIn(len(payload))
		if err := s.dispatch(payload); err != nil {
			return s.fail(err)
		}
		s.notifyRead()
	}
}

// dispatch decodes one packet payload and feeds it to the Conn, installing
// any newly finished key-exchange ciphers and queuing every outbound
// payload the Conn produced.
func (s *Session) dispatch(payload []byte) error {
	ctx := &wireContext{}
	if s.conn.role == connRoleClient && s.conn.authClient != nil {
		ctx.authHint = s.conn.authClient.pendingHint()
	}
	msg, err := decodeMessage(payload, ctx)
	if err != nil {
		if ue, ok := err.(*unimplementedError); ok {
			_ = ue
			// The sequence number of the offending packet: openPacket has
			// already advanced s.recvTC.seqNum past it.
			seq := s.recvTC.seqNum - 1
			return s.enqueuePacket(encodeMessage(&unimplementedMsg{Seq: seq}, nil))
		}
		return err
	}

	clientVersion, serverVersion := s.ourVersionPlain, s.peerVersionLine
	if s.conn.role == connRoleServer {
		clientVersion, serverVersion = s.peerVersionLine, s.ourVersionPlain
	}

	outs, newCiphers, err := s.conn.handle(msg, s.signer, clientVersion, serverVersion)
	if err != nil {
		return err
	}
	if newCiphers != nil {
		s.installCiphers(newCiphers)
	}
	return s.enqueuePackets(outs)
}

// installCiphers wires a finished key exchange's two cipherSuites into the
// correct direction for this session's role (§4.4: c2s is what the client
// sends and the server receives, s2c the reverse).
func (s *Session) installCiphers(pair *kexCipherPair) {
	if s.conn.role == connRoleClient {
		s.sendTC.suite = pair.c2s
		s.recvTC.suite = pair.s2c
		return
	}
	s.recvTC.suite = pair.c2s
	s.sendTC.suite = pair.s2c
}

// DrainOutput is suspension point 2 of §5: pop the next pending outbound
// chunk, or report none ready yet.
func (s *Session) DrainOutput() (chunk []byte, ok bool) {
	if len(s.outbox) == 0 {
		return nil, false
	}
	chunk, s.outbox = s.outbox[0], s.outbox[1:]
	return chunk, true
}

// OutputPending reports whether DrainOutput would currently return data,
// without consuming it.
func (s *Session) OutputPending() bool { return len(s.outbox) > 0 }

// Err reports the fatal error that ended the connection, if any.
func (s *Session) Err() error { return s.fatal }

// Conn exposes the underlying connection state for operations that aren't
// themselves wire-level (opening channels, sending data, requesting a
// rekey): those mutate Conn/channelTable state and return an encoded
// payload this Session must still enqueue via Enqueue.
func (s *Session) Conn() *Conn { return s.conn }

// Enqueue queues an already-encoded outbound payload (as produced by
// channel.go's open/request/sendData/... helpers) for framing and send.
func (s *Session) Enqueue(payload []byte) error {
	if s.fatal != nil {
		return s.fatal
	}
	return s.enqueuePacket(payload)
}

// Rekey starts a new key exchange and enqueues its KexInit if none is in
// progress. If one is already in progress it does nothing further, and no
// second exchange follows the one in flight.
func (s *Session) Rekey() error {
	if s.fatal != nil {
		return s.fatal
	}
	s.conn.RequestRekey()
	kexInit, err := s.conn.startKexIfNeeded()
	if err != nil {
		return s.fail(err)
	}
	return s.enqueuePacket(kexInit)
}
