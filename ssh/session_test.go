// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

// handshakeServerBehaviour is a minimal server side that accepts any
// authentication attempt and opens any requested session channel, enough
// to drive a full handshake end to end without exercising credential
// checking (auth_test.go already covers that directly against authServer).
type handshakeServerBehaviour struct {
	DefaultServerBehaviour
	hostKey ed25519.PrivateKey
}

func (h *handshakeServerBehaviour) HostKeys() []ed25519.PrivateKey { return []ed25519.PrivateKey{h.hostKey} }
func (h *handshakeServerBehaviour) AuthUnchallenged(string) bool   { return true }
func (h *handshakeServerBehaviour) OpenSession(uint32) bool        { return true }

// pumpUntilQuiet alternately drains each session's outbox and feeds it to
// the other, in small chunks to exercise FeedInput's suspension-point
// accumulation, until neither side has anything left to send — the wire
// equivalent of running both ends of a real connection until the
// handshake settles.
func pumpUntilQuiet(t *testing.T, a, b *Session) {
	t.Helper()
	const chunkSize = 3
	feed := func(dst *Session, data []byte) {
		for i := 0; i < len(data); i += chunkSize {
			end := i + chunkSize
			if end > len(data) {
				end = len(data)
			}
			if err := dst.FeedInput(data[i:end]); err != nil {
				t.Fatalf("FeedInput: %v", err)
			}
		}
	}
	for round := 0; round < 200; round++ {
		progressed := false
		for {
			chunk, ok := a.DrainOutput()
			if !ok {
				break
			}
			progressed = true
			feed(b, chunk)
		}
		for {
			chunk, ok := b.DrainOutput()
			if !ok {
				break
			}
			progressed = true
			feed(a, chunk)
		}
		if !progressed {
			return
		}
	}
	t.Fatal("pumpUntilQuiet: handshake did not settle within the iteration budget")
}

func newHandshakePair(t *testing.T) (client, server *Session, clientBeh *fakeClientBehaviour) {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	clientBeh = &fakeClientBehaviour{user: "alice"}
	serverBeh := &handshakeServerBehaviour{hostKey: hostPriv}

	client, err = NewClientSession(clientBeh, nil)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	server, err = NewServerSession(serverBeh, nil)
	if err != nil {
		t.Fatalf("NewServerSession: %v", err)
	}
	return client, server, clientBeh
}

func TestSessionHandshakeReachesAuthenticatedState(t *testing.T) {
	client, server, clientBeh := newHandshakePair(t)
	pumpUntilQuiet(t, client, server)

	if client.Err() != nil {
		t.Fatalf("client.Err() = %v", client.Err())
	}
	if server.Err() != nil {
		t.Fatalf("server.Err() = %v", server.Err())
	}
	if !clientBeh.authenticated {
		t.Fatal("expected the client behaviour to observe Authenticated()")
	}
	if client.Conn().phase != phaseSession {
		t.Fatalf("client phase = %v, want phaseSession", client.Conn().phase)
	}
	if server.Conn().phase != phaseSession {
		t.Fatalf("server phase = %v, want phaseSession", server.Conn().phase)
	}
}

func TestSessionChannelOpenAndDataRoundTrip(t *testing.T) {
	client, server, _ := newHandshakePair(t)
	pumpUntilQuiet(t, client, server)

	clientConn := client.Conn()
	ch, raw := openChannel(clientConn.channels, &sessionOpenBody{}, defaultChannelWindow, defaultMaxPacketSize)
	if err := client.Enqueue(raw); err != nil {
		t.Fatalf("Enqueue(ChannelOpen): %v", err)
	}
	pumpUntilQuiet(t, client, server)

	if ch.state != channelOpen {
		t.Fatalf("client channel state = %v, want channelOpen", ch.state)
	}
	serverCh, ok := server.Conn().channels.get(0)
	if !ok {
		t.Fatal("expected the server to have allocated channel 0")
	}
	if serverCh.state != channelOpen {
		t.Fatalf("server channel state = %v, want channelOpen", serverCh.state)
	}

	payload, err := ch.sendData(0, []byte("hello from client"))
	if err != nil {
		t.Fatalf("sendData: %v", err)
	}
	if err := client.Enqueue(payload); err != nil {
		t.Fatalf("Enqueue(ChannelData): %v", err)
	}
	pumpUntilQuiet(t, client, server)

	_, data, ok := serverCh.consume()
	if !ok {
		t.Fatal("expected the server channel's inbox to hold the sent data")
	}
	if string(data) != "hello from client" {
		t.Fatalf("got %q, want %q", data, "hello from client")
	}
}

func TestSessionFeedInputIsIdempotentAfterFatalError(t *testing.T) {
	client, _, _ := newHandshakePair(t)
	// Feed garbage that can never be a valid ident line or packet once the
	// accumulation cap is exceeded.
	garbage := make([]byte, maxIdentLineLen+10)
	for i := range garbage {
		garbage[i] = 'x'
	}
	err1 := client.FeedInput(garbage)
	if err1 == nil {
		t.Fatal("expected an oversized identification line to fail")
	}
	err2 := client.FeedInput([]byte("more data"))
	if err2 != err1 {
		t.Fatalf("expected FeedInput to keep returning the same fatal error, got %v then %v", err1, err2)
	}
}
