// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

// TestCheckAdmissibleRejectsSessTrafficDuringRekey covers §3's invariant
// that once a rekey is in flight, only Kex- and All-category packets may
// cross the wire — a connection already in phaseSession must still refuse
// Sess-category messages for the duration of the re-exchange, and accept
// them again once it completes.
func TestCheckAdmissibleRejectsSessTrafficDuringRekey(t *testing.T) {
	client, server, _ := newHandshakePair(t)
	pumpUntilQuiet(t, client, server)

	clientConn := client.Conn()
	if clientConn.phase != phaseSession {
		t.Fatalf("client phase = %v, want phaseSession before rekey", clientConn.phase)
	}
	if err := clientConn.checkAdmissible(catSess); err != nil {
		t.Fatalf("checkAdmissible(catSess) before rekey: %v", err)
	}

	if err := client.Rekey(); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	if clientConn.k == nil {
		t.Fatal("expected Rekey to leave a kex in flight (conn.k != nil)")
	}
	if clientConn.phase != phaseSession {
		t.Fatalf("client phase = %v, want phaseSession to remain unchanged mid-rekey", clientConn.phase)
	}
	if err := clientConn.checkAdmissible(catSess); err == nil {
		t.Fatal("expected a Sess-category message to be rejected while a rekey is in flight")
	}
	if err := clientConn.checkAdmissible(catKex); err != nil {
		t.Fatalf("checkAdmissible(catKex) mid-rekey: %v", err)
	}

	pumpUntilQuiet(t, client, server)

	if clientConn.k != nil {
		t.Fatal("expected the rekey to have completed (conn.k == nil) once the pump settled")
	}
	if err := clientConn.checkAdmissible(catSess); err != nil {
		t.Fatalf("checkAdmissible(catSess) after rekey completed: %v", err)
	}
}
