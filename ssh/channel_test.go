// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestChannelOpenConfirmTransitionsToOpen(t *testing.T) {
	table := newChannelTable()
	c, raw := openChannel(table, &sessionOpenBody{}, defaultChannelWindow, defaultMaxPacketSize)
	if raw == nil {
		t.Fatal("openChannel should produce a ChannelOpen payload")
	}
	if c.state != channelOpening {
		t.Fatalf("state = %v, want channelOpening", c.state)
	}
	if err := c.completeOpenConfirm(&channelOpenConfirmMsg{SenderChannel: 9, InitialWindow: 1000, MaxPacketSize: 512}); err != nil {
		t.Fatalf("completeOpenConfirm: %v", err)
	}
	if c.state != channelOpen || c.remoteID != 9 || c.sendWindow != 1000 {
		t.Fatalf("unexpected channel state after confirm: %+v", c)
	}
}

func TestChannelOpenFailureFreesID(t *testing.T) {
	table := newChannelTable()
	c, _ := openChannel(table, &sessionOpenBody{}, defaultChannelWindow, defaultMaxPacketSize)
	reason, msg, err := c.completeOpenFailure(&channelOpenFailureMsg{Reason: 2, Message: "nope"})
	if err != nil {
		t.Fatalf("completeOpenFailure: %v", err)
	}
	if reason != 2 || msg != "nope" {
		t.Fatalf("got reason=%d msg=%q", reason, msg)
	}
	if c.state != channelClosed {
		t.Fatalf("state = %v, want channelClosed", c.state)
	}
	table.free(c.localID)
	if _, ok := table.get(c.localID); ok {
		t.Fatal("expected the channel to be freed from the table")
	}
}

func openAndConfirm(t *testing.T, window, maxPacketSize uint32) (*channelTable, *channel) {
	t.Helper()
	table := newChannelTable()
	c, _ := openChannel(table, &sessionOpenBody{}, window, maxPacketSize)
	if err := c.completeOpenConfirm(&channelOpenConfirmMsg{SenderChannel: 1, InitialWindow: window, MaxPacketSize: maxPacketSize}); err != nil {
		t.Fatalf("completeOpenConfirm: %v", err)
	}
	return table, c
}

func TestSendDataRespectsWindowAndSignalsWouldBlock(t *testing.T) {
	_, c := openAndConfirm(t, 10, defaultMaxPacketSize)
	if _, err := c.sendData(0, make([]byte, 5)); err != nil {
		t.Fatalf("sendData(5 of 10): %v", err)
	}
	if c.sendWindow != 5 {
		t.Fatalf("sendWindow = %d, want 5", c.sendWindow)
	}
	if _, err := c.sendData(0, make([]byte, 6)); err != errWouldBlock {
		t.Fatalf("sendData(6 of 5) = %v, want errWouldBlock", err)
	}
	c.receiveWindowAdjust(&channelWindowAdjustMsg{BytesToAdd: 20})
	if c.sendWindow != 25 {
		t.Fatalf("sendWindow after adjust = %d, want 25", c.sendWindow)
	}
	if _, err := c.sendData(0, make([]byte, 6)); err != nil {
		t.Fatalf("sendData should now fit: %v", err)
	}
}

func TestReceiveDataRejectsOverWindowAndWindowAdjustRefillsAtHalfThreshold(t *testing.T) {
	_, c := openAndConfirm(t, 100, defaultMaxPacketSize)
	if err := c.receiveData(0, make([]byte, 101)); err == nil {
		t.Fatal("expected data exceeding the advertised receive window to be rejected")
	}
	if err := c.receiveData(0, make([]byte, 40)); err != nil {
		t.Fatalf("receiveData: %v", err)
	}
	c.consume()
	if raw := c.maybeWindowAdjust(); raw != nil {
		t.Fatal("expected no window adjust below the half-window threshold (40 of 100)")
	}
	if err := c.receiveData(0, make([]byte, 20)); err != nil {
		t.Fatalf("receiveData: %v", err)
	}
	c.consume()
	raw := c.maybeWindowAdjust()
	if raw == nil {
		t.Fatal("expected a window adjust once consumption reaches the half-window threshold")
	}
	if c.recvWindowConsumed != 0 {
		t.Fatalf("recvWindowConsumed should reset after an adjust, got %d", c.recvWindowConsumed)
	}
}

func TestConsumeDrainsInboxInOrder(t *testing.T) {
	_, c := openAndConfirm(t, 100, defaultMaxPacketSize)
	if err := c.receiveData(0, []byte("first")); err != nil {
		t.Fatalf("receiveData: %v", err)
	}
	if err := c.receiveData(1, []byte("stderr")); err != nil {
		t.Fatalf("receiveData: %v", err)
	}
	ext, data, ok := c.consume()
	if !ok || ext != 0 || string(data) != "first" {
		t.Fatalf("first consume = %d %q %v", ext, data, ok)
	}
	ext2, data2, ok2 := c.consume()
	if !ok2 || ext2 != 1 || string(data2) != "stderr" {
		t.Fatalf("second consume = %d %q %v", ext2, data2, ok2)
	}
	if _, _, ok3 := c.consume(); ok3 {
		t.Fatal("expected consume to report ok=false once the inbox is empty")
	}
}

func TestRequestReplyFIFOOrdering(t *testing.T) {
	_, c := openAndConfirm(t, 100, defaultMaxPacketSize)
	c.request("shell", true, nil)
	c.request("exec", true, []byte("cmd"))
	c.request("pty-req", false, nil) // want_reply=false, not enqueued

	kind, ok, err := c.completeRequest(true)
	if err != nil || kind != "shell" || !ok {
		t.Fatalf("first completeRequest = %q, %v, %v, want shell, true", kind, ok, err)
	}
	kind2, ok2, err := c.completeRequest(false)
	if err != nil || kind2 != "exec" || ok2 {
		t.Fatalf("second completeRequest = %q, %v, %v, want exec, false", kind2, ok2, err)
	}
	if _, _, err := c.completeRequest(true); err == nil {
		t.Fatal("expected an error once the FIFO is empty (pty-req never enqueued)")
	}

	gotKind, gotOK, ok := c.consumeCompletedRequest()
	if !ok || gotKind != "shell" || !gotOK {
		t.Fatalf("first consumeCompletedRequest = %q, %v, %v, want shell, true", gotKind, gotOK, ok)
	}
	gotKind2, gotOK2, ok := c.consumeCompletedRequest()
	if !ok || gotKind2 != "exec" || gotOK2 {
		t.Fatalf("second consumeCompletedRequest = %q, %v, %v, want exec, false", gotKind2, gotOK2, ok)
	}
	if _, _, ok := c.consumeCompletedRequest(); ok {
		t.Fatal("expected consumeCompletedRequest to report ok=false once the queue is empty")
	}
}

func TestHalfCloseSequencing(t *testing.T) {
	_, c := openAndConfirm(t, 100, defaultMaxPacketSize)
	if _, err := c.sendEOF(); err != nil {
		t.Fatalf("sendEOF: %v", err)
	}
	if c.state != channelOpen {
		t.Fatalf("state after only local EOF = %v, want channelOpen (peer hasn't EOF'd)", c.state)
	}
	c.receiveEOF()
	if c.state != channelClosing {
		t.Fatalf("state after both EOFs = %v, want channelClosing", c.state)
	}
	if _, err := c.sendEOF(); err == nil {
		t.Fatal("expected a second sendEOF to be rejected")
	}

	if _, err := c.sendClose(); err != nil {
		t.Fatalf("sendClose: %v", err)
	}
	if freeNow := c.receiveClose(); !freeNow {
		t.Fatal("expected receiveClose to report freeNow once both sides have closed")
	}
	if c.state != channelClosed {
		t.Fatalf("state = %v, want channelClosed", c.state)
	}
}

func TestSendCloseBeforeEOFRejected(t *testing.T) {
	_, c := openAndConfirm(t, 100, defaultMaxPacketSize)
	if _, err := c.sendClose(); err == nil {
		t.Fatal("expected sendClose before sendEOF to be rejected")
	}
}

func TestReceiveCloseBeforeLocalCloseDoesNotFreeYet(t *testing.T) {
	_, c := openAndConfirm(t, 100, defaultMaxPacketSize)
	if _, err := c.sendEOF(); err != nil {
		t.Fatalf("sendEOF: %v", err)
	}
	if freeNow := c.receiveClose(); freeNow {
		t.Fatal("expected receiveClose to wait for our own close before freeing")
	}
	if _, err := c.sendClose(); err != nil {
		t.Fatalf("sendClose: %v", err)
	}
	if c.state != channelClosed {
		t.Fatalf("state = %v, want channelClosed once we've also closed", c.state)
	}
}
