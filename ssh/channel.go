// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// This file implements §4.6: the channel multiplexer. The teacher's
// common.go carried a goroutine/`sync.Cond`-based `window` type that
// blocked a reader until credit arrived; the spec's cooperative engine has
// no blocking primitive, so channel state here is plain data a driver
// polls and mutates, with `send_data`/`recv_data` reporting "would block"
// instead of blocking. Request/reply FIFO ordering (§4.6 "Ordering") is
// kept exactly as the teacher modeled it conceptually, just without the
// channel-of-channels machinery.

// channelState is a channel's lifecycle, §4.6 "open(...)" through the
// final close.
type channelState int

const (
	channelOpening channelState = iota
	channelOpen
	channelClosing // EOF both sent and received
	channelClosed
)

// pendingRequest is one entry of the FIFO queue of §4.6 "Ordering":
// requests this side sent with want_reply=true, waiting for their
// Success/Failure in the order they were sent.
type pendingRequest struct {
	kind string
}

// channel is one multiplexed SSH channel, keyed by local (our) id in
// conn.go's channel table.
type channel struct {
	localID  uint32
	remoteID uint32

	state channelState

	maxPacketSize uint32

	// sendWindow is how many bytes we may still send before suspending;
	// recvWindow is how many bytes of credit we've told the peer it may
	// still send us.
	sendWindow uint32
	recvWindow uint32
	// recvWindowInitial is the configured initial window, used to decide
	// the half-window refill threshold (§4.6: "refill when consumed >=
	// half of initial window").
	recvWindowInitial uint32
	// recvWindowConsumed counts bytes delivered to the application since
	// the last window adjust was sent.
	recvWindowConsumed uint32

	// eofSent/eofRecv/closeSent/closeRecv track the half-close state
	// machine of §4.6 "Half-close".
	eofSent, eofRecv     bool
	closeSent, closeRecv bool

	// inbox holds received ChannelData/ChannelDataExt payloads not yet
	// consumed by the application, each tagged with its extended-data
	// code (0 for ordinary data).
	inbox []channelDataChunk

	// pendingRequests is the FIFO queue of outstanding want_reply
	// requests we've sent on this channel.
	pendingRequests []pendingRequest

	// completedRequests holds the outcome of each request reply matched by
	// completeRequest, not yet consumed by the application via
	// consumeCompletedRequest.
	completedRequests []completedRequest

	openKind string // "session", "direct-tcpip", ... recorded at open time
}

// completedRequest is one entry of the completedRequests queue: which
// request this completes and whether it succeeded.
type completedRequest struct {
	kind    string
	success bool
}

type channelDataChunk struct {
	extCode uint32 // 0 for ordinary ChannelData
	data    []byte
}

// channelTable owns every channel for one connection, keyed by local id.
// Ids are allocated sequentially and never reused while a channel with
// that id is still open, matching the teacher's chanList allocation
// discipline (kept conceptually, reimplemented without its mutex).
type channelTable struct {
	next     uint32
	channels map[uint32]*channel
}

func newChannelTable() *channelTable {
	return &channelTable{channels: make(map[uint32]*channel)}
}

func (t *channelTable) allocate(kind string, window, maxPacketSize uint32) *channel {
	id := t.next
	t.next++
	c := &channel{
		localID:           id,
		state:             channelOpening,
		recvWindow:        window,
		recvWindowInitial: window,
		maxPacketSize:     maxPacketSize,
		openKind:          kind,
	}
	t.channels[id] = c
	return c
}

func (t *channelTable) get(id uint32) (*channel, bool) {
	c, ok := t.channels[id]
	return c, ok
}

func (t *channelTable) free(id uint32) {
	delete(t.channels, id)
}

// defaultChannelWindow/defaultMaxPacketSize are this engine's chosen
// window and packet-size advertisements, generous enough for interactive
// sessions without needing host-side tuning.
const (
	defaultChannelWindow   = 1 << 20
	defaultMaxPacketSize   = 1 << 15
)

// openChannel implements §4.6 `open(kind, window, max_pkt)`: allocate a
// local id and return it plus the ChannelOpen payload to send. The
// channel starts in channelOpening; the caller completes it via
// completeOpenConfirm/completeOpenFailure once the peer replies.
func openChannel(table *channelTable, body channelOpenBody, window, maxPacketSize uint32) (*channel, []byte) {
	c := table.allocate(body.chanType(), window, maxPacketSize)
	msg := &channelOpenMsg{PeersID: c.localID, PeersWindow: window, MaxPacketSize: maxPacketSize, Body: body}
	return c, encodeMessage(msg, nil)
}

func (c *channel) completeOpenConfirm(msg *channelOpenConfirmMsg) error {
	if c.state != channelOpening {
		return protoErrorf("channel open confirmation for channel not in Opening state")
	}
	c.remoteID = msg.SenderChannel
	c.sendWindow = msg.InitialWindow
	c.state = channelOpen
	return nil
}

// completeOpenFailure implements the "release id" half of §4.6 open():
// the caller must also call channelTable.free(c.localID) after reading the
// reason.
func (c *channel) completeOpenFailure(msg *channelOpenFailureMsg) (reason uint32, message string, err error) {
	if c.state != channelOpening {
		return 0, "", protoErrorf("channel open failure for channel not in Opening state")
	}
	c.state = channelClosed
	return msg.Reason, msg.Message, nil
}

// request implements §4.6 `request(chan, kind, want_reply, ...)`: enqueue
// (if want_reply) and return the ChannelRequest payload to send.
func (c *channel) request(requestType string, wantReply bool, data []byte) []byte {
	if wantReply {
		c.pendingRequests = append(c.pendingRequests, pendingRequest{kind: requestType})
	}
	msg := &channelRequestMsg{RecipientChannel: c.remoteID, RequestType: requestType, WantReply: wantReply, Data: data}
	return encodeMessage(msg, nil)
}

// completeRequest implements the FIFO reply match of §4.6 "Ordering": pops
// the oldest pending request, records whether it succeeded on
// completedRequests for the application to consume, and also reports that
// outcome directly to the caller.
func (c *channel) completeRequest(success bool) (kind string, ok bool, err error) {
	if len(c.pendingRequests) == 0 {
		return "", false, protoErrorf("channel request reply received with no request pending")
	}
	kind = c.pendingRequests[0].kind
	c.pendingRequests = c.pendingRequests[1:]
	c.completedRequests = append(c.completedRequests, completedRequest{kind: kind, success: success})
	return kind, success, nil
}

// consumeCompletedRequest implements the application-facing half of
// completeRequest: drain up to one queued outcome in the order requests
// were sent, mirroring consume()'s role for inbound channel data.
func (c *channel) consumeCompletedRequest() (kind string, success bool, ok bool) {
	if len(c.completedRequests) == 0 {
		return "", false, false
	}
	r := c.completedRequests[0]
	c.completedRequests = c.completedRequests[1:]
	return r.kind, r.success, true
}

// errWouldBlock is returned by sendData when the channel's send window
// cannot absorb the payload yet; callers must suspend (§5 suspension
// point 2, generalized to the channel layer) and retry once a
// ChannelWindowAdjust arrives.
var errWouldBlock = behaviourErrorf("channel send window exhausted, try again once credit arrives")

// sendData implements §4.6 `send_data(chan, ext?, bytes)`.
func (c *channel) sendData(extCode uint32, data []byte) ([]byte, error) {
	if c.state != channelOpen {
		return nil, protoErrorf("sendData on channel not in Open state")
	}
	if uint32(len(data)) > c.sendWindow {
		return nil, errWouldBlock
	}
	c.sendWindow -= uint32(len(data))
	var msg message
	if extCode == 0 {
		msg = &channelDataMsg{RecipientChannel: c.remoteID, Data: data}
	} else {
		msg = &channelExtendedDataMsg{RecipientChannel: c.remoteID, DataTypeCode: extCode, Data: data}
	}
	return encodeMessage(msg, nil), nil
}

// receiveData implements the inbound half of §4.6 `recv_data`: enqueue an
// arriving ChannelData/ChannelDataExt payload, checking it doesn't exceed
// the credit we've extended.
func (c *channel) receiveData(extCode uint32, data []byte) error {
	if c.state != channelOpen && c.state != channelClosing {
		return protoErrorf("data received on channel not open")
	}
	if uint32(len(data)) > c.recvWindow {
		return protoErrorf("peer sent more data than its window allows")
	}
	c.recvWindow -= uint32(len(data))
	c.inbox = append(c.inbox, channelDataChunk{extCode: extCode, data: data})
	return nil
}

// consume implements the application-facing half of `recv_data`: drain up
// to one queued chunk and count its bytes toward the half-window refill
// that maybeWindowAdjust checks (§4.6).
func (c *channel) consume() (extCode uint32, data []byte, ok bool) {
	if len(c.inbox) == 0 {
		return 0, nil, false
	}
	chunk := c.inbox[0]
	c.inbox = c.inbox[1:]
	c.recvWindowConsumed += uint32(len(chunk.data))
	return chunk.extCode, chunk.data, true
}

// maybeWindowAdjust returns a ChannelWindowAdjust payload (and resets the
// consumed counter) once at least half the initial window has been
// consumed since the last adjust, or nil if no refill is due yet.
func (c *channel) maybeWindowAdjust() []byte {
	threshold := c.recvWindowInitial / 2
	if c.recvWindowConsumed < threshold {
		return nil
	}
	toAdd := c.recvWindowConsumed
	c.recvWindow += toAdd
	c.recvWindowConsumed = 0
	return encodeMessage(&channelWindowAdjustMsg{RecipientChannel: c.remoteID, BytesToAdd: toAdd}, nil)
}

// receiveWindowAdjust credits our send window from an inbound
// ChannelWindowAdjust.
func (c *channel) receiveWindowAdjust(msg *channelWindowAdjustMsg) {
	c.sendWindow += msg.BytesToAdd
}

// sendEOF/receiveEOF/sendClose/receiveClose implement §4.6 "Half-close".
func (c *channel) sendEOF() ([]byte, error) {
	if c.eofSent {
		return nil, protoErrorf("sendEOF called twice on the same channel")
	}
	c.eofSent = true
	if c.eofRecv {
		c.state = channelClosing
	}
	return encodeMessage(&channelEOFMsg{RecipientChannel: c.remoteID}, nil), nil
}

func (c *channel) receiveEOF() {
	c.eofRecv = true
	if c.eofSent {
		c.state = channelClosing
	}
}

// sendClose may only be called after this side has sent EOF (§4.6).
func (c *channel) sendClose() ([]byte, error) {
	if !c.eofSent {
		return nil, protoErrorf("channel close sent before EOF")
	}
	if c.closeSent {
		return nil, bug("sendClose called twice on the same channel")
	}
	c.closeSent = true
	if c.closeRecv {
		c.state = channelClosed
	}
	return encodeMessage(&channelCloseMsg{RecipientChannel: c.remoteID}, nil), nil
}

// receiveClose reports whether both sides have now sent close, meaning
// the caller should free the local id from its channelTable.
func (c *channel) receiveClose() (freeNow bool) {
	c.closeRecv = true
	if c.closeSent {
		c.state = channelClosed
		return true
	}
	return false
}
