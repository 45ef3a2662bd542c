// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// This file declares the Metrics collaborator an optional metrics
// package (see metrics/prometheus.go) implements. Shaped the same way as
// Logger in log.go: a small interface the core never depends on an
// implementation of, disabled by a no-op default so a host that doesn't
// care about metrics pays nothing for them.

// Metrics receives counters the engine can observe about itself but a
// host's own instrumentation can't, without the engine importing any
// particular metrics backend. Each method is a point-in-time event; a
// Metrics implementation that wants rates or histograms derives them
// itself.
type Metrics interface {
	// ChannelOpened/ChannelClosed bracket one channel's lifetime.
	ChannelOpened(chanType string)
	ChannelClosed(chanType string)
	// RekeyCompleted is called once per finished key exchange, including
	// the first one, with rekey=false for that first exchange.
	RekeyCompleted(rekey bool)
	// AuthOutcome is called once per authentication attempt's resolution.
	AuthOutcome(method string, succeeded bool)
	// BytesIn/BytesOut count payload bytes (post-decrypt/pre-encrypt,
	// i.e. before framing overhead) crossing the wire in each direction.
	BytesIn(n int)
	BytesOut(n int)
}

// noopMetrics discards everything; the default when a config leaves
// Metrics unset.
type noopMetrics struct{}

func (noopMetrics) ChannelOpened(string)     {}
func (noopMetrics) ChannelClosed(string)     {}
func (noopMetrics) RekeyCompleted(bool)      {}
func (noopMetrics) AuthOutcome(string, bool) {}
func (noopMetrics) BytesIn(int)              {}
func (noopMetrics) BytesOut(int)             {}

var discardMetrics Metrics = noopMetrics{}
