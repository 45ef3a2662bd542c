// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics implements ssh.Metrics on top of prometheus
// client_golang, the way runZeroInc-conniver/pkg/exporter wires its own
// collector: construct the vectors up front, expose the instance as a
// prometheus.Collector for a Registerer, and hand its method set to the
// engine as an ssh.Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyager/sunset-go/ssh"
)

// Prometheus is an ssh.Metrics backed by a fixed set of prometheus
// vectors, one instance per process (or per listener, if a host wants
// per-listener label values baked in via constLabels).
type Prometheus struct {
	channelsOpened *prometheus.CounterVec
	channelsClosed *prometheus.CounterVec
	rekeys         *prometheus.CounterVec
	authAttempts   *prometheus.CounterVec
	bytesIn        prometheus.Counter
	bytesOut       prometheus.Counter
}

var _ ssh.Metrics = (*Prometheus)(nil)
var _ prometheus.Collector = (*Prometheus)(nil)

// New builds a Prometheus collector with the given const labels (e.g.
// {"listener": "22"} to distinguish multiple engines sharing a registry).
func New(constLabels prometheus.Labels) *Prometheus {
	return &Prometheus{
		channelsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sunset",
			Name:        "channels_opened_total",
			Help:        "Channels opened, by channel type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		channelsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sunset",
			Name:        "channels_closed_total",
			Help:        "Channels closed, by channel type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		rekeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sunset",
			Name:        "key_exchanges_total",
			Help:        "Completed key exchanges, labeled by whether it was a rekey.",
			ConstLabels: constLabels,
		}, []string{"rekey"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sunset",
			Name:        "auth_attempts_total",
			Help:        "Authentication attempts, by method and outcome.",
			ConstLabels: constLabels,
		}, []string{"method", "outcome"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sunset",
			Name:        "bytes_in_total",
			Help:        "Payload bytes received, before framing overhead.",
			ConstLabels: constLabels,
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sunset",
			Name:        "bytes_out_total",
			Help:        "Payload bytes sent, before framing overhead.",
			ConstLabels: constLabels,
		}),
	}
}

func (p *Prometheus) ChannelOpened(chanType string) { p.channelsOpened.WithLabelValues(chanType).Inc() }
func (p *Prometheus) ChannelClosed(chanType string) { p.channelsClosed.WithLabelValues(chanType).Inc() }

func (p *Prometheus) RekeyCompleted(rekey bool) {
	label := "false"
	if rekey {
		label = "true"
	}
	p.rekeys.WithLabelValues(label).Inc()
}

func (p *Prometheus) AuthOutcome(method string, succeeded bool) {
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	p.authAttempts.WithLabelValues(method, outcome).Inc()
}

func (p *Prometheus) BytesIn(n int)  { p.bytesIn.Add(float64(n)) }
func (p *Prometheus) BytesOut(n int) { p.bytesOut.Add(float64(n)) }

// Describe implements prometheus.Collector.
func (p *Prometheus) Describe(descs chan<- *prometheus.Desc) {
	p.channelsOpened.Describe(descs)
	p.channelsClosed.Describe(descs)
	p.rekeys.Describe(descs)
	p.authAttempts.Describe(descs)
	descs <- p.bytesIn.Desc()
	descs <- p.bytesOut.Desc()
}

// Collect implements prometheus.Collector.
func (p *Prometheus) Collect(metrics chan<- prometheus.Metric) {
	p.channelsOpened.Collect(metrics)
	p.channelsClosed.Collect(metrics)
	p.rekeys.Collect(metrics)
	p.authAttempts.Collect(metrics)
	metrics <- p.bytesIn
	metrics <- p.bytesOut
}
