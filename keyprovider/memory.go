// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keyprovider implements an in-memory Ed25519 key source a
// ServerBehaviour can embed: host keys to offer during key exchange, plus
// a per-user authorized-keys set for publickey authentication. Generalized
// from the teacher's certs.go, which only ever decoded key blobs off the
// wire and never had an equivalent of a server's own key material or
// authorized_keys store.
package keyprovider

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
)

// Memory is a process-local, non-persistent store of host keys and
// per-user authorized public keys. Safe for concurrent use since a host
// may validate credentials from a different goroutine than the one
// driving the engine's Session.
type Memory struct {
	mu        sync.RWMutex
	hostKeys  []ed25519.PrivateKey
	authorized map[string][]ed25519.PublicKey // user -> trusted keys
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{authorized: make(map[string][]ed25519.PublicKey)}
}

// GenerateHostKey creates a fresh Ed25519 host key and adds it to the
// store, returning the public half for the caller to log or pin.
func (m *Memory) GenerateHostKey() (ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keyprovider: generating host key: %w", err)
	}
	m.mu.Lock()
	m.hostKeys = append(m.hostKeys, priv)
	m.mu.Unlock()
	return pub, nil
}

// AddHostKey adds an already-generated (or loaded) host key to the store.
func (m *Memory) AddHostKey(priv ed25519.PrivateKey) {
	m.mu.Lock()
	m.hostKeys = append(m.hostKeys, priv)
	m.mu.Unlock()
}

// HostKeys implements the ServerBehaviour.HostKeys method: every host key
// currently in the store, most recently added last.
func (m *Memory) HostKeys() []ed25519.PrivateKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ed25519.PrivateKey, len(m.hostKeys))
	copy(out, m.hostKeys)
	return out
}

// Authorize trusts pub for publickey authentication as user.
func (m *Memory) Authorize(user string, pub ed25519.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized[user] = append(m.authorized[user], pub)
}

// HaveAuthPubkey reports whether user has any authorized key on file, for
// ServerBehaviour.HaveAuthPubkey.
func (m *Memory) HaveAuthPubkey(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.authorized[user]) > 0
}

// AuthPubkey checks pub against user's authorized keys, for
// ServerBehaviour.AuthPubkey. Uses ed25519.PublicKey.Equal, which compares
// in constant time relative to key length (both keys are the fixed
// 32-byte Ed25519 size, so there is no length side channel to guard
// against here).
func (m *Memory) AuthPubkey(user string, pub ed25519.PublicKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.authorized[user] {
		if k.Equal(pub) {
			return true
		}
	}
	return false
}
