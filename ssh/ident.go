// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "bytes"

// This file implements §4.2: the SSH-2.0 identification-string exchange
// that precedes binary packet framing.

// maxIdentLineLen is the 253-byte accumulation cap of §4.2 (255 octets
// total including the trailing CR LF that feed strips before returning).
const maxIdentLineLen = 253

// ourVersion is the identification string this engine sends when the host
// does not override it via ClientConfig/ServerConfig.
const ourVersion = "SSH-2.0-sunset"

// identScanner accumulates inbound bytes looking for the identification
// line, discarding any preceding non-"SSH-" lines (§4.2) and refusing to
// grow past maxIdentLineLen before a line terminator is seen.
type identScanner struct {
	accum []byte
	done  bool
	out   []byte
}

// feed appends b to the scanner's state and reports how many leading bytes
// of b it consumed and whether a complete identification line (one starting
// with "SSH-"; its version is checked separately by validateVersion) is now
// available; call line() to retrieve it. Any bytes of b past the
// reported consumed count belong to binary packet framing, not the ident
// exchange, and must be fed there instead. feed is safe to call repeatedly
// with however much of the stream has arrived so far — it is a suspension
// point per §5: "no progress possible" is simply "not done yet".
func (s *identScanner) feed(b []byte) (consumed int, done bool, err error) {
	for i, c := range b {
		if c == '\n' {
			raw := s.accum
			s.accum = nil
			raw = bytes.TrimSuffix(raw, []byte{'\r'})
			if bytes.HasPrefix(raw, []byte("SSH-")) {
				s.out = raw
				s.done = true
				return i + 1, true, nil
			}
			// A pre-SSH banner line (§4.2): discard and keep scanning.
			continue
		}
		s.accum = append(s.accum, c)
		// A CR directly after a full-length line is the start of its CR LF
		// terminator, not content, so it does not count toward the cap.
		if len(s.accum) > maxIdentLineLen && !(len(s.accum) == maxIdentLineLen+1 && c == '\r') {
			return i + 1, false, protoErrorf("identification line exceeds %d bytes", maxIdentLineLen)
		}
	}
	return len(b), false, nil
}

// line returns the raw identification line (without CR/LF), valid once
// feed has reported done.
func (s *identScanner) line() []byte { return s.out }

// validateVersion checks that line's protoversion field is exactly "2.0"
// (§4.2; "1.99" compatibility is left unimplemented, it being optional).
func validateVersion(line []byte) error {
	// "SSH-2.0-..." — the dash-delimited second field is the version.
	rest := line[len("SSH-"):]
	dash := bytes.IndexByte(rest, '-')
	if dash < 0 {
		return protoErrorf("malformed identification line %q", safeString(string(line)))
	}
	version := string(rest[:dash])
	if version != "2.0" {
		return protoErrorf("unsupported protocol version %q", version)
	}
	return nil
}

// encodeIdentLine renders the CR-LF terminated line this side sends.
func encodeIdentLine(version string) []byte {
	if version == "" {
		version = ourVersion
	}
	out := make([]byte, 0, len(version)+2)
	out = append(out, version...)
	out = append(out, '\r', '\n')
	return out
}
