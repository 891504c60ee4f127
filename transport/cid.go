package transport

import (
	"bytes"
	"crypto/rand"
	"time"
)

// connID is one connection ID with its sequence number and optional
// stateless-reset token (spec.md §4.10).
type connID struct {
	seq   uint64
	id    []byte
	token [16]byte

	retiring    bool
	retireAfter time.Time // valid when retiring
}

func (c connID) equal(other []byte) bool {
	return bytes.Equal(c.id, other)
}

// defaultInitialRTT mirrors recovery.go's initialRTT; duplicated as a
// named constant here per spec.md §4.10's retirement-grace formula so cid.go
// has no import-time dependency on the recovery package's internals.
const defaultInitialRTT = 333 * time.Millisecond

// cidPool manages one side's set of connection IDs: the pool we issue to
// the peer (local) or the pool the peer issued to us (remote), per
// spec.md §4.10 "CID lifecycle".
type cidPool struct {
	ids          []connID
	nextSeq      uint64
	retirePriorTo uint64
	minPoolSize  int
}

func (p *cidPool) init(minPoolSize int) {
	p.minPoolSize = minPoolSize
}

// addLocal records a connection ID this side has issued to the peer.
func (p *cidPool) addLocal(id []byte, token [16]byte) connID {
	c := connID{seq: p.nextSeq, id: id, token: token}
	p.ids = append(p.ids, c)
	p.nextSeq++
	return c
}

// addRemote records a connection ID the peer issued to us via
// NEW_CONNECTION_ID, enforcing the active_connection_id_limit (invariant
// enforced by the caller comparing len(ids) before calling).
func (p *cidPool) addRemote(seq uint64, id []byte, token [16]byte, retirePriorTo uint64) ([]connID, error) {
	for _, existing := range p.ids {
		if existing.seq == seq {
			return nil, nil // duplicate NEW_CONNECTION_ID, idempotent
		}
	}
	p.ids = append(p.ids, connID{seq: seq, id: id, token: token})
	var retired []connID
	if retirePriorTo > p.retirePriorTo {
		p.retirePriorTo = retirePriorTo
		retired = p.retireOlderThan(retirePriorTo)
	}
	return retired, nil
}

// retireOlderThan marks every CID with seq < threshold as pending
// retirement; the caller is responsible for emitting RETIRE_CONNECTION_ID
// frames and, after the grace period, calling reap.
func (p *cidPool) retireOlderThan(threshold uint64) []connID {
	var toRetire []connID
	for i := range p.ids {
		if p.ids[i].seq < threshold && !p.ids[i].retiring {
			p.ids[i].retiring = true
			toRetire = append(toRetire, p.ids[i])
		}
	}
	return toRetire
}

// markRetiring starts the grace period for a CID we are about to stop
// using (e.g. our own, after the peer sent RETIRE_CONNECTION_ID), per
// spec.md §4.10: it remains valid for max(pto, 6*default_initial_rtt).
func (p *cidPool) markRetiring(seq uint64, now time.Time, pto time.Duration) {
	grace := 6 * defaultInitialRTT
	if pto > grace {
		grace = pto
	}
	for i := range p.ids {
		if p.ids[i].seq == seq {
			p.ids[i].retiring = true
			p.ids[i].retireAfter = now.Add(grace)
		}
	}
}

// reap drops retiring CIDs whose grace period has elapsed.
func (p *cidPool) reap(now time.Time) {
	kept := p.ids[:0]
	for _, c := range p.ids {
		if c.retiring && !c.retireAfter.IsZero() && !now.Before(c.retireAfter) {
			continue
		}
		kept = append(kept, c)
	}
	p.ids = kept
}

func (p *cidPool) active() []connID {
	var out []connID
	for _, c := range p.ids {
		if !c.retiring {
			out = append(out, c)
		}
	}
	return out
}

func (p *cidPool) get(seq uint64) (connID, bool) {
	for _, c := range p.ids {
		if c.seq == seq {
			return c, true
		}
	}
	return connID{}, false
}

// byValue finds a remote CID by its byte value, used to validate which
// DCID an incoming packet targets.
func (p *cidPool) byValue(id []byte) (connID, bool) {
	for _, c := range p.ids {
		if c.equal(id) {
			return c, true
		}
	}
	return connID{}, false
}

// needsMore reports whether the local pool has fewer than minPoolSize
// unretired CIDs outstanding and should issue another NEW_CONNECTION_ID
// (spec.md §4.10's "MIN_SCID_POOL pre-issuance").
func (p *cidPool) needsMore() bool {
	return len(p.active()) < p.minPoolSize
}

func generateCID(length int) ([]byte, error) {
	id := make([]byte, length)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return id, nil
}

func generateStatelessResetToken() ([16]byte, error) {
	var token [16]byte
	if _, err := rand.Read(token[:]); err != nil {
		return token, err
	}
	return token, nil
}

// GenerateCID creates a random connection id of the given length, for
// embedders that need to produce one outside of a Callbacks.GetNewConnectionID
// implementation (e.g. the initial SCID/DCID pair before a Conn exists).
func GenerateCID(length int) ([]byte, error) { return generateCID(length) }

// GenerateStatelessResetToken creates a random stateless reset token.
func GenerateStatelessResetToken() ([16]byte, error) { return generateStatelessResetToken() }

// matchStatelessReset implements the supplemented stateless-reset
// detection of SPEC_FULL.md: a short-header datagram whose last 16 bytes
// equal a stateless reset token we hold for some remote CID is treated
// as a stateless reset rather than a corrupt/undecryptable packet,
// regardless of its DCID (the token is looked up across the whole
// remote pool since the peer chooses which of its own CIDs to reset).
// Grounded on ngtcp2_conn_on_stateless_reset in
// original_source/deps/ngtcp2/lib/ngtcp2_conn.c.
func (p *cidPool) matchStatelessReset(datagram []byte) (connID, bool) {
	if len(datagram) < 16 {
		return connID{}, false
	}
	candidate := datagram[len(datagram)-16:]
	for _, c := range p.ids {
		if bytes.Equal(c.token[:], candidate) {
			return c, true
		}
	}
	return connID{}, false
}
