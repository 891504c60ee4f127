package transport

import (
	"bytes"
	"crypto/rand"
	"time"
)

// pathValidationState is spec.md §4.11's path validator: issues
// PATH_CHALLENGE, waits for a matching PATH_RESPONSE within an
// exponentially-backed-off deadline, and reports migration success or
// fallback to the prior path. Grounded on ngtcp2_conn's path migration
// handling in original_source/deps/ngtcp2/lib/ngtcp2_conn.c.
type pathValidationState struct {
	validating  bool
	path        Path
	data        [8]byte
	attempts    int
	deadline    time.Time
	priorPath   Path
	havePrior   bool

	// pendingChallenge/pendingResponse are consumed by the connection
	// write loop to know a frame must be emitted this pass.
	pendingChallenge bool
	pendingResponse  *[8]byte
}

const maxPathValidationAttempts = 5

// start begins validating a new path (spec.md §4.11 "migration"),
// remembering the prior path to fall back to on failure.
func (s *pathValidationState) start(newPath Path, priorPath Path, now time.Time) error {
	var data [8]byte
	if _, err := rand.Read(data[:]); err != nil {
		return err
	}
	s.validating = true
	s.path = newPath
	s.priorPath = priorPath
	s.havePrior = true
	s.data = data
	s.attempts = 1
	s.pendingChallenge = true
	s.deadline = now.Add(pathValidationTimeout(1))
	return nil
}

// pathValidationTimeout implements exponential backoff per attempt,
// based on the PTO-scale timeout used elsewhere in the stack (spec.md
// §4.11): 3x the initial RTT, doubled per retry.
func pathValidationTimeout(attempt int) time.Duration {
	d := 3 * defaultInitialRTT
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// onResponse reports whether the PATH_RESPONSE's data matches the
// outstanding challenge, completing validation on success.
func (s *pathValidationState) onResponse(data [8]byte) bool {
	if !s.validating {
		return false
	}
	if !bytes.Equal(s.data[:], data[:]) {
		return false
	}
	s.validating = false
	s.havePrior = false
	return true
}

// onChallenge records that a peer-initiated PATH_CHALLENGE arrived and
// must be echoed back via PATH_RESPONSE.
func (s *pathValidationState) onChallenge(data [8]byte) {
	d := data
	s.pendingResponse = &d
}

// checkTimeout reapplies backoff or, past the attempt cap, falls back to
// the prior path, per spec.md §4.11.
func (s *pathValidationState) checkTimeout(now time.Time) (fellBack bool, fallbackPath Path) {
	if !s.validating || now.Before(s.deadline) {
		return false, Path{}
	}
	s.attempts++
	if s.attempts > maxPathValidationAttempts {
		s.validating = false
		if s.havePrior {
			s.havePrior = false
			return true, s.priorPath
		}
		return false, Path{}
	}
	s.pendingChallenge = true
	s.deadline = now.Add(pathValidationTimeout(s.attempts))
	return false, Path{}
}
