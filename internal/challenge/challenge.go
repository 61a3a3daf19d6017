// Package challenge implements the sovereign command authorization trust
// root: single-use, time-limited challenges bound to one command payload,
// verified against registered asymmetric credentials.
package challenge

import (
	"sync"
	"time"
)

// NonceSize is the challenge nonce length in bytes.
const NonceSize = 32

// DefaultTTL is how long an issued challenge stays valid.
const DefaultTTL = 120 * time.Second

// Challenge binds one command payload to a single authorization
// opportunity. A challenge is valid only while unconsumed and unexpired;
// once consumed it is permanently invalid.
type Challenge struct {
	ID          string
	Nonce       []byte
	CommandHash string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Consumed    bool
}

// store holds live challenges in process memory. Challenges are transient by
// design: an abandoned challenge is simply evicted at expiry with no side
// effect, so durability would add nothing.
type store struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

func newStore() *store {
	return &store{challenges: make(map[string]*Challenge)}
}

func (s *store) put(challenge *Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challenge.ID] = challenge
}

// get returns a copy so callers never observe concurrent mutation.
func (s *store) get(id string) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return Challenge{}, false
	}
	return *challenge, true
}

// consume atomically flips the consumed flag. The check-and-set under the
// store lock is what makes challenge consumption exactly-once: of N
// concurrent verify attempts, exactly one observes consumed=false here.
func (s *store) consume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[id]
	if !ok || challenge.Consumed {
		return false
	}
	challenge.Consumed = true
	return true
}

func (s *store) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
}

// evictExpired drops challenges whose deadline has passed. Consumed
// challenges are kept until expiry so a late duplicate verify still reports
// AlreadyConsumed rather than NotFound.
func (s *store) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, challenge := range s.challenges {
		if !now.Before(challenge.ExpiresAt) {
			delete(s.challenges, id)
		}
	}
}

func (s *store) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
