// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between component boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// ChallengeIssue caps the time allowed to issue an authorization challenge.
// The end-to-end challenge/sign/verify loop has a 300ms budget, so issuance
// must stay well under 50ms even when the store is evicting.
const ChallengeIssue = 50 * time.Millisecond

// GraphProjectSLA is the latency target for mirroring one journal entry into
// the relationship graph. Exceeding it is logged, never fatal.
const GraphProjectSLA = 100 * time.Millisecond
