// Package api contains API service implementations.
//
// The http subpackage exposes the sovereign HTTP surface: challenge
// issuance, journal mutations gated by sovereign authorization headers, and
// read-only ledger and graph endpoints that bypass authorization.
package api
