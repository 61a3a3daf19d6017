package challenge

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Canonicalize is the mandatory canonicalization choke point for command
// payloads. Every hash over a payload must be computed on the canonical
// form: object keys sorted, no insignificant whitespace, number literals
// preserved verbatim. Callers never hash raw request bytes directly.
func Canonicalize(payload []byte) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("payload is required")
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	return canonical, nil
}

func ensureEOF(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("payload must be a single JSON document")
	}
	return nil
}

// CommandHash computes the hex SHA-256 of the canonical payload form. This
// is the value a signature is bound to: signing one command and executing a
// different one is impossible because the hashes diverge.
func CommandHash(payload []byte) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
