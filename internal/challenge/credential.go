package challenge

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/outpost-fi/sovereign/internal/platform/errors"
)

// Algorithm names the asymmetric signature scheme bound to a credential at
// registration time.
type Algorithm string

const (
	AlgorithmEd25519    Algorithm = "ed25519"
	AlgorithmECDSAP256  Algorithm = "ecdsa-p256"
	AlgorithmDilithium3 Algorithm = "dilithium3"
)

// ParseAlgorithm validates a raw algorithm value.
func ParseAlgorithm(raw string) (Algorithm, bool) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(raw))) {
	case AlgorithmEd25519:
		return AlgorithmEd25519, true
	case AlgorithmECDSAP256:
		return AlgorithmECDSAP256, true
	case AlgorithmDilithium3:
		return AlgorithmDilithium3, true
	default:
		return "", false
	}
}

// Credential is a registered authenticator public key. SignCount must
// strictly increase on every successful verification; a stalled or rewound
// counter indicates a cloned or replayed authenticator.
type Credential struct {
	ID        string
	PublicKey []byte
	Algorithm Algorithm
	SignCount uint64
	UserID    string
	CreatedAt time.Time
}

func (c Credential) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New(errors.CodeCredentialInvalid, "credential id is required")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New(errors.CodeCredentialInvalid, "credential user id is required")
	}
	switch c.Algorithm {
	case AlgorithmEd25519:
		if len(c.PublicKey) != ed25519.PublicKeySize {
			return errors.New(errors.CodeCredentialInvalid, "ed25519 public key must be 32 bytes")
		}
	case AlgorithmECDSAP256:
		if _, err := parseECDSAPublicKey(c.PublicKey); err != nil {
			return errors.Wrap(errors.CodeCredentialInvalid, "invalid ecdsa public key", err)
		}
	case AlgorithmDilithium3:
		if len(c.PublicKey) != mode3.PublicKeySize {
			return errors.New(errors.CodeCredentialInvalid, "dilithium3 public key has wrong size")
		}
	default:
		return errors.WithMetadata(errors.CodeCredentialInvalid, "unsupported signature algorithm", map[string]string{
			"algorithm": string(c.Algorithm),
		})
	}
	return nil
}

// verifySignature checks an asymmetric signature over message. All schemes
// sign the SHA-256 digest of the message, so the wire format is uniform
// across algorithms.
func verifySignature(credential Credential, message, signature []byte) bool {
	digest := sha256.Sum256(message)

	switch credential.Algorithm {
	case AlgorithmEd25519:
		if len(credential.PublicKey) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(credential.PublicKey), digest[:], signature)
	case AlgorithmECDSAP256:
		publicKey, err := parseECDSAPublicKey(credential.PublicKey)
		if err != nil {
			return false
		}
		return ecdsa.VerifyASN1(publicKey, digest[:], signature)
	case AlgorithmDilithium3:
		if len(credential.PublicKey) != mode3.PublicKeySize {
			return false
		}
		var publicKey mode3.PublicKey
		if err := publicKey.UnmarshalBinary(credential.PublicKey); err != nil {
			return false
		}
		return mode3.Verify(&publicKey, digest[:], signature)
	default:
		return false
	}
}

func parseECDSAPublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, err
	}
	publicKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New(errors.CodeCredentialInvalid, "public key is not ecdsa")
	}
	return publicKey, nil
}
