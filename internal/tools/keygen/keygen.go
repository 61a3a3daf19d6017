// Package keygen generates an authenticator keypair and registers the
// public half as a credential in the ledger database. The private half is
// printed once and never stored.
package keygen

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/outpost-fi/sovereign/internal/challenge"
	"github.com/outpost-fi/sovereign/internal/storage/sqlite"
)

// Config holds configuration for credential generation.
type Config struct {
	DBPath       string
	Algorithm    string
	CredentialID string
	UserID       string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		DBPath:    "data/sovereign.db",
		Algorithm: string(challenge.AlgorithmEd25519),
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger SQLite database path")
	fs.StringVar(&cfg.Algorithm, "algorithm", cfg.Algorithm, "Signature algorithm (ed25519, ecdsa-p256, dilithium3)")
	fs.StringVar(&cfg.CredentialID, "credential-id", cfg.CredentialID, "Credential identifier (default: random)")
	fs.StringVar(&cfg.UserID, "user-id", cfg.UserID, "User the credential belongs to")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the keypair, registers the credential, and writes the key
// material to out.
func Run(ctx context.Context, cfg Config, out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return errors.New("user-id is required")
	}
	algorithm, ok := challenge.ParseAlgorithm(cfg.Algorithm)
	if !ok {
		return fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}
	if reader == nil {
		reader = rand.Reader
	}

	credentialID := strings.TrimSpace(cfg.CredentialID)
	if credentialID == "" {
		buf := make([]byte, 16)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return fmt.Errorf("generate credential id: %w", err)
		}
		credentialID = hex.EncodeToString(buf)
	}

	publicKey, privateKey, err := generateKeypair(algorithm, reader)
	if err != nil {
		return fmt.Errorf("generate %s keypair: %w", algorithm, err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer store.Close()

	verifier := challenge.NewVerifier(store)
	credential, err := verifier.RegisterCredential(ctx, challenge.Credential{
		ID:        credentialID,
		PublicKey: publicKey,
		Algorithm: algorithm,
		UserID:    cfg.UserID,
	})
	if err != nil {
		return fmt.Errorf("register credential: %w", err)
	}

	fmt.Fprintf(out, "credential_id=%s\n", credential.ID)
	fmt.Fprintf(out, "algorithm=%s\n", credential.Algorithm)
	fmt.Fprintf(out, "user_id=%s\n", credential.UserID)
	fmt.Fprintf(out, "public_key=%s\n", hex.EncodeToString(credential.PublicKey))
	fmt.Fprintf(out, "private_key=%s\n", hex.EncodeToString(privateKey))
	return nil
}

func generateKeypair(algorithm challenge.Algorithm, reader io.Reader) (publicKey, privateKey []byte, err error) {
	switch algorithm {
	case challenge.AlgorithmEd25519:
		pub, priv, err := ed25519.GenerateKey(reader)
		if err != nil {
			return nil, nil, err
		}
		return pub, priv, nil
	case challenge.AlgorithmECDSAP256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), reader)
		if err != nil {
			return nil, nil, err
		}
		pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		priv, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, nil, err
		}
		return pub, priv, nil
	case challenge.AlgorithmDilithium3:
		pub, priv, err := mode3.GenerateKey(reader)
		if err != nil {
			return nil, nil, err
		}
		return pub.Bytes(), priv.Bytes(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}
