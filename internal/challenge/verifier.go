package challenge

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outpost-fi/sovereign/internal/platform/errors"
	"github.com/outpost-fi/sovereign/internal/platform/id"
	"github.com/outpost-fi/sovereign/internal/storage"
)

// CredentialStore persists registered credentials. Implementations return
// storage.ErrNotFound for unknown credential ids.
type CredentialStore interface {
	PutCredential(ctx context.Context, credential Credential) error
	GetCredential(ctx context.Context, credentialID string) (Credential, error)
	UpdateSignCount(ctx context.Context, credentialID string, signCount uint64) error
}

// Authorization is the proof that one challenge was verified successfully.
// The SignatureID doubles as the sovereign signature reference a journal
// entry may carry.
type Authorization struct {
	SignatureID string
	UserID      string
	CommandHash string
	VerifiedAt  time.Time
}

// VerifyRequest carries a signed response to an issued challenge.
type VerifyRequest struct {
	ChallengeID  string
	Signature    []byte
	Payload      []byte
	CredentialID string
	SignCount    uint64
}

// Verifier issues and consumes command-bound challenges. It is the trust
// root for every mutation: no state-changing command executes without one
// successful Verify.
type Verifier struct {
	challenges  *store
	credentials CredentialStore
	ttl         time.Duration
	clock       func() time.Time
	tracer      trace.Tracer

	authMu     sync.Mutex
	authorized map[string]Authorization
}

// NewVerifier creates a verifier over the provided credential store.
func NewVerifier(credentials CredentialStore) *Verifier {
	return &Verifier{
		challenges:  newStore(),
		credentials: credentials,
		ttl:         DefaultTTL,
		clock:       time.Now,
		tracer:      otel.Tracer("sovereign/challenge"),
		authorized:  make(map[string]Authorization),
	}
}

// WithTTL overrides the challenge lifetime.
func (v *Verifier) WithTTL(ttl time.Duration) *Verifier {
	if ttl > 0 {
		v.ttl = ttl
	}
	return v
}

// WithClock overrides the time source for tests.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	if clock != nil {
		v.clock = clock
	}
	return v
}

// TTL returns the configured challenge lifetime.
func (v *Verifier) TTL() time.Duration {
	return v.ttl
}

// RegisterCredential validates and stores a new authenticator credential.
func (v *Verifier) RegisterCredential(ctx context.Context, credential Credential) (Credential, error) {
	credential.ID = strings.TrimSpace(credential.ID)
	credential.UserID = strings.TrimSpace(credential.UserID)
	if err := credential.validate(); err != nil {
		return Credential{}, err
	}

	if _, err := v.credentials.GetCredential(ctx, credential.ID); err == nil {
		return Credential{}, errors.WithMetadata(errors.CodeCredentialDuplicate, "credential id already registered", map[string]string{
			"credential_id": credential.ID,
		})
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return Credential{}, fmt.Errorf("check credential id: %w", err)
	}

	credential.CreatedAt = v.clock().UTC()
	if err := v.credentials.PutCredential(ctx, credential); err != nil {
		return Credential{}, fmt.Errorf("put credential: %w", err)
	}
	return credential, nil
}

// IssueChallenge binds a command payload to a fresh single-use challenge.
// Expired challenges are evicted opportunistically on the way in, which
// keeps the store bounded without a background sweeper.
func (v *Verifier) IssueChallenge(ctx context.Context, payload []byte) (Challenge, error) {
	_, span := v.tracer.Start(ctx, "challenge.issue")
	defer span.End()

	commandHash, err := CommandHash(payload)
	if err != nil {
		return Challenge{}, errors.Wrap(errors.CodeChallengePayloadMismatch, "payload cannot be canonicalized", err)
	}

	challengeID, err := id.NewID()
	if err != nil {
		return Challenge{}, fmt.Errorf("new challenge id: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("read nonce: %w", err)
	}

	now := v.clock().UTC()
	v.challenges.evictExpired(now)

	challenge := Challenge{
		ID:          challengeID,
		Nonce:       nonce,
		CommandHash: commandHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(v.ttl),
	}
	v.challenges.put(&challenge)

	span.SetAttributes(attribute.String("challenge.id", challengeID))
	return challenge, nil
}

// Verify validates a signed challenge response. At most one call per
// challenge ever returns an Authorization; every terminal outcome that
// proves the challenge was presented (bad signature, payload mismatch, sign
// count regression) burns it as well.
func (v *Verifier) Verify(ctx context.Context, request VerifyRequest) (Authorization, error) {
	ctx, span := v.tracer.Start(ctx, "challenge.verify")
	defer span.End()

	challengeID := strings.TrimSpace(request.ChallengeID)
	span.SetAttributes(attribute.String("challenge.id", challengeID))

	stored, ok := v.challenges.get(challengeID)
	if !ok {
		return Authorization{}, errors.New(errors.CodeChallengeNotFound, "challenge not found")
	}

	now := v.clock().UTC()
	if !now.Before(stored.ExpiresAt) {
		v.challenges.delete(challengeID)
		return Authorization{}, errors.New(errors.CodeChallengeExpired, "challenge has expired")
	}

	// Winning the consume race is the single authorization opportunity.
	// Everything after this point burns the challenge whether it passes
	// or fails.
	if !v.challenges.consume(challengeID) {
		return Authorization{}, errors.New(errors.CodeChallengeConsumed, "challenge already consumed")
	}

	commandHash, err := CommandHash(request.Payload)
	if err != nil {
		return Authorization{}, errors.Wrap(errors.CodeChallengePayloadMismatch, "payload cannot be canonicalized", err)
	}
	if commandHash != stored.CommandHash {
		return Authorization{}, errors.New(errors.CodeChallengePayloadMismatch, "payload does not match the challenged command")
	}

	credential, err := v.credentials.GetCredential(ctx, strings.TrimSpace(request.CredentialID))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Authorization{}, errors.New(errors.CodeCredentialNotFound, "credential not registered")
		}
		return Authorization{}, fmt.Errorf("get credential: %w", err)
	}

	if !verifySignature(credential, stored.Nonce, request.Signature) {
		return Authorization{}, errors.New(errors.CodeChallengeBadSignature, "signature does not verify against registered credential")
	}

	// A sign counter that fails to advance indicates a cloned or replayed
	// authenticator response.
	if request.SignCount <= credential.SignCount {
		return Authorization{}, errors.WithMetadata(errors.CodeSignCountRegression, "credential sign count did not increase", map[string]string{
			"credential_id": credential.ID,
		})
	}
	if err := v.credentials.UpdateSignCount(ctx, credential.ID, request.SignCount); err != nil {
		return Authorization{}, fmt.Errorf("update sign count: %w", err)
	}

	authorization := Authorization{
		SignatureID: stored.ID,
		UserID:      credential.UserID,
		CommandHash: stored.CommandHash,
		VerifiedAt:  now,
	}

	v.authMu.Lock()
	v.evictAuthorizedLocked(now)
	v.authorized[authorization.SignatureID] = authorization
	v.authMu.Unlock()

	return authorization, nil
}

// evictAuthorizedLocked drops authorizations that were never confirmed
// within one challenge lifetime. An authorization is only good for the
// request that produced it, so anything older is a leak, not a credit.
func (v *Verifier) evictAuthorizedLocked(now time.Time) {
	for signatureID, authorization := range v.authorized {
		if !now.Before(authorization.VerifiedAt.Add(v.ttl)) {
			delete(v.authorized, signatureID)
		}
	}
}

// ConfirmSignature reports whether a sovereign signature reference came from
// a successful verification, consuming it so one authorization cannot sign
// two journal entries.
func (v *Verifier) ConfirmSignature(_ context.Context, signatureID string) (string, bool) {
	signatureID = strings.TrimSpace(signatureID)
	v.authMu.Lock()
	defer v.authMu.Unlock()
	v.evictAuthorizedLocked(v.clock().UTC())
	authorization, ok := v.authorized[signatureID]
	if !ok {
		return "", false
	}
	delete(v.authorized, signatureID)
	return authorization.UserID, true
}

// PendingChallenges reports the live challenge count for observability.
func (v *Verifier) PendingChallenges() int {
	return v.challenges.size()
}

// PendingAuthorizations reports verified-but-unconfirmed authorizations for
// observability.
func (v *Verifier) PendingAuthorizations() int {
	v.authMu.Lock()
	defer v.authMu.Unlock()
	return len(v.authorized)
}
