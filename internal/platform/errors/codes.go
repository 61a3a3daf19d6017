// Package errors provides structured error handling for the sovereign core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authorization errors. These are fatal to the current request and are
	// never retried transparently: retrying would imply reusing a consumed
	// challenge.
	CodeChallengeNotFound        Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeExpired         Code = "CHALLENGE_EXPIRED"
	CodeChallengeConsumed        Code = "CHALLENGE_ALREADY_CONSUMED"
	CodeChallengePayloadMismatch Code = "CHALLENGE_PAYLOAD_MISMATCH"
	CodeChallengeBadSignature    Code = "CHALLENGE_BAD_SIGNATURE"
	CodeSignCountRegression      Code = "CHALLENGE_SIGN_COUNT_REGRESSION"
	CodeAuthHeadersMissing       Code = "AUTH_HEADERS_MISSING"

	// Credential errors.
	CodeCredentialNotFound  Code = "CREDENTIAL_NOT_FOUND"
	CodeCredentialDuplicate Code = "CREDENTIAL_DUPLICATE"
	CodeCredentialInvalid   Code = "CREDENTIAL_INVALID"

	// Ledger errors. Caller errors, surfaced verbatim. LEDGER_DUPLICATE_ID
	// is safe to retry because posting is idempotent by entry id.
	CodeLedgerUnbalanced        Code = "LEDGER_UNBALANCED"
	CodeLedgerDuplicateID       Code = "LEDGER_DUPLICATE_ID"
	CodeLedgerUnknownAccount    Code = "LEDGER_UNKNOWN_ACCOUNT"
	CodeLedgerInvalidTransition Code = "LEDGER_INVALID_TRANSITION"
	CodeLedgerInvalidEntry      Code = "LEDGER_INVALID_ENTRY"

	// Account errors.
	CodeAccountInvalidType     Code = "ACCOUNT_INVALID_TYPE"
	CodeAccountUnknownParent   Code = "ACCOUNT_UNKNOWN_PARENT"
	CodeAccountParentCycle     Code = "ACCOUNT_PARENT_CYCLE"
	CodeAccountDuplicateID     Code = "ACCOUNT_DUPLICATE_ID"
	CodeAccountInvalidCurrency Code = "ACCOUNT_INVALID_CURRENCY"

	// Integrity violations. Operational alerts raised to monitoring, never
	// silently corrected.
	CodeIntegrityViolation Code = "LEDGER_INTEGRITY_VIOLATION"
	CodeGraphVariance      Code = "GRAPH_VARIANCE"

	// Storage errors.
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps an error code to the HTTP status surfaced by transports.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeChallengeNotFound, CodeCredentialNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeChallengeExpired, CodeChallengeBadSignature, CodeSignCountRegression, CodeAuthHeadersMissing:
		return http.StatusUnauthorized
	case CodeChallengeConsumed, CodeLedgerDuplicateID, CodeCredentialDuplicate, CodeAccountDuplicateID, CodeLedgerInvalidTransition:
		return http.StatusConflict
	case CodeChallengePayloadMismatch, CodeLedgerUnbalanced, CodeLedgerUnknownAccount, CodeLedgerInvalidEntry,
		CodeAccountInvalidType, CodeAccountUnknownParent, CodeAccountParentCycle, CodeAccountInvalidCurrency,
		CodeCredentialInvalid:
		return http.StatusUnprocessableEntity
	case CodeIntegrityViolation, CodeGraphVariance:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
