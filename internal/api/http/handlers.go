package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/outpost-fi/sovereign/internal/challenge"
	"github.com/outpost-fi/sovereign/internal/ledger"
	"github.com/outpost-fi/sovereign/internal/platform/errors"
)

type challengeResponse struct {
	ChallengeID      string `json:"challenge_id"`
	Nonce            string `json:"nonce"`
	CommandHash      string `json:"command_hash"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// handleIssueChallenge issues a single-use challenge bound to the request
// body. Issuance itself is unauthenticated: holding a challenge proves
// nothing until the matching signature arrives.
func (s *Server) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.New(errors.CodeChallengePayloadMismatch, "request body could not be read"))
		return
	}

	issued, err := s.verifier.IssueChallenge(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, challengeResponse{
		ChallengeID:      issued.ID,
		Nonce:            hex.EncodeToString(issued.Nonce),
		CommandHash:      issued.CommandHash,
		ExpiresInSeconds: int64(issued.ExpiresAt.Sub(issued.CreatedAt).Seconds()),
	})
}

func (s *Server) handlePostEntry(w http.ResponseWriter, r *http.Request, payload []byte, auth challenge.Authorization) {
	var input ledger.EntryInput
	if err := json.Unmarshal(payload, &input); err != nil {
		writeError(w, errors.Wrap(errors.CodeLedgerInvalidEntry, "entry payload is not valid JSON", err))
		return
	}

	// The verified challenge is the entry's sovereign signature reference;
	// a client-claimed one is never trusted.
	input.SignatureID = auth.SignatureID
	input.SignedByUserID = ""

	entry, err := s.ledger.PostEntry(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type createAccountRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parent_id"`
	Currency string `json:"currency"`
}

type accountResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ParentID  string `json:"parent_id,omitempty"`
	Currency  string `json:"currency"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, payload []byte, _ challenge.Authorization) {
	var request createAccountRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		writeError(w, errors.Wrap(errors.CodeLedgerInvalidEntry, "account payload is not valid JSON", err))
		return
	}

	account, err := s.ledger.CreateAccount(r.Context(), ledger.CreateAccountInput{
		ID:       request.ID,
		Name:     request.Name,
		Type:     request.Type,
		ParentID: request.ParentID,
		Currency: request.Currency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func toAccountResponse(account ledger.Account) accountResponse {
	return accountResponse{
		ID:        account.ID,
		Name:      account.Name,
		Type:      string(account.Type),
		ParentID:  account.ParentID,
		Currency:  account.Currency,
		IsActive:  account.IsActive,
		CreatedAt: account.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

type voidRequest struct {
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

func (s *Server) handleVoidEntry(w http.ResponseWriter, r *http.Request, payload []byte, _ challenge.Authorization) {
	var request voidRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		writeError(w, errors.Wrap(errors.CodeLedgerInvalidEntry, "void payload is not valid JSON", err))
		return
	}

	// The target entry must come from the signed payload. The path id alone
	// is outside the command binding: a signature over one void command must
	// never authorize voiding a different entry.
	if request.EntryID != pathID(r) {
		writeError(w, errors.WithMetadata(errors.CodeChallengePayloadMismatch, "signed entry_id does not match request path", map[string]string{
			"entry_id": request.EntryID,
			"path_id":  pathID(r),
		}))
		return
	}

	entry, err := s.ledger.VoidEntry(r.Context(), request.EntryID, request.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type entriesResponse struct {
	Entries []ledger.JournalEntry `json:"entries"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, errors.New(errors.CodeLedgerInvalidEntry, "after must be an unsigned integer"))
			return
		}
		after = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, errors.New(errors.CodeLedgerInvalidEntry, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := s.ledger.ListEntries(r.Context(), after, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledger.GetEntry(r.Context(), pathID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.AccountBalance(r.Context(), pathID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

type ledgerIntegrityResponse struct {
	Status  string `json:"status"`
	Entries int64  `json:"entries"`
}

func (s *Server) handleLedgerIntegrity(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.VerifyChain(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	count, err := s.ledger.CountEntries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerIntegrityResponse{Status: "ok", Entries: count})
}

func (s *Server) handleGraphIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.projector.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGraphSyncs(w http.ResponseWriter, _ *http.Request) {
	syncs := s.projector.RecentSyncs()
	writeJSON(w, http.StatusOK, map[string]any{"syncs": syncs})
}
