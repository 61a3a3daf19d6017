// Package httpapi exposes the sovereign core over HTTP. Every mutating
// route demands a verified sovereign signature; read-only routes are served
// through an explicit, logged bypass that structurally cannot guard a
// mutation.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/outpost-fi/sovereign/internal/challenge"
	"github.com/outpost-fi/sovereign/internal/graph"
	"github.com/outpost-fi/sovereign/internal/ledger"
	"github.com/outpost-fi/sovereign/internal/platform/errors"
)

// Server holds the domain services behind the HTTP surface.
type Server struct {
	verifier  *challenge.Verifier
	ledger    *ledger.Ledger
	projector *graph.Projector
}

// NewServer creates the HTTP API over the given services.
func NewServer(verifier *challenge.Verifier, ledgerService *ledger.Ledger, projector *graph.Projector) *Server {
	return &Server{
		verifier:  verifier,
		ledger:    ledgerService,
		projector: projector,
	}
}

// Routes wires the API into a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	listEntries := readOnlyBypass("/v1/ledger/entries", s.handleListEntries)
	getEntry := readOnlyBypass("/v1/ledger/entries/{id}", s.handleGetEntry)
	getBalance := readOnlyBypass("/v1/ledger/accounts/{id}/balance", s.handleAccountBalance)
	ledgerIntegrity := readOnlyBypass("/v1/ledger/integrity", s.handleLedgerIntegrity)
	graphIntegrity := readOnlyBypass("/v1/graph/integrity", s.handleGraphIntegrity)
	graphSyncs := readOnlyBypass("/v1/graph/syncs", s.handleGraphSyncs)

	postEntry := s.requireSovereign(s.handlePostEntry)
	createAccount := s.requireSovereign(s.handleCreateAccount)
	voidEntry := s.requireSovereign(s.handleVoidEntry)

	mux.HandleFunc("/v1/challenges", s.handleIssueChallenge)

	mux.HandleFunc("/v1/ledger/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			listEntries(w, r)
		case http.MethodPost:
			postEntry(w, r)
		default:
			writeMethodNotAllowed(w)
		}
	})

	mux.HandleFunc("/v1/ledger/entries/", func(w http.ResponseWriter, r *http.Request) {
		entryID, action, ok := splitEntryPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch {
		case action == "" && (r.Method == http.MethodGet || r.Method == http.MethodHead):
			getEntry(w, withPathID(r, entryID))
		case action == "void" && r.Method == http.MethodPost:
			voidEntry(w, withPathID(r, entryID))
		case action == "":
			writeMethodNotAllowed(w)
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/v1/ledger/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		createAccount(w, r)
	})

	mux.HandleFunc("/v1/ledger/accounts/", func(w http.ResponseWriter, r *http.Request) {
		accountID, action, ok := splitAccountPath(r.URL.Path)
		if !ok || action != "balance" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeMethodNotAllowed(w)
			return
		}
		getBalance(w, withPathID(r, accountID))
	})

	mux.HandleFunc("/v1/ledger/integrity", ledgerIntegrity)
	mux.HandleFunc("/v1/graph/integrity", graphIntegrity)
	mux.HandleFunc("/v1/graph/syncs", graphSyncs)

	return mux
}

type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	message := err.Error()
	if code == errors.CodeUnknown {
		message = "internal error"
	}
	writeJSON(w, code.HTTPStatus(), errorEnvelope{Error: message, Code: string(code)})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{
		Error: "method not allowed",
		Code:  "METHOD_NOT_ALLOWED",
	})
}
