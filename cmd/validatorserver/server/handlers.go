package server

import (
	"encoding/json"
	"net/http"

	core "github.com/saicha124/hierfed/core"
	"github.com/saicha124/hierfed/pkg/httpstatus"
)

// Handlers binds the validator's committee state machine to HTTP.
type Handlers struct {
	State *core.ValidatorState
}

// NewHandlers constructs a Handlers wrapping state.
func NewHandlers(state *core.ValidatorState) *Handlers {
	return &Handlers{State: state}
}

type healthResponse struct {
	ValidatorID int    `json:"validator_id"`
	Status      string `json:"status"`
}

// Health serves GET /.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(healthResponse{ValidatorID: h.State.ValidatorID, Status: "ok"})
}

// ValidateShare serves POST /validate_share (spec §6: "Share+signature
// -> admit-or-reject").
func (h *Handlers) ValidateShare(w http.ResponseWriter, r *http.Request) {
	var sh core.Share
	if err := json.NewDecoder(r.Body).Decode(&sh); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.State.ValidateShare(r.Context(), sh); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// votePayload is the gossip wire format: Vote+echoed share payload
// (spec §6).
type votePayload struct {
	Vote  core.Vote  `json:"vote"`
	Share core.Share `json:"share"`
}

// ReceiveVote serves POST /receive_vote, the gossip sink (spec §6).
func (h *Handlers) ReceiveVote(w http.ResponseWriter, r *http.Request) {
	var payload votePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.State.ReceiveVote(r.Context(), payload.Vote, payload.Share); err != nil {
		httpstatus.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RegisterIssuer serves POST /register_issuer, the trusted authority's
// push of a newly admitted facility's registration record so this
// validator can verify that facility's shares without a round trip to
// the authority on every vote.
func (h *Handlers) RegisterIssuer(w http.ResponseWriter, r *http.Request) {
	var rec core.RegisteredIssuer
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.State.RegisterIssuer(rec)
	w.WriteHeader(http.StatusNoContent)
}
