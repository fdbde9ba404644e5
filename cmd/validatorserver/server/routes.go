package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/saicha124/hierfed/pkg/httpstatus"
)

// NewRouter configures the HTTP routes for the validator server (spec
// §6: /validate_share admit-or-reject, /receive_vote gossip sink).
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Use(httpstatus.Recover)
	r.Use(RequestLogger)
	r.Use(JSONHeaders)

	r.HandleFunc("/validate_share", h.ValidateShare).Methods(http.MethodPost)
	r.HandleFunc("/receive_vote", h.ReceiveVote).Methods(http.MethodPost)
	r.HandleFunc("/register_issuer", h.RegisterIssuer).Methods(http.MethodPost)
	r.HandleFunc("/", h.Health).Methods(http.MethodGet)

	return r
}
