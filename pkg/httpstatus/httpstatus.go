// Package httpstatus maps the round error taxonomy (spec §7) to the
// HTTP status codes the role-server handlers promise (spec §4.6):
// AuthFailure/IntegrityFailure -> 400, StaleRound -> 409, QuorumUnmet
// -> 503, anything else (including a recovered panic) -> 500.
package httpstatus

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	core "github.com/saicha124/hierfed/core"
)

// For returns the HTTP status code corresponding to err's position in
// the round error taxonomy.
func For(err error) int {
	switch {
	case errors.Is(err, core.ErrAuthFailure), errors.Is(err, core.ErrIntegrityFailure):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStaleRound):
		return http.StatusConflict
	case errors.Is(err, core.ErrQuorumUnmet):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError maps err through For and writes it as the response body.
func WriteError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), For(err))
}

// Recover wraps next so an unrecovered panic (spec §4.6: "Fatal ->
// panic -> recover -> 500 with diagnostic log") is logged and turned
// into a 500 instead of crashing the process.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(log.Fields{
					"path":  r.URL.Path,
					"panic": rec,
				}).Error("panic recovered")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
