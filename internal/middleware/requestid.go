// Package middleware provides HTTP middleware for the governance API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/logger"
)

const (
	headerRequestID    = "X-Request-ID"
	maxHeaderIDLength = 128
)

// RequestID propagates the caller's X-Request-ID into the context and the
// response. Missing or malformed ids are replaced with a fresh uuid so that
// log lines and bus headers never carry arbitrary client bytes.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validHeaderID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// validHeaderID accepts short ids made of letters, digits and "-_.:".
func validHeaderID(id string) bool {
	if id == "" || len(id) > maxHeaderIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
