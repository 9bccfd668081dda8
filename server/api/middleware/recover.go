package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Recover guards the server from panics, logs the stack trace and answers with
// the standard error envelope.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := RequestIDFrom(r.Context())
					if requestID == "" {
						// RequestID runs inside Recover and has already tagged the response.
						requestID = w.Header().Get(HeaderRequestID)
					}
					log.Error().
						Interface("error", rec).
						Str("request_id", requestID).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("http_panic")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"error": map[string]any{
							"code":       "internal",
							"message":    "internal error",
							"request_id": requestID,
							"timestamp":  time.Now().UTC().Format(time.RFC3339),
						},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
