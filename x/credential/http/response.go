package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/issuer/server/api"
	"github.com/compose-network/issuer/x/credential"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind credential.Kind) int {
	switch kind {
	case credential.KindValidation:
		return http.StatusBadRequest
	case credential.KindNotFound:
		return http.StatusNotFound
	case credential.KindUnauthorized:
		return http.StatusForbidden
	case credential.KindInvalidState, credential.KindAlreadyClaimed, credential.KindReplayRejected:
		return http.StatusConflict
	case credential.KindPrecondition:
		return http.StatusPreconditionFailed
	case credential.KindRelayTimeout:
		return http.StatusGatewayTimeout
	case credential.KindRelayFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	kind := credential.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	var details map[string]any
	var ce *credential.Error
	if errors.As(err, &ce) {
		message = ce.Message
		if len(ce.Context) > 0 || ce.AchievementID != "" {
			details = make(map[string]any, len(ce.Context)+1)
			for k, v := range ce.Context {
				details[k] = v
			}
			if ce.AchievementID != "" {
				details["achievement_id"] = ce.AchievementID
			}
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("code", kind.String()).Msg("request failed")
	}
	if kind == credential.KindInternal {
		message = "internal error"
		details = nil
	}

	if details == nil {
		apicommon.WriteError(w, r, status, kind.String(), message, nil)
		return
	}
	apicommon.WriteError(w, r, status, kind.String(), message, details)
}
