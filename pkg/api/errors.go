package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/worldofchami/bakerelay/pkg/contract"
)

const (
	msgMissingMessageFields = "Missing phone_number, message, or name"
	msgMissingInvoice       = "Missing text or file"
	msgUnsupportedDocument  = "Unsupported document type, only PDF is accepted"
	msgInvalidPayload       = "Invalid payload"
	msgInternal             = "Internal server error"
	msgNotReady             = "Service not ready"
	msgUnauthorized         = "Invalid signature"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contract.ErrBadRequest), errors.Is(err, contract.ErrBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, contract.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, contract.ErrGatewayNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a fixed message. badRequest is the
// message used for contract.ErrBadRequest, which differs per route.
func writeError(w http.ResponseWriter, r *http.Request, err error, badRequest string) {
	status := statusFor(err)
	msg := msgInternal
	switch {
	case errors.Is(err, contract.ErrBadRequest):
		msg = badRequest
	case errors.Is(err, contract.ErrBadPayload):
		msg = msgInvalidPayload
	case errors.Is(err, contract.ErrUnauthorized):
		msg = msgUnauthorized
	case errors.Is(err, contract.ErrGatewayNotReady):
		msg = msgNotReady
	}

	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: msg})
}
