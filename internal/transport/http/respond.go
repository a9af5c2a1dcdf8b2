package http

import (
	"encoding/json"
	"net/http"

	dErrors "loom/pkg/domain-errors"
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError translates a coded domain error into an HTTP status. The
// code travels in the body so clients can branch without parsing messages.
func respondError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	respondJSON(w, statusFor(code), map[string]string{
		"error":   string(code),
		"message": err.Error(),
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound, dErrors.CodeContractNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidState:
		return http.StatusConflict
	case dErrors.CodeAccessDenied, dErrors.CodeMaterializationDenied, dErrors.CodePromotionRejected:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
