package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/vaultfs/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeErr maps an error kind to its status code and JSON body shape.
// Errors that are not *apperr.Error are treated as internal.
func writeErr(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		slog.Error("httpapi: unclassified error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errBody{Error: "internal_error", Message: err.Error()})
		return
	}

	switch ae.Kind {
	case apperr.KindUnauthorized:
		writeJSON(w, http.StatusUnauthorized, errBody{Error: "unauthorized", Message: ae.Message})
	case apperr.KindForbidden:
		writeJSON(w, http.StatusForbidden, errBody{Error: "forbidden", Message: ae.Message})
	case apperr.KindInvalidRequest:
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid_request", Message: ae.Message})
	case apperr.KindNotFound:
		writeJSON(w, http.StatusNotFound, errBody{Error: "not_found", Message: ae.Message})
	default:
		slog.Error("httpapi: internal error", "error", ae)
		writeJSON(w, http.StatusInternalServerError, errBody{Error: "internal_error", Message: ae.Message})
	}
}
