package api

import (
	"encoding/json"
	"net/http"

	"github.com/marmos91/transferd/pkg/core"
)

// writeJSON encodes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a core.Error's kind to its HTTP status and writes
// {"error": <message>}. Internal failures never leak their cause to
// the client.
func writeError(w http.ResponseWriter, err error) {
	e, ok := err.(*core.Error)
	if !ok {
		e = core.Internal(err)
	}

	var status int
	switch e.Kind {
	case core.KindBadRequest:
		status = http.StatusBadRequest
	case core.KindInvalidAuth:
		status = http.StatusUnauthorized
	case core.KindDoesNotExist:
		status = http.StatusNotFound
	case core.KindUploadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case core.KindOutOfSpace:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{"error": e.PublicMessage()})
}
