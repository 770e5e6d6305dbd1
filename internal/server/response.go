package server

import (
	"encoding/json"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/logging"
	"github.com/pellucid/hearth/pkg/types"
)

// writeJSON writes data as a types.OK envelope with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.OK(data))
}

// writeErr maps err's apperr.Kind to an HTTP status and writes a
// types.Fail envelope. Most domain errors — including role_not_found,
// role_forbidden, validation — return HTTP 200 with Success=false, per
// spec.md's "a parsable business error still returns 200" response
// policy; only auth_required (401), role_busy (409) and internal (500) use
// a non-200 status so a client can distinguish "read the error field" from
// "the request itself was rejected". An internal error is logged with a
// fresh correlation_id.
func writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusOK
	switch kind {
	case apperr.KindAuthRequired:
		status = http.StatusUnauthorized
	case apperr.KindRoleBusy:
		status = http.StatusConflict
	case apperr.KindInternal:
		status = http.StatusInternalServerError
		logging.Error().Err(err).Str("correlation_id", ulid.Make().String()).Msg("internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Fail(err.Error()))
}

// writeSuccess writes the empty success envelope.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
