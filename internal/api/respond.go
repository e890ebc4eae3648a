package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/counseling"
)

var errorStatus = map[string]int{
	"invalid_range":             http.StatusBadRequest,
	"invalid_interval":          http.StatusBadRequest,
	"past_slot":                 http.StatusBadRequest,
	"past_meeting":              http.StatusBadRequest,
	"slot_has_reservations":     http.StatusBadRequest,
	"no_slots_generated":        http.StatusBadRequest,
	"forbidden":                 http.StatusForbidden,
	"not_owner":                 http.StatusForbidden,
	"professor_not_found":       http.StatusNotFound,
	"student_not_found":         http.StatusNotFound,
	"slot_not_found":            http.StatusNotFound,
	"reservation_not_found":     http.StatusNotFound,
	"slot_conflict":             http.StatusConflict,
	"student_overlap":           http.StatusConflict,
	"slot_not_open":             http.StatusConflict,
	"invalid_status_transition": http.StatusConflict,
	"calendar_busy":             http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps an engine error onto a status code. Unknown errors
// are logged and reported without their text.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	code := counseling.ErrorCode(err)
	status, ok := errorStatus[code]
	if !ok {
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
		return
	}
	writeError(w, status, code, err.Error())
}
