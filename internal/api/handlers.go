package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/counseling"
)

var weekdays = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

type handlers struct {
	svc      *counseling.Service
	validate *validator.Validate
	logger   *zap.Logger
	loc      *time.Location
}

// decode reads a JSON body into dst and validates it.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional accepts a missing body, chunked or not, as the zero request.
func (h *handlers) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// dateRange reads the inclusive from/to query parameters as calendar dates.
func (h *handlers) dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := time.ParseInLocation(time.DateOnly, q.Get("from"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.ParseInLocation(time.DateOnly, q.Get("to"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *handlers) myProfessors(w http.ResponseWriter, r *http.Request) {
	profs, err := h.svc.GetMyMajorProfessors(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profs)
}

func (h *handlers) openSlots(w http.ResponseWriter, r *http.Request) {
	professorID, err := strconv.ParseInt(r.URL.Query().Get("professorId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professor_id", "professorId must be an integer")
		return
	}
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	slots, err := h.svc.GetOpenSlots(r.Context(), professorID, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *handlers) mySlots(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	slots, err := h.svc.GetMySlots(r.Context(), authFrom(r.Context()), from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *handlers) createSingleSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSingleSlotRequest
	if !h.decode(w, r, &req) {
		return
	}
	// both already passed the datetime rule
	start, _ := time.Parse(time.RFC3339, req.StartAt)
	end, _ := time.Parse(time.RFC3339, req.EndAt)

	slot, err := h.svc.CreateSingleSlot(r.Context(), authFrom(r.Context()), start, end)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *handlers) createWeeklyPattern(w http.ResponseWriter, r *http.Request) {
	var req CreateWeeklyPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	for i := range req.Items {
		req.Items[i].DayOfWeek = strings.ToUpper(strings.TrimSpace(req.Items[i].DayOfWeek))
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	weekStart, _ := time.ParseInLocation(time.DateOnly, req.WeekStartDate, h.loc)
	repeatEnd, _ := time.ParseInLocation(time.DateOnly, req.RepeatEndDate, h.loc)
	pattern := counseling.WeeklyPattern{WeekStart: weekStart, RepeatEnd: repeatEnd}
	for _, it := range req.Items {
		start, err := counseling.ParseTimeOfDay(it.StartTime)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		end, err := counseling.ParseTimeOfDay(it.EndTime)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		pattern.Items = append(pattern.Items, counseling.WeeklyItem{
			DayOfWeek: weekdays[it.DayOfWeek],
			Start:     start,
			End:       end,
		})
	}

	slots, err := h.svc.CreateWeeklyPattern(r.Context(), authFrom(r.Context()), pattern)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, slots)
}

func (h *handlers) deleteSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := uuidParam(w, r, "slotID", "invalid_slot_id")
	if !ok {
		return
	}
	if err := h.svc.DeleteSlot(r.Context(), authFrom(r.Context()), slotID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) reserveSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := uuidParam(w, r, "slotID", "invalid_slot_id")
	if !ok {
		return
	}
	var req ReserveSlotRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	res, err := h.svc.ReserveSlot(r.Context(), authFrom(r.Context()), slotID, req.Memo)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handlers) slotReservations(w http.ResponseWriter, r *http.Request) {
	slotID, ok := uuidParam(w, r, "slotID", "invalid_slot_id")
	if !ok {
		return
	}
	list, err := h.svc.GetSlotReservations(r.Context(), authFrom(r.Context()), slotID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) attachMeeting(w http.ResponseWriter, r *http.Request) {
	slotID, ok := uuidParam(w, r, "slotID", "invalid_slot_id")
	if !ok {
		return
	}
	var req AttachMeetingRequest
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.svc.AttachMeeting(r.Context(), authFrom(r.Context()), slotID, req.MeetingID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (h *handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "reservationID", "invalid_reservation_id")
	if !ok {
		return
	}
	res, err := h.svc.CancelReservation(r.Context(), authFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) approveReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "reservationID", "invalid_reservation_id")
	if !ok {
		return
	}
	res, err := h.svc.ApproveReservation(r.Context(), authFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
