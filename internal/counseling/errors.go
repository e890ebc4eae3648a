package counseling

import "errors"

var (
	ErrInvalidRange        = errors.New("invalid date range")
	ErrInvalidInterval     = errors.New("invalid slot interval")
	ErrForbidden           = errors.New("forbidden")
	ErrNotOwner            = errors.New("reservation belongs to another student")
	ErrProfessorNotFound   = errors.New("professor not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrSlotConflict        = errors.New("slot overlaps an existing slot")
	ErrStudentOverlap      = errors.New("student already holds a reservation in this time window")
	ErrSlotNotOpen         = errors.New("slot is not open")
	ErrPastSlot            = errors.New("slot time has already passed")
	ErrPastMeeting         = errors.New("meeting has already started")
	ErrSlotHasReservations = errors.New("slot has reservation history")
	ErrNoSlotsGenerated    = errors.New("pattern produced no slots")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrCalendarBusy        = errors.New("calendar is being modified, please retry")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidRange, "invalid_range"},
	{ErrInvalidInterval, "invalid_interval"},
	{ErrForbidden, "forbidden"},
	{ErrNotOwner, "not_owner"},
	{ErrProfessorNotFound, "professor_not_found"},
	{ErrStudentNotFound, "student_not_found"},
	{ErrSlotNotFound, "slot_not_found"},
	{ErrReservationNotFound, "reservation_not_found"},
	{ErrSlotConflict, "slot_conflict"},
	{ErrStudentOverlap, "student_overlap"},
	{ErrSlotNotOpen, "slot_not_open"},
	{ErrPastSlot, "past_slot"},
	{ErrPastMeeting, "past_meeting"},
	{ErrSlotHasReservations, "slot_has_reservations"},
	{ErrNoSlotsGenerated, "no_slots_generated"},
	{ErrInvalidTransition, "invalid_status_transition"},
	{ErrCalendarBusy, "calendar_busy"},
}

// ErrorCode returns a stable snake_case code for a domain error, "ok" for nil
// and "internal_error" for anything else.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal_error"
}
