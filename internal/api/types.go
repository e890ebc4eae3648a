package api

type CreateSingleSlotRequest struct {
	StartAt string `json:"start_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndAt   string `json:"end_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

type WeeklyItemRequest struct {
	DayOfWeek string `json:"day_of_week" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
}

type CreateWeeklyPatternRequest struct {
	WeekStartDate string              `json:"week_start_date" validate:"required,datetime=2006-01-02"`
	RepeatEndDate string              `json:"repeat_end_date" validate:"required,datetime=2006-01-02"`
	Items         []WeeklyItemRequest `json:"items" validate:"required,min=1,max=21,dive"`
}

type ReserveSlotRequest struct {
	Memo *string `json:"memo" validate:"omitempty,max=500"`
}

type AttachMeetingRequest struct {
	MeetingID int64 `json:"meeting_id" validate:"required,gt=0"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
