package counseling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotOpen     SlotStatus = "OPEN"
	SlotReserved SlotStatus = "RESERVED"
)

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationApproved ReservationStatus = "APPROVED"
	ReservationCanceled ReservationStatus = "CANCELED"
)

// Active reports whether the reservation still holds its slot.
func (s ReservationStatus) Active() bool {
	return s == ReservationReserved || s == ReservationApproved
}

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleProfessor Role = "PROFESSOR"
	RoleStaff     Role = "STAFF"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole is case-insensitive; unknown roles come back empty.
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleStudent, RoleProfessor, RoleStaff, RoleAdmin:
		return r
	default:
		return ""
	}
}

// AuthContext identifies the caller. It is supplied by the auth layer in front of the engine.
type AuthContext struct {
	ID   int64
	Role Role
}

type Professor struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        *string   `json:"email,omitempty"`
	DepartmentID int64     `json:"department_id"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

type Student struct {
	ID           int64
	Name         string
	Email        *string
	DepartmentID int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Slot is one bookable hour on a professor's calendar.
type Slot struct {
	ID          uuid.UUID
	ProfessorID int64
	StartAt     time.Time
	EndAt       time.Time
	Status      SlotStatus
	MeetingID   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// joined from professors on reads
	ProfessorName string
}

// Reservation is a student's claim on a slot.
type Reservation struct {
	ID         uuid.UUID
	SlotID     uuid.UUID
	StudentID  int64
	Status     ReservationStatus
	Memo       *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	CanceledAt *time.Time

	// joined from students and counseling_slots on reads
	StudentName string
	SlotStartAt time.Time
	SlotEndAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	SlotID        *uuid.UUID
	ReservationID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// SlotView is what callers get back for a slot.
type SlotView struct {
	ID            uuid.UUID  `json:"slot_id"`
	ProfessorID   int64      `json:"professor_id"`
	ProfessorName string     `json:"professor_name"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        SlotStatus `json:"status"`
	MeetingID     *int64     `json:"meeting_id,omitempty"`
}

// ReservationView is what callers get back for a reservation.
type ReservationView struct {
	ID          uuid.UUID         `json:"reservation_id"`
	SlotID      uuid.UUID         `json:"slot_id"`
	StudentID   int64             `json:"student_id"`
	StudentName string            `json:"student_name"`
	Status      ReservationStatus `json:"status"`
	Memo        *string           `json:"memo,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CanceledAt  *time.Time        `json:"canceled_at,omitempty"`
}

func toSlotView(s *Slot) SlotView {
	return SlotView{
		ID:            s.ID,
		ProfessorID:   s.ProfessorID,
		ProfessorName: s.ProfessorName,
		StartAt:       s.StartAt,
		EndAt:         s.EndAt,
		Status:        s.Status,
		MeetingID:     s.MeetingID,
	}
}

func toSlotViews(slots []Slot) []SlotView {
	out := make([]SlotView, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotView(&slots[i]))
	}
	return out
}

func toReservationView(r *Reservation) ReservationView {
	return ReservationView{
		ID:          r.ID,
		SlotID:      r.SlotID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Status:      r.Status,
		Memo:        r.Memo,
		CreatedAt:   r.CreatedAt,
		CanceledAt:  r.CanceledAt,
	}
}
