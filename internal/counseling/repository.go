package counseling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetProfessorByID(ctx context.Context, id int64) (*Professor, error)
	GetStudentByID(ctx context.Context, id int64) (*Student, error)
	ListProfessorsByDepartment(ctx context.Context, departmentID int64) ([]Professor, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// LockSlot re-reads the slot and holds its row until the transaction ends.
	LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// ListSlotsByProfessor returns slots starting in [from, to), ordered by start. A nil status means any.
	ListSlotsByProfessor(ctx context.Context, professorID int64, from, to time.Time, status *SlotStatus) ([]Slot, error)
	ProfessorHasOverlap(ctx context.Context, professorID int64, start, end time.Time, excludeSlotID *uuid.UUID) (bool, error)
	InsertSlot(ctx context.Context, slot *Slot) error
	// UpdateSlotStatus clears the meeting id when the slot goes back to OPEN.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus, at time.Time) (*Slot, error)
	SetSlotMeeting(ctx context.Context, id uuid.UUID, meetingID int64, at time.Time) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	// ListReservationsBySlot returns every reservation ever made on the slot, oldest first.
	ListReservationsBySlot(ctx context.Context, slotID uuid.UUID) ([]Reservation, error)
	CountActiveReservationsBySlot(ctx context.Context, slotID uuid.UUID) (int, error)
	SlotHasReservations(ctx context.Context, slotID uuid.UUID) (bool, error)
	// StudentHasOverlap checks the student's RESERVED and APPROVED reservations.
	StudentHasOverlap(ctx context.Context, studentID int64, start, end time.Time) (bool, error)
	InsertReservation(ctx context.Context, r *Reservation) error
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus, at time.Time) (*Reservation, error)

	// Reminder worker
	ListApprovedStartingBetween(ctx context.Context, from, to time.Time) ([]Reservation, error)

	// AcquireLock takes a transaction-scoped lock on key.
	AcquireLock(ctx context.Context, key string) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
	HasEvent(ctx context.Context, reservationID uuid.UUID, eventType string) (bool, error)
}

// Store is a Repository that can also run fn atomically. The Repository handed
// to fn is bound to the transaction.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
