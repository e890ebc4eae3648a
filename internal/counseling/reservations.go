package counseling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/lock"
)

// ReserveSlot claims an OPEN slot for the calling student. The reservation
// insert and the slot flip to RESERVED commit together.
func (s *Service) ReserveSlot(ctx context.Context, auth AuthContext, slotID uuid.UUID, memo *string) (view *ReservationView, err error) {
	defer observe(opReserveSlot, time.Now(), &err)

	if err := RequireStudent(auth); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSlotByID(ctx, slotID); err != nil {
		return nil, err
	}
	memo = cleanMemo(memo)

	var created *Reservation
	keys := []string{lock.SlotKey(slotID), lock.StudentKey(auth.ID)}
	err = s.critical(ctx, keys, func(ctx context.Context, repo Repository) error {
		slot, err := repo.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.Status != SlotOpen {
			return fmt.Errorf("%w: slot %s is %s", ErrSlotNotOpen, slot.ID, slot.Status)
		}
		now := s.now()
		if err := ValidateNotPast(slot.StartAt, now); err != nil {
			return err
		}

		student, err := repo.GetStudentByID(ctx, auth.ID)
		if err != nil {
			return err
		}
		if err := ensureStudentFree(ctx, repo, student.ID, slot.StartAt, slot.EndAt); err != nil {
			return err
		}

		res := &Reservation{
			ID:          uuid.New(),
			SlotID:      slot.ID,
			StudentID:   student.ID,
			Status:      ReservationReserved,
			Memo:        memo,
			CreatedAt:   now,
			UpdatedAt:   now,
			StudentName: student.Name,
			SlotStartAt: slot.StartAt,
			SlotEndAt:   slot.EndAt,
		}
		if err := repo.InsertReservation(ctx, res); err != nil {
			return err
		}
		if _, err := repo.UpdateSlotStatus(ctx, slot.ID, SlotOpen, SlotReserved, now); err != nil {
			return fmt.Errorf("mark slot reserved: %w", err)
		}

		created = res
		return s.logEvent(ctx, repo, EventReservationCreated, &slot.ID, &res.ID, map[string]any{
			"student_id":   student.ID,
			"professor_id": slot.ProfessorID,
			"start_at":     slot.StartAt,
		})
	})
	if err != nil {
		s.logFailure(opReserveSlot, err, zap.String("slot_id", slotID.String()), zap.Int64("student_id", auth.ID))
		return nil, err
	}

	s.logger.Info("slot reserved",
		zap.String("reservation_id", created.ID.String()),
		zap.String("slot_id", slotID.String()),
		zap.Int64("student_id", auth.ID),
	)
	v := toReservationView(created)
	return &v, nil
}

// CancelReservation cancels the calling student's reservation before the
// meeting starts and reopens the slot once nothing else holds it.
func (s *Service) CancelReservation(ctx context.Context, auth AuthContext, reservationID uuid.UUID) (view *ReservationView, err error) {
	defer observe(opCancelReservation, time.Now(), &err)

	if err := RequireStudent(auth); err != nil {
		return nil, err
	}
	res, err := s.store.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.StudentID != auth.ID {
		return nil, fmt.Errorf("%w: reservation %s", ErrNotOwner, reservationID)
	}

	var canceled *Reservation
	reopened := false
	keys := []string{lock.SlotKey(res.SlotID), lock.StudentKey(auth.ID)}
	err = s.critical(ctx, keys, func(ctx context.Context, repo Repository) error {
		reopened = false

		current, err := repo.GetReservationByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if current.Status == ReservationCanceled {
			return fmt.Errorf("%w: reservation %s is already canceled", ErrReservationNotFound, reservationID)
		}

		slot, err := repo.LockSlot(ctx, current.SlotID)
		if err != nil {
			return err
		}
		now := s.now()
		if !slot.StartAt.After(now) {
			return fmt.Errorf("%w: slot %s started at %s", ErrPastMeeting, slot.ID, slot.StartAt.Format(time.RFC3339))
		}

		canceled, err = repo.UpdateReservationStatus(ctx, current.ID, current.Status, ReservationCanceled, now)
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}

		active, err := repo.CountActiveReservationsBySlot(ctx, slot.ID)
		if err != nil {
			return err
		}
		if active == 0 && slot.Status == SlotReserved {
			if _, err := repo.UpdateSlotStatus(ctx, slot.ID, SlotReserved, SlotOpen, now); err != nil {
				return fmt.Errorf("reopen slot: %w", err)
			}
			reopened = true
		}

		return s.logEvent(ctx, repo, EventReservationCanceled, &slot.ID, &current.ID, map[string]any{
			"student_id":    auth.ID,
			"previous":      current.Status,
			"slot_reopened": reopened,
		})
	})
	if err != nil {
		s.logFailure(opCancelReservation, err, zap.String("reservation_id", reservationID.String()))
		return nil, err
	}

	s.logger.Info("reservation canceled",
		zap.String("reservation_id", reservationID.String()),
		zap.String("slot_id", canceled.SlotID.String()),
		zap.Int64("student_id", auth.ID),
		zap.Bool("slot_reopened", reopened),
	)
	v := toReservationView(canceled)
	return &v, nil
}

// ApproveReservation is the slot owner's confirmation of a RESERVED booking.
func (s *Service) ApproveReservation(ctx context.Context, auth AuthContext, reservationID uuid.UUID) (view *ReservationView, err error) {
	defer observe(opApproveReservation, time.Now(), &err)

	res, err := s.store.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	slot, err := s.store.GetSlotByID(ctx, res.SlotID)
	if err != nil {
		return nil, err
	}
	if err := RequireSlotOwnerOrAdmin(auth, slot); err != nil {
		return nil, err
	}

	var approved *Reservation
	err = s.critical(ctx, []string{lock.SlotKey(slot.ID)}, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetReservationByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if current.Status != ReservationReserved {
			return fmt.Errorf("%w: reservation %s is %s", ErrInvalidTransition, reservationID, current.Status)
		}

		locked, err := repo.LockSlot(ctx, current.SlotID)
		if err != nil {
			return err
		}
		now := s.now()
		if !locked.StartAt.After(now) {
			return fmt.Errorf("%w: slot %s started at %s", ErrPastMeeting, locked.ID, locked.StartAt.Format(time.RFC3339))
		}

		approved, err = repo.UpdateReservationStatus(ctx, current.ID, ReservationReserved, ReservationApproved, now)
		if err != nil {
			return fmt.Errorf("approve reservation: %w", err)
		}
		return s.logEvent(ctx, repo, EventReservationApproved, &locked.ID, &current.ID, map[string]any{
			"approved_by": auth.ID,
			"role":        auth.Role,
		})
	})
	if err != nil {
		s.logFailure(opApproveReservation, err, zap.String("reservation_id", reservationID.String()))
		return nil, err
	}

	s.logger.Info("reservation approved",
		zap.String("reservation_id", reservationID.String()),
		zap.String("slot_id", slot.ID.String()),
		zap.Int64("professor_id", slot.ProfessorID),
	)
	v := toReservationView(approved)
	return &v, nil
}

// GetSlotReservations returns the full reservation history of a slot.
func (s *Service) GetSlotReservations(ctx context.Context, auth AuthContext, slotID uuid.UUID) ([]ReservationView, error) {
	slot, err := s.store.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := RequireSlotOwnerOrAdmin(auth, slot); err != nil {
		return nil, err
	}

	list, err := s.store.ListReservationsBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by slot: %w", err)
	}
	out := make([]ReservationView, 0, len(list))
	for i := range list {
		out = append(out, toReservationView(&list[i]))
	}
	return out, nil
}

// GetMyMajorProfessors lists the professors of the calling student's department.
func (s *Service) GetMyMajorProfessors(ctx context.Context, auth AuthContext) ([]Professor, error) {
	if err := RequireStudent(auth); err != nil {
		return nil, err
	}
	student, err := s.store.GetStudentByID(ctx, auth.ID)
	if err != nil {
		return nil, err
	}
	profs, err := s.store.ListProfessorsByDepartment(ctx, student.DepartmentID)
	if err != nil {
		return nil, fmt.Errorf("list professors: %w", err)
	}
	return profs, nil
}

func cleanMemo(memo *string) *string {
	if memo == nil {
		return nil
	}
	m := strings.TrimSpace(*memo)
	if m == "" {
		return nil
	}
	return &m
}
