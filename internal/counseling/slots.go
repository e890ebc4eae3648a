package counseling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/lock"
)

// WeeklyItem is one recurring hour in a weekly pattern.
type WeeklyItem struct {
	DayOfWeek time.Weekday
	Start     TimeOfDay
	End       TimeOfDay
}

// validate checks the item's wall-clock hours on a day without DST transitions.
func (it WeeklyItem) validate() error {
	day := time.Date(2000, 1, 3, 0, 0, 0, 0, time.UTC)
	if err := ValidateSlotInterval(it.Start.On(day, time.UTC), it.End.On(day, time.UTC)); err != nil {
		return fmt.Errorf("%s %s-%s: %w", it.DayOfWeek, it.Start, it.End, err)
	}
	return nil
}

// WeeklyPattern repeats Items every week from WeekStart through RepeatEnd, both inclusive.
type WeeklyPattern struct {
	WeekStart time.Time
	RepeatEnd time.Time
	Items     []WeeklyItem
}

// CreateSingleSlot publishes one OPEN hour on the calling professor's calendar.
func (s *Service) CreateSingleSlot(ctx context.Context, auth AuthContext, start, end time.Time) (view *SlotView, err error) {
	defer observe(opCreateSingleSlot, time.Now(), &err)

	if err := RequireProfessor(auth); err != nil {
		return nil, err
	}
	if err := ValidateSlotInterval(start, end); err != nil {
		return nil, err
	}
	if err := ValidateNotPast(start, s.now()); err != nil {
		return nil, err
	}

	var created *Slot
	err = s.critical(ctx, []string{lock.ProfessorKey(auth.ID)}, func(ctx context.Context, repo Repository) error {
		prof, err := repo.GetProfessorByID(ctx, auth.ID)
		if err != nil {
			return err
		}
		if err := ensureProfessorFree(ctx, repo, prof.ID, start, end, nil); err != nil {
			return err
		}
		slot, err := s.insertSlot(ctx, repo, prof, start, end)
		if err != nil {
			return err
		}
		created = slot
		return nil
	})
	if err != nil {
		s.logFailure(opCreateSingleSlot, err, zap.Int64("professor_id", auth.ID))
		return nil, err
	}

	s.logger.Info("slot created",
		zap.String("slot_id", created.ID.String()),
		zap.Int64("professor_id", created.ProfessorID),
		zap.Time("start_at", created.StartAt),
	)
	v := toSlotView(created)
	return &v, nil
}

// CreateWeeklyPattern creates every occurrence of the pattern that is still in
// the future and free on the professor's calendar. Other occurrences are
// skipped; only a pattern that yields nothing at all is an error.
func (s *Service) CreateWeeklyPattern(ctx context.Context, auth AuthContext, p WeeklyPattern) (views []SlotView, err error) {
	defer observe(opCreateWeeklyPattern, time.Now(), &err)

	if err := RequireProfessor(auth); err != nil {
		return nil, err
	}
	if err := ValidateDateRange(p.WeekStart, p.RepeatEnd); err != nil {
		return nil, err
	}

	for _, item := range p.Items {
		if err := item.validate(); err != nil {
			return nil, err
		}
	}

	loc := s.loc()
	weekStart := DateOf(p.WeekStart, loc)
	repeatEnd := DateOf(p.RepeatEnd, loc)
	now := s.now()

	var created []Slot
	var skipped map[string]int
	err = s.critical(ctx, []string{lock.ProfessorKey(auth.ID)}, func(ctx context.Context, repo Repository) error {
		created, skipped = nil, map[string]int{}

		prof, err := repo.GetProfessorByID(ctx, auth.ID)
		if err != nil {
			return err
		}

		for cursor := weekStart; !cursor.After(repeatEnd); cursor = cursor.AddDate(0, 0, 7) {
			windowEnd := cursor.AddDate(0, 0, 6)

			for _, item := range p.Items {
				date := nextOrSame(cursor, item.DayOfWeek)
				if date.After(windowEnd) || date.After(repeatEnd) {
					continue
				}

				start := item.Start.On(date, loc)
				end := item.End.On(date, loc)
				// a DST transition can stretch or shrink one occurrence
				if ValidateSlotInterval(start, end) != nil {
					skipped[skipInvalid]++
					continue
				}
				if start.Before(now) {
					skipped[skipPast]++
					continue
				}
				overlap, err := repo.ProfessorHasOverlap(ctx, prof.ID, start, end, nil)
				if err != nil {
					return err
				}
				if overlap {
					skipped[skipConflict]++
					continue
				}

				slot, err := s.insertSlot(ctx, repo, prof, start, end)
				if err != nil {
					return err
				}
				created = append(created, *slot)
			}
		}

		if len(created) == 0 {
			return fmt.Errorf("%w: %s to %s", ErrNoSlotsGenerated,
				weekStart.Format(time.DateOnly), repeatEnd.Format(time.DateOnly))
		}
		return nil
	})
	if err != nil {
		s.logFailure(opCreateWeeklyPattern, err, zap.Int64("professor_id", auth.ID))
		return nil, err
	}

	total := 0
	for reason, n := range skipped {
		weeklySkipped.WithLabelValues(reason).Add(float64(n))
		total += n
	}

	sort.Slice(created, func(i, j int) bool { return created[i].StartAt.Before(created[j].StartAt) })

	s.logger.Info("weekly pattern created",
		zap.Int64("professor_id", auth.ID),
		zap.Int("created", len(created)),
		zap.Int("skipped", total),
	)
	return toSlotViews(created), nil
}

func (s *Service) insertSlot(ctx context.Context, repo Repository, prof *Professor, start, end time.Time) (*Slot, error) {
	now := s.now()
	slot := &Slot{
		ID:            uuid.New(),
		ProfessorID:   prof.ID,
		StartAt:       start,
		EndAt:         end,
		Status:        SlotOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
		ProfessorName: prof.Name,
	}
	if err := repo.InsertSlot(ctx, slot); err != nil {
		return nil, err
	}

	err := s.logEvent(ctx, repo, EventSlotCreated, &slot.ID, nil, map[string]any{
		"professor_id": prof.ID,
		"start_at":     start,
		"end_at":       end,
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// GetMySlots lists the calling professor's slots starting within the inclusive date range.
func (s *Service) GetMySlots(ctx context.Context, auth AuthContext, from, to time.Time) ([]SlotView, error) {
	if err := RequireProfessor(auth); err != nil {
		return nil, err
	}
	return s.listSlots(ctx, auth.ID, from, to, nil)
}

// GetOpenSlots lists a professor's OPEN slots starting within the inclusive date range.
func (s *Service) GetOpenSlots(ctx context.Context, professorID int64, from, to time.Time) ([]SlotView, error) {
	if _, err := s.store.GetProfessorByID(ctx, professorID); err != nil {
		return nil, err
	}
	open := SlotOpen
	return s.listSlots(ctx, professorID, from, to, &open)
}

func (s *Service) listSlots(ctx context.Context, professorID int64, from, to time.Time, status *SlotStatus) ([]SlotView, error) {
	if err := ValidateDateRange(from, to); err != nil {
		return nil, err
	}
	start, end := dayBounds(from, to, s.loc())

	slots, err := s.store.ListSlotsByProfessor(ctx, professorID, start, end, status)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return toSlotViews(slots), nil
}

// DeleteSlot removes a future slot that has never been reserved.
func (s *Service) DeleteSlot(ctx context.Context, auth AuthContext, slotID uuid.UUID) (err error) {
	defer observe(opDeleteSlot, time.Now(), &err)

	slot, err := s.store.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if err := RequireSlotOwnerOrAdmin(auth, slot); err != nil {
		return err
	}

	keys := []string{lock.SlotKey(slot.ID), lock.ProfessorKey(slot.ProfessorID)}
	err = s.critical(ctx, keys, func(ctx context.Context, repo Repository) error {
		slot, err := repo.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if !slot.EndAt.After(s.now()) {
			return fmt.Errorf("%w: slot %s ended at %s", ErrPastSlot, slot.ID, slot.EndAt.Format(time.RFC3339))
		}

		history, err := repo.SlotHasReservations(ctx, slot.ID)
		if err != nil {
			return err
		}
		if history {
			return fmt.Errorf("%w: slot %s", ErrSlotHasReservations, slot.ID)
		}
		if slot.Status != SlotOpen {
			return fmt.Errorf("%w: slot %s is %s", ErrSlotNotOpen, slot.ID, slot.Status)
		}

		if err := repo.DeleteSlot(ctx, slot.ID); err != nil {
			return err
		}
		return s.logEvent(ctx, repo, EventSlotDeleted, &slot.ID, nil, map[string]any{
			"professor_id": slot.ProfessorID,
			"deleted_by":   auth.ID,
			"role":         auth.Role,
		})
	})
	if err != nil {
		s.logFailure(opDeleteSlot, err, zap.String("slot_id", slotID.String()))
		return err
	}

	s.logger.Info("slot deleted",
		zap.String("slot_id", slotID.String()),
		zap.Int64("professor_id", slot.ProfessorID),
	)
	return nil
}

// AttachMeeting links a live meeting room to a reserved slot.
func (s *Service) AttachMeeting(ctx context.Context, auth AuthContext, slotID uuid.UUID, meetingID int64) (view *SlotView, err error) {
	defer observe(opAttachMeeting, time.Now(), &err)

	slot, err := s.store.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := RequireSlotOwnerOrAdmin(auth, slot); err != nil {
		return nil, err
	}

	var updated *Slot
	err = s.critical(ctx, []string{lock.SlotKey(slotID)}, func(ctx context.Context, repo Repository) error {
		current, err := repo.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if current.Status != SlotReserved {
			return fmt.Errorf("%w: meeting can only be attached to a RESERVED slot, slot is %s",
				ErrInvalidTransition, current.Status)
		}

		updated, err = repo.SetSlotMeeting(ctx, slotID, meetingID, s.now())
		if err != nil {
			return err
		}
		return s.logEvent(ctx, repo, EventMeetingAttached, &slotID, nil, map[string]any{
			"meeting_id": meetingID,
		})
	})
	if err != nil {
		s.logFailure(opAttachMeeting, err, zap.String("slot_id", slotID.String()))
		return nil, err
	}

	s.logger.Info("meeting attached",
		zap.String("slot_id", slotID.String()),
		zap.Int64("meeting_id", meetingID),
	)
	v := toSlotView(updated)
	return &v, nil
}
