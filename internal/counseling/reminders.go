package counseling

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/lock"
)

// SendMeetingReminders is intended to be called by the worker periodically.
// It records one MEETING_REMINDER event for every APPROVED reservation whose
// slot starts in [now+lead, now+lead+interval) and returns how many it recorded.
func (s *Service) SendMeetingReminders(ctx context.Context) (sent int, err error) {
	defer observe(opMeetingReminders, time.Now(), &err)

	interval := s.cfg.WorkerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	from := s.now().Add(s.cfg.ReminderLead)
	to := from.Add(interval)

	due, err := s.store.ListApprovedStartingBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("find upcoming approved reservations: %w", err)
	}

	for _, res := range due {
		recorded := false
		err := s.critical(ctx, []string{lock.SlotKey(res.SlotID)}, func(ctx context.Context, repo Repository) error {
			done, err := repo.HasEvent(ctx, res.ID, EventMeetingReminder)
			if err != nil || done {
				return err
			}
			recorded = true
			return s.logEvent(ctx, repo, EventMeetingReminder, &res.SlotID, &res.ID, map[string]any{
				"student_id": res.StudentID,
				"start_at":   res.SlotStartAt,
			})
		})
		if err != nil {
			s.logger.Warn("failed to record meeting reminder",
				zap.String("reservation_id", res.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if recorded {
			sent++
		}
	}

	if sent > 0 {
		s.logger.Info("meeting reminders recorded", zap.Int("count", sent))
	}
	return sent, nil
}
