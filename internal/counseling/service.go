package counseling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/config"
	"github.com/hackgods/counseling-scheduling/internal/lock"
)

const (
	EventSlotCreated         = "SLOT_CREATED"
	EventSlotDeleted         = "SLOT_DELETED"
	EventReservationCreated  = "RESERVATION_CREATED"
	EventReservationCanceled = "RESERVATION_CANCELED"
	EventReservationApproved = "RESERVATION_APPROVED"
	EventMeetingAttached     = "MEETING_ATTACHED"
	EventMeetingReminder     = "MEETING_REMINDER"
)

type Service struct {
	store  Store
	locker lock.Locker
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, locker lock.Locker, cfg config.Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		locker: locker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) loc() *time.Location {
	return s.cfg.Loc()
}

// critical runs fn while holding keys in the locker and, inside one store
// transaction, as transaction-scoped store locks.
func (s *Service) critical(ctx context.Context, keys []string, fn func(ctx context.Context, repo Repository) error) error {
	keys = lock.Normalize(keys)

	err := s.locker.WithLocks(ctx, keys, func(lockCtx context.Context) error {
		return s.store.WithinTx(lockCtx, func(txCtx context.Context, repo Repository) error {
			for _, key := range keys {
				if err := repo.AcquireLock(txCtx, key); err != nil {
					return err
				}
			}
			return fn(txCtx, repo)
		})
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("%w: %v", ErrCalendarBusy, err)
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, repo Repository, eventType string, slotID, reservationID *uuid.UUID, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	ev := EventLog{
		EventType:     eventType,
		SlotID:        slotID,
		ReservationID: reservationID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := repo.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("log %s: %w", eventType, err)
	}
	return nil
}

// logFailure reports store and infrastructure failures; domain rejections stay quiet.
func (s *Service) logFailure(op string, err error, fields ...zap.Field) {
	if err == nil || ErrorCode(err) != "internal_error" {
		return
	}
	s.logger.Error(op+" failed", append(fields, zap.Error(err))...)
}
