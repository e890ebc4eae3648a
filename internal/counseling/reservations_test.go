package counseling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveSlot_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)

	_, err := f.svc.ReserveSlot(ctx, asKim, slot.ID, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ReserveSlot(ctx, asStudentA, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = f.svc.ReserveSlot(ctx, AuthContext{ID: 999, Role: RoleStudent}, slot.ID, nil)
	assert.ErrorIs(t, err, ErrStudentNotFound)

	_, err = f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.ReserveSlot(ctx, asStudentB, slot.ID, nil)
	assert.ErrorIs(t, err, ErrSlotNotOpen)
}

func TestReserveSlot_PastSlot(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)
	f.clock.Set(kstTime(8, 10, 1))

	_, err := f.svc.ReserveSlot(context.Background(), asStudentA, slot.ID, nil)
	assert.ErrorIs(t, err, ErrPastSlot)
}

func TestReserveSlot_StudentOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kimSlot := f.createSlot(t, asKim, 8, 10)
	leeSlot := f.createSlot(t, asLee, 8, 10)

	first, err := f.svc.ReserveSlot(ctx, asStudentA, kimSlot.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.ReserveSlot(ctx, asStudentA, leeSlot.ID, nil)
	assert.ErrorIs(t, err, ErrStudentOverlap)

	// an approved booking still blocks the window
	_, err = f.svc.ApproveReservation(ctx, asKim, first.ID)
	require.NoError(t, err)
	_, err = f.svc.ReserveSlot(ctx, asStudentA, leeSlot.ID, nil)
	assert.ErrorIs(t, err, ErrStudentOverlap)

	_, err = f.svc.CancelReservation(ctx, asStudentA, first.ID)
	require.NoError(t, err)
	_, err = f.svc.ReserveSlot(ctx, asStudentA, leeSlot.ID, nil)
	assert.NoError(t, err)
}

func TestReserveSlot_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)

	const n = 25
	for i := 0; i < n; i++ {
		id := int64(3000 + i)
		f.store.AddStudent(Student{ID: id, Name: fmt.Sprintf("student-%d", i), DepartmentID: 1})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		losses  int
		unknown []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.svc.ReserveSlot(ctx, AuthContext{ID: id, Role: RoleStudent}, slot.ID, nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotNotOpen), errors.Is(err, ErrSlotConflict):
				losses++
			default:
				unknown = append(unknown, err)
			}
		}(int64(3000 + i))
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, losses)

	history, err := f.svc.GetSlotReservations(ctx, asKim, slot.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReserveSlot_ConcurrentSameStudentOverlapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	slots := []SlotView{
		f.createSlot(t, asKim, 8, 10),
		f.createSlot(t, asLee, 8, 10),
		f.createSlot(t, AuthContext{ID: profPark, Role: RoleProfessor}, 8, 10),
	}

	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _ = f.svc.ReserveSlot(ctx, asStudentA, id, nil)
		}(s.ID)
	}
	wg.Wait()

	active := 0
	for _, s := range slots {
		n, err := f.store.CountActiveReservationsBySlot(ctx, s.ID)
		require.NoError(t, err)
		active += n
	}
	assert.Equal(t, 1, active)
}

func TestCancelReservation(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, SlotView, *ReservationView) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)
		res, err := f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
		require.NoError(t, err)
		return f, slot, res
	}

	t.Run("unknown reservation", func(t *testing.T) {
		f, _, _ := setup(t)
		_, err := f.svc.CancelReservation(ctx, asStudentA, uuid.New())
		assert.ErrorIs(t, err, ErrReservationNotFound)
	})

	t.Run("other student", func(t *testing.T) {
		f, _, res := setup(t)
		_, err := f.svc.CancelReservation(ctx, asStudentB, res.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("professor", func(t *testing.T) {
		f, _, res := setup(t)
		_, err := f.svc.CancelReservation(ctx, asKim, res.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("twice", func(t *testing.T) {
		f, slot, res := setup(t)
		_, err := f.svc.CancelReservation(ctx, asStudentA, res.ID)
		require.NoError(t, err)

		_, err = f.svc.CancelReservation(ctx, asStudentA, res.ID)
		assert.ErrorIs(t, err, ErrReservationNotFound)

		stored, err := f.store.GetSlotByID(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, SlotOpen, stored.Status)
	})

	t.Run("meeting started", func(t *testing.T) {
		f, slot, res := setup(t)
		f.clock.Set(kstTime(8, 10, 0))
		_, err := f.svc.CancelReservation(ctx, asStudentA, res.ID)
		assert.ErrorIs(t, err, ErrPastMeeting)

		stored, err := f.store.GetSlotByID(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, SlotReserved, stored.Status)
	})

	t.Run("approved reservation reopens slot", func(t *testing.T) {
		f, slot, res := setup(t)
		_, err := f.svc.ApproveReservation(ctx, asKim, res.ID)
		require.NoError(t, err)

		canceled, err := f.svc.CancelReservation(ctx, asStudentA, res.ID)
		require.NoError(t, err)
		assert.Equal(t, ReservationCanceled, canceled.Status)

		stored, err := f.store.GetSlotByID(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, SlotOpen, stored.Status)
	})

	t.Run("reopened slot drops meeting room", func(t *testing.T) {
		f, slot, res := setup(t)
		_, err := f.svc.AttachMeeting(ctx, asKim, slot.ID, 77)
		require.NoError(t, err)

		_, err = f.svc.CancelReservation(ctx, asStudentA, res.ID)
		require.NoError(t, err)

		stored, err := f.store.GetSlotByID(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, SlotOpen, stored.Status)
		assert.Nil(t, stored.MeetingID)

		_, err = f.svc.ReserveSlot(ctx, asStudentB, slot.ID, nil)
		require.NoError(t, err)
		mine, err := f.svc.GetMySlots(ctx, asKim, kstTime(8, 0, 0), kstTime(8, 0, 0))
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, SlotReserved, mine[0].Status)
		assert.Nil(t, mine[0].MeetingID)
	})

	t.Run("slot can be booked again", func(t *testing.T) {
		f, slot, res := setup(t)
		_, err := f.svc.CancelReservation(ctx, asStudentA, res.ID)
		require.NoError(t, err)

		f.clock.Set(kstTime(1, 9, 5))
		again, err := f.svc.ReserveSlot(ctx, asStudentB, slot.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, ReservationReserved, again.Status)

		history, err := f.svc.GetSlotReservations(ctx, asKim, slot.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, ReservationCanceled, history[0].Status)
		assert.Equal(t, ReservationReserved, history[1].Status)
	})
}

func TestApproveReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)
	res, err := f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.ApproveReservation(ctx, asLee, res.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ApproveReservation(ctx, asStudentA, res.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	approved, err := f.svc.ApproveReservation(ctx, asKim, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationApproved, approved.Status)

	_, err = f.svc.ApproveReservation(ctx, asKim, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ApproveReservation(ctx, asKim, uuid.New())
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestApproveReservation_AfterStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)
	res, err := f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
	require.NoError(t, err)

	f.clock.Set(kstTime(8, 10, 30))
	_, err = f.svc.ApproveReservation(ctx, asAdmin, res.ID)
	assert.ErrorIs(t, err, ErrPastMeeting)
}

func TestGetSlotReservations_Policy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)

	_, err := f.svc.GetSlotReservations(ctx, asStudentA, slot.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetSlotReservations(ctx, asAdmin, uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)

	list, err := f.svc.GetSlotReservations(ctx, asAdmin, slot.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSendMeetingReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	slot := f.createSlot(t, asKim, 8, 10)
	other := f.createSlot(t, asKim, 8, 11)

	res, err := f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.ApproveReservation(ctx, asKim, res.ID)
	require.NoError(t, err)

	// reserved but not approved: never reminded
	_, err = f.svc.ReserveSlot(ctx, asStudentB, other.ID, nil)
	require.NoError(t, err)

	f.clock.Set(kstTime(8, 9, 40))
	sent, err := f.svc.SendMeetingReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "too early")

	f.clock.Set(kstTime(8, 9, 49).Add(30 * time.Second))
	sent, err = f.svc.SendMeetingReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = f.svc.SendMeetingReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "already reminded")

	done, err := f.store.HasEvent(ctx, res.ID, EventMeetingReminder)
	require.NoError(t, err)
	assert.True(t, done)
}
