package counseling

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/counseling-scheduling/internal/lock"
)

func TestCreateSingleSlot_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	start := kstTime(8, 10, 0)

	_, err := f.svc.CreateSingleSlot(ctx, asStudentA, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateSingleSlot(ctx, asKim, start, start.Add(90*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	past := kstTime(1, 8, 0)
	_, err = f.svc.CreateSingleSlot(ctx, asKim, past, past.Add(time.Hour))
	assert.ErrorIs(t, err, ErrPastSlot)

	_, err = f.svc.CreateSingleSlot(ctx, AuthContext{ID: 555, Role: RoleProfessor}, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrProfessorNotFound)
}

func TestCreateSingleSlot_AdjacentAndOtherProfessor(t *testing.T) {
	f := newFixture(t)

	f.createSlot(t, asKim, 8, 10)
	f.createSlot(t, asKim, 8, 11) // touching the first one
	f.createSlot(t, asLee, 8, 10) // same hour, different calendar

	start := kstTime(8, 10, 0)
	_, err := f.svc.CreateSingleSlot(context.Background(), asKim, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrSlotConflict)
}

// Scenario C.
func TestCreateWeeklyPattern_TwoWeeks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pattern := WeeklyPattern{
		WeekStart: kstTime(8, 0, 0),
		RepeatEnd: kstTime(21, 0, 0),
		Items: []WeeklyItem{
			{DayOfWeek: time.Monday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}},
			{DayOfWeek: time.Wednesday, Start: TimeOfDay{Hour: 14}, End: TimeOfDay{Hour: 15}},
		},
	}

	slots, err := f.svc.CreateWeeklyPattern(ctx, asKim, pattern)
	require.NoError(t, err)
	require.Len(t, slots, 4)

	want := []time.Time{kstTime(8, 9, 0), kstTime(10, 14, 0), kstTime(15, 9, 0), kstTime(17, 14, 0)}
	for i, s := range slots {
		assert.True(t, s.StartAt.Equal(want[i]), "slot %d starts at %s", i, s.StartAt)
		assert.Equal(t, time.Hour, s.EndAt.Sub(s.StartAt))
		assert.Equal(t, SlotOpen, s.Status)
	}
}

func TestCreateWeeklyPattern_SkipsConflictsAndPast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	existing := f.createSlot(t, asKim, 10, 14)
	f.clock.Set(kstTime(8, 12, 0)) // Monday 09:00 of the first week is already gone

	pattern := WeeklyPattern{
		WeekStart: kstTime(8, 0, 0),
		RepeatEnd: kstTime(21, 0, 0),
		Items: []WeeklyItem{
			{DayOfWeek: time.Monday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}},
			{DayOfWeek: time.Wednesday, Start: TimeOfDay{Hour: 14}, End: TimeOfDay{Hour: 15}},
		},
	}

	slots, err := f.svc.CreateWeeklyPattern(ctx, asKim, pattern)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].StartAt.Equal(kstTime(15, 9, 0)))
	assert.True(t, slots[1].StartAt.Equal(kstTime(17, 14, 0)))

	mine, err := f.svc.GetMySlots(ctx, asKim, kstTime(8, 0, 0), kstTime(21, 0, 0))
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, existing.ID, mine[0].ID)
}

func TestCreateWeeklyPattern_ClipsToRepeatEnd(t *testing.T) {
	f := newFixture(t)

	// Wednesday to Tuesday is a single window: that Wednesday and the next Monday.
	pattern := WeeklyPattern{
		WeekStart: kstTime(10, 0, 0),
		RepeatEnd: kstTime(16, 0, 0),
		Items: []WeeklyItem{
			{DayOfWeek: time.Monday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}},
			{DayOfWeek: time.Wednesday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}},
		},
	}

	slots, err := f.svc.CreateWeeklyPattern(context.Background(), asKim, pattern)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].StartAt.Equal(kstTime(10, 9, 0)))
	assert.True(t, slots[1].StartAt.Equal(kstTime(15, 9, 0)))
}

func TestCreateWeeklyPattern_Failures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mon := WeeklyItem{DayOfWeek: time.Monday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}}
	wed := WeeklyItem{DayOfWeek: time.Wednesday, Start: TimeOfDay{Hour: 14}, End: TimeOfDay{Hour: 15}}

	t.Run("nothing fits", func(t *testing.T) {
		_, err := f.svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
			WeekStart: kstTime(8, 0, 0),
			RepeatEnd: kstTime(9, 0, 0),
			Items:     []WeeklyItem{wed},
		})
		assert.ErrorIs(t, err, ErrNoSlotsGenerated)
	})

	t.Run("no items", func(t *testing.T) {
		_, err := f.svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
			WeekStart: kstTime(8, 0, 0),
			RepeatEnd: kstTime(21, 0, 0),
		})
		assert.ErrorIs(t, err, ErrNoSlotsGenerated)
	})

	t.Run("reversed range", func(t *testing.T) {
		_, err := f.svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
			WeekStart: kstTime(21, 0, 0),
			RepeatEnd: kstTime(8, 0, 0),
			Items:     []WeeklyItem{mon},
		})
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("student", func(t *testing.T) {
		_, err := f.svc.CreateWeeklyPattern(ctx, asStudentA, WeeklyPattern{
			WeekStart: kstTime(8, 0, 0),
			RepeatEnd: kstTime(21, 0, 0),
			Items:     []WeeklyItem{mon},
		})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("invalid item rolls back the batch", func(t *testing.T) {
		short := WeeklyItem{DayOfWeek: time.Wednesday, Start: TimeOfDay{Hour: 14}, End: TimeOfDay{Hour: 14, Minute: 30}}
		_, err := f.svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
			WeekStart: kstTime(8, 0, 0),
			RepeatEnd: kstTime(21, 0, 0),
			Items:     []WeeklyItem{mon, short},
		})
		assert.ErrorIs(t, err, ErrInvalidInterval)

		mine, err := f.svc.GetMySlots(ctx, asKim, kstTime(1, 0, 0), kstTime(31, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, mine)
	})

	t.Run("everything conflicts", func(t *testing.T) {
		_, err := f.svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
			WeekStart: kstTime(8, 0, 0),
			RepeatEnd: kstTime(14, 0, 0),
			Items:     []WeeklyItem{mon},
		})
		require.NoError(t, err)

		_, err = f.svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
			WeekStart: kstTime(8, 0, 0),
			RepeatEnd: kstTime(14, 0, 0),
			Items:     []WeeklyItem{mon},
		})
		assert.ErrorIs(t, err, ErrNoSlotsGenerated)
	})
}

func TestCreateWeeklyPattern_SkipMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conflicts := weeklySkipped.WithLabelValues(skipConflict)

	mon := WeeklyItem{DayOfWeek: time.Monday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}}
	tue := WeeklyItem{DayOfWeek: time.Tuesday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 10}}
	pattern := WeeklyPattern{WeekStart: kstTime(8, 0, 0), RepeatEnd: kstTime(14, 0, 0), Items: []WeeklyItem{mon}}

	_, err := f.svc.CreateWeeklyPattern(ctx, asKim, pattern)
	require.NoError(t, err)

	// a batch that creates nothing leaves the counter alone
	before := testutil.ToFloat64(conflicts)
	_, err = f.svc.CreateWeeklyPattern(ctx, asKim, pattern)
	require.ErrorIs(t, err, ErrNoSlotsGenerated)
	assert.Equal(t, before, testutil.ToFloat64(conflicts))

	pattern.Items = []WeeklyItem{mon, tue}
	created, err := f.svc.CreateWeeklyPattern(ctx, asKim, pattern)
	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(conflicts))
}

func TestCreateWeeklyPattern_DSTFallBack(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	f := newFixture(t)
	cfg := f.svc.cfg
	cfg.Location = ny
	svc := NewService(f.store, lock.NewLocalLocker(), cfg, nil,
		WithClock(func() time.Time { return time.Date(2025, 10, 20, 12, 0, 0, 0, ny) }))

	invalid := weeklySkipped.WithLabelValues(skipInvalid)
	before := testutil.ToFloat64(invalid)

	// 01:00-02:00 on 2025-11-02 spans two real hours in New York
	slots, err := svc.CreateWeeklyPattern(ctx, asKim, WeeklyPattern{
		WeekStart: time.Date(2025, 10, 26, 0, 0, 0, 0, ny),
		RepeatEnd: time.Date(2025, 11, 8, 0, 0, 0, 0, ny),
		Items: []WeeklyItem{
			{DayOfWeek: time.Sunday, Start: TimeOfDay{Hour: 1}, End: TimeOfDay{Hour: 2}},
		},
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, time.Date(2025, 10, 26, 1, 0, 0, 0, ny).Equal(slots[0].StartAt))
	assert.Equal(t, before+1, testutil.ToFloat64(invalid))
}

func TestGetSlots_RangeAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	late := f.createSlot(t, asKim, 9, 15)
	early := f.createSlot(t, asKim, 8, 23)
	f.createSlot(t, asKim, 12, 10) // outside the queried range
	f.createSlot(t, asLee, 8, 10)

	_, err := f.svc.ReserveSlot(ctx, asStudentA, early.ID, nil)
	require.NoError(t, err)

	mine, err := f.svc.GetMySlots(ctx, asKim, kstTime(8, 0, 0), kstTime(9, 0, 0))
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, early.ID, mine[0].ID)
	assert.Equal(t, SlotReserved, mine[0].Status)
	assert.Equal(t, late.ID, mine[1].ID)

	open, err := f.svc.GetOpenSlots(ctx, profKim, kstTime(8, 0, 0), kstTime(9, 0, 0))
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, late.ID, open[0].ID)

	_, err = f.svc.GetOpenSlots(ctx, profKim, kstTime(9, 0, 0), kstTime(8, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.svc.GetOpenSlots(ctx, 555, kstTime(8, 0, 0), kstTime(9, 0, 0))
	assert.ErrorIs(t, err, ErrProfessorNotFound)

	_, err = f.svc.GetMySlots(ctx, asStudentA, kstTime(8, 0, 0), kstTime(9, 0, 0))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("owner deletes open slot", func(t *testing.T) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)

		require.NoError(t, f.svc.DeleteSlot(ctx, asKim, slot.ID))
		_, err := f.store.GetSlotByID(ctx, slot.ID)
		assert.ErrorIs(t, err, ErrSlotNotFound)
		assert.Equal(t, []string{EventSlotCreated, EventSlotDeleted}, f.eventTypes())
	})

	t.Run("admin may delete", func(t *testing.T) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)
		assert.NoError(t, f.svc.DeleteSlot(ctx, asAdmin, slot.ID))
	})

	t.Run("other professor is forbidden", func(t *testing.T) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)
		assert.ErrorIs(t, f.svc.DeleteSlot(ctx, asLee, slot.ID), ErrForbidden)
	})

	t.Run("unknown slot", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.DeleteSlot(ctx, asKim, uuid.New()), ErrSlotNotFound)
	})

	t.Run("ended slot", func(t *testing.T) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)
		f.clock.Set(kstTime(8, 11, 0))
		assert.ErrorIs(t, f.svc.DeleteSlot(ctx, asKim, slot.ID), ErrPastSlot)
	})

	t.Run("active reservation", func(t *testing.T) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)
		_, err := f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.DeleteSlot(ctx, asKim, slot.ID), ErrSlotHasReservations)
	})

	// Scenario D.
	t.Run("canceled history still blocks", func(t *testing.T) {
		f := newFixture(t)
		slot := f.createSlot(t, asKim, 8, 10)
		res, err := f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
		require.NoError(t, err)
		_, err = f.svc.CancelReservation(ctx, asStudentA, res.ID)
		require.NoError(t, err)

		assert.ErrorIs(t, f.svc.DeleteSlot(ctx, asKim, slot.ID), ErrSlotHasReservations)
	})
}

func TestAttachMeeting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slot := f.createSlot(t, asKim, 8, 10)

	_, err := f.svc.AttachMeeting(ctx, asKim, slot.ID, 77)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ReserveSlot(ctx, asStudentA, slot.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.AttachMeeting(ctx, asLee, slot.ID, 77)
	assert.ErrorIs(t, err, ErrForbidden)

	v, err := f.svc.AttachMeeting(ctx, asKim, slot.ID, 77)
	require.NoError(t, err)
	require.NotNil(t, v.MeetingID)
	assert.Equal(t, int64(77), *v.MeetingID)
	assert.Equal(t, SlotReserved, v.Status)
}
