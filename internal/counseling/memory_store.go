package counseling

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same contract as PgStore.
// Transactions are serialized and rolled back by restoring a snapshot.
type MemoryStore struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	professors   map[int64]Professor
	students     map[int64]Student
	slots        map[uuid.UUID]Slot
	reservations map[uuid.UUID]Reservation
	events       []EventLog
	nextEventID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		professors:   make(map[int64]Professor),
		students:     make(map[int64]Student),
		slots:        make(map[uuid.UUID]Slot),
		reservations: make(map[uuid.UUID]Reservation),
	}
}

func (m *MemoryStore) AddProfessor(p Professor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.professors[p.ID] = p
}

func (m *MemoryStore) AddStudent(s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

// Events returns a copy of the event log in insertion order.
func (m *MemoryStore) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

type memorySnapshot struct {
	slots        map[uuid.UUID]Slot
	reservations map[uuid.UUID]Reservation
	events       []EventLog
	nextEventID  int64
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	snap := memorySnapshot{
		slots:        maps.Clone(m.slots),
		reservations: maps.Clone(m.reservations),
		events:       slices.Clone(m.events),
		nextEventID:  m.nextEventID,
	}
	m.mu.RUnlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.slots = snap.slots
		m.reservations = snap.reservations
		m.events = snap.events
		m.nextEventID = snap.nextEventID
		m.mu.Unlock()
		return err
	}
	return nil
}

// hydrate fills the joined fields; callers hold mu.
func (m *MemoryStore) hydrateSlot(s Slot) Slot {
	s.ProfessorName = m.professors[s.ProfessorID].Name
	return s
}

func (m *MemoryStore) hydrateReservation(r Reservation) Reservation {
	r.StudentName = m.students[r.StudentID].Name
	if s, ok := m.slots[r.SlotID]; ok {
		r.SlotStartAt = s.StartAt
		r.SlotEndAt = s.EndAt
	}
	return r
}

func (m *MemoryStore) GetProfessorByID(_ context.Context, id int64) (*Professor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.professors[id]
	if !ok {
		return nil, ErrProfessorNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetStudentByID(_ context.Context, id int64) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return &s, nil
}

func (m *MemoryStore) ListProfessorsByDepartment(_ context.Context, departmentID int64) ([]Professor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Professor{}
	for _, p := range m.professors {
		if p.DepartmentID == departmentID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *MemoryStore) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s = m.hydrateSlot(s)
	return &s, nil
}

func (m *MemoryStore) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return m.GetSlotByID(ctx, id)
}

func (m *MemoryStore) ListSlotsByProfessor(_ context.Context, professorID int64, from, to time.Time, status *SlotStatus) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Slot{}
	for _, s := range m.slots {
		if s.ProfessorID != professorID || s.StartAt.Before(from) || !s.StartAt.Before(to) {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		result = append(result, m.hydrateSlot(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartAt.Before(result[j].StartAt) })
	return result, nil
}

func (m *MemoryStore) professorOverlap(professorID int64, start, end time.Time, exclude *uuid.UUID) bool {
	for _, s := range m.slots {
		if s.ProfessorID != professorID {
			continue
		}
		if exclude != nil && s.ID == *exclude {
			continue
		}
		if Overlaps(s.StartAt, s.EndAt, start, end) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ProfessorHasOverlap(_ context.Context, professorID int64, start, end time.Time, excludeSlotID *uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.professorOverlap(professorID, start, end, excludeSlotID), nil
}

func (m *MemoryStore) InsertSlot(_ context.Context, slot *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.professors[slot.ProfessorID]; !ok {
		return fmt.Errorf("insert slot: %w", ErrProfessorNotFound)
	}
	if slot.EndAt.Sub(slot.StartAt) != SlotDuration {
		return fmt.Errorf("insert slot: %w", ErrInvalidInterval)
	}
	if m.professorOverlap(slot.ProfessorID, slot.StartAt, slot.EndAt, nil) {
		return fmt.Errorf("insert slot: %w", ErrSlotConflict)
	}
	s := *slot
	s.ProfessorName = ""
	m.slots[s.ID] = s
	return nil
}

func (m *MemoryStore) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus, at time.Time) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || s.Status != from {
		return nil, ErrSlotNotFound
	}
	s.Status = to
	s.UpdatedAt = at
	if to == SlotOpen {
		s.MeetingID = nil
	}
	m.slots[id] = s
	s = m.hydrateSlot(s)
	return &s, nil
}

func (m *MemoryStore) SetSlotMeeting(_ context.Context, id uuid.UUID, meetingID int64, at time.Time) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s.MeetingID = &meetingID
	s.UpdatedAt = at
	m.slots[id] = s
	s = m.hydrateSlot(s)
	return &s, nil
}

func (m *MemoryStore) DeleteSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[id]; !ok {
		return ErrSlotNotFound
	}
	for _, r := range m.reservations {
		if r.SlotID == id {
			return fmt.Errorf("delete slot: %w", ErrSlotHasReservations)
		}
	}
	delete(m.slots, id)
	return nil
}

func (m *MemoryStore) GetReservationByID(_ context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	r = m.hydrateReservation(r)
	return &r, nil
}

func (m *MemoryStore) ListReservationsBySlot(_ context.Context, slotID uuid.UUID) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Reservation{}
	for _, r := range m.reservations {
		if r.SlotID == slotID {
			result = append(result, m.hydrateReservation(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (m *MemoryStore) CountActiveReservationsBySlot(_ context.Context, slotID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.reservations {
		if r.SlotID == slotID && r.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SlotHasReservations(_ context.Context, slotID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.reservations {
		if r.SlotID == slotID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) StudentHasOverlap(_ context.Context, studentID int64, start, end time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.reservations {
		if r.StudentID != studentID || !r.Status.Active() {
			continue
		}
		s, ok := m.slots[r.SlotID]
		if ok && Overlaps(s.StartAt, s.EndAt, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) InsertReservation(_ context.Context, res *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[res.SlotID]; !ok {
		return fmt.Errorf("insert reservation: %w", ErrSlotNotFound)
	}
	if _, ok := m.students[res.StudentID]; !ok {
		return fmt.Errorf("insert reservation: %w", ErrStudentNotFound)
	}
	for _, r := range m.reservations {
		if r.SlotID == res.SlotID && r.Status.Active() {
			return fmt.Errorf("insert reservation: %w", ErrSlotNotOpen)
		}
	}
	r := *res
	r.StudentName, r.SlotStartAt, r.SlotEndAt = "", time.Time{}, time.Time{}
	m.reservations[r.ID] = r
	return nil
}

func (m *MemoryStore) UpdateReservationStatus(_ context.Context, id uuid.UUID, from, to ReservationStatus, at time.Time) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return nil, ErrReservationNotFound
	}
	r.Status = to
	r.UpdatedAt = at
	if to == ReservationCanceled {
		canceledAt := at
		r.CanceledAt = &canceledAt
	}
	m.reservations[id] = r
	r = m.hydrateReservation(r)
	return &r, nil
}

func (m *MemoryStore) ListApprovedStartingBetween(_ context.Context, from, to time.Time) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Reservation{}
	for _, r := range m.reservations {
		if r.Status != ReservationApproved {
			continue
		}
		s, ok := m.slots[r.SlotID]
		if !ok || s.StartAt.Before(from) || !s.StartAt.Before(to) {
			continue
		}
		result = append(result, m.hydrateReservation(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotStartAt.Before(result[j].SlotStartAt) })
	return result, nil
}

// AcquireLock is a no-op: WithinTx already serializes every transaction.
func (m *MemoryStore) AcquireLock(context.Context, string) error {
	return nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) HasEvent(_ context.Context, reservationID uuid.UUID, eventType string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ev := range m.events {
		if ev.EventType == eventType && ev.ReservationID != nil && *ev.ReservationID == reservationID {
			return true, nil
		}
	}
	return false, nil
}
