package counseling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// PgStore runs a PgRepository against the pool, or against a single transaction inside WithinTx.
type PgStore struct {
	*PgRepository
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{PgRepository: NewPgRepository(pool), pool: pool}
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const (
	slotColumns = `s.id, s.professor_id, s.start_at, s.end_at, s.status, s.meeting_id, s.created_at, s.updated_at, p.name`

	reservationColumns = `r.id, r.slot_id, r.student_id, r.status, r.memo, r.created_at, r.updated_at, r.canceled_at,
		st.name, s.start_at, s.end_at`

	reservationJoins = `
		JOIN students st ON st.id = r.student_id
		JOIN counseling_slots s ON s.id = r.slot_id`
)

// Helpers

func scanProfessor(row pgx.Row) (*Professor, error) {
	var p Professor

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.DepartmentID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessorNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanStudent(row pgx.Row) (*Student, error) {
	var st Student

	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Email,
		&st.DepartmentID,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &st, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var status string

	err := row.Scan(
		&s.ID,
		&s.ProfessorID,
		&s.StartAt,
		&s.EndAt,
		&status,
		&s.MeetingID,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ProfessorName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Status = SlotStatus(status)
	return &s, nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var status string

	err := row.Scan(
		&r.ID,
		&r.SlotID,
		&r.StudentID,
		&status,
		&r.Memo,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.CanceledAt,
		&r.StudentName,
		&r.SlotStartAt,
		&r.SlotEndAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	r.Status = ReservationStatus(status)
	return &r, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	result := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()

	result := []Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// translatePgError maps constraint violations onto domain errors.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01": // exclusion_violation
		return fmt.Errorf("%w: %s", ErrSlotConflict, pgErr.ConstraintName)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", ErrSlotNotOpen, pgErr.ConstraintName)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s", ErrSlotHasReservations, pgErr.ConstraintName)
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", ErrInvalidInterval, pgErr.ConstraintName)
	}
	return err
}

// Interface methods

func (r *PgRepository) GetProfessorByID(ctx context.Context, id int64) (*Professor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, department_id, created_at, updated_at
		FROM professors
		WHERE id = $1
	`, id)
	return scanProfessor(row)
}

func (r *PgRepository) GetStudentByID(ctx context.Context, id int64) (*Student, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, department_id, created_at, updated_at
		FROM students
		WHERE id = $1
	`, id)
	return scanStudent(row)
}

func (r *PgRepository) ListProfessorsByDepartment(ctx context.Context, departmentID int64) ([]Professor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, email, department_id, created_at, updated_at
		FROM professors
		WHERE department_id = $1
		ORDER BY name, id
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Professor{}
	for rows.Next() {
		p, err := scanProfessor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM counseling_slots s
		JOIN professors p ON p.id = s.professor_id
		WHERE s.id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM counseling_slots s
		JOIN professors p ON p.id = s.professor_id
		WHERE s.id = $1
		FOR UPDATE OF s
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByProfessor(ctx context.Context, professorID int64, from, to time.Time, status *SlotStatus) ([]Slot, error) {
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM counseling_slots s
		JOIN professors p ON p.id = s.professor_id
		WHERE s.professor_id = $1
		  AND s.start_at >= $2
		  AND s.start_at < $3
		  AND ($4::text IS NULL OR s.status = $4)
		ORDER BY s.start_at
	`, professorID, from, to, statusArg)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ProfessorHasOverlap(ctx context.Context, professorID int64, start, end time.Time, excludeSlotID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM counseling_slots
			WHERE professor_id = $1
			  AND start_at < $3
			  AND end_at > $2
			  AND ($4::uuid IS NULL OR id <> $4)
		)
	`, professorID, start, end, excludeSlotID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check professor overlap: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) InsertSlot(ctx context.Context, slot *Slot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO counseling_slots (id, professor_id, start_at, end_at, status, meeting_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, slot.ID, slot.ProfessorID, slot.StartAt, slot.EndAt, string(slot.Status), slot.MeetingID, slot.CreatedAt, slot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert slot: %w", translatePgError(err))
	}
	return nil
}

// UpdateSlotStatus moves a slot from one status to another. A slot returning
// to OPEN loses its meeting room.
func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus, at time.Time) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		WITH s AS (
			UPDATE counseling_slots
			SET status = $2,
			    meeting_id = CASE WHEN $2 = 'OPEN' THEN NULL ELSE meeting_id END,
			    updated_at = $4
			WHERE id = $1
			  AND status = $3
			RETURNING *
		)
		SELECT `+slotColumns+`
		FROM s
		JOIN professors p ON p.id = s.professor_id
	`, id, string(to), string(from), at)
	return scanSlot(row)
}

func (r *PgRepository) SetSlotMeeting(ctx context.Context, id uuid.UUID, meetingID int64, at time.Time) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		WITH s AS (
			UPDATE counseling_slots
			SET meeting_id = $2,
			    updated_at = $3
			WHERE id = $1
			RETURNING *
		)
		SELECT `+slotColumns+`
		FROM s
		JOIN professors p ON p.id = s.professor_id
	`, id, meetingID, at)
	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM counseling_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", translatePgError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM counseling_reservations r`+reservationJoins+`
		WHERE r.id = $1
	`, id)
	return scanReservation(row)
}

func (r *PgRepository) ListReservationsBySlot(ctx context.Context, slotID uuid.UUID) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM counseling_reservations r`+reservationJoins+`
		WHERE r.slot_id = $1
		ORDER BY r.created_at, r.id
	`, slotID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PgRepository) CountActiveReservationsBySlot(ctx context.Context, slotID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM counseling_reservations
		WHERE slot_id = $1
		  AND status IN ('RESERVED', 'APPROVED')
	`, slotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return n, nil
}

func (r *PgRepository) SlotHasReservations(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM counseling_reservations WHERE slot_id = $1)
	`, slotID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot reservations: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) StudentHasOverlap(ctx context.Context, studentID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM counseling_reservations r
			JOIN counseling_slots s ON s.id = r.slot_id
			WHERE r.student_id = $1
			  AND r.status IN ('RESERVED', 'APPROVED')
			  AND s.start_at < $3
			  AND s.end_at > $2
		)
	`, studentID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check student overlap: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) InsertReservation(ctx context.Context, res *Reservation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO counseling_reservations (id, slot_id, student_id, status, memo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.ID, res.SlotID, res.StudentID, string(res.Status), res.Memo, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", translatePgError(err))
	}
	return nil
}

func (r *PgRepository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus, at time.Time) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		WITH r AS (
			UPDATE counseling_reservations
			SET status = $2,
			    updated_at = $4,
			    canceled_at = CASE WHEN $2 = 'CANCELED' THEN $4 ELSE canceled_at END
			WHERE id = $1
			  AND status = $3
			RETURNING *
		)
		SELECT `+reservationColumns+`
		FROM r`+reservationJoins+`
	`, id, string(to), string(from), at)
	return scanReservation(row)
}

func (r *PgRepository) ListApprovedStartingBetween(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM counseling_reservations r`+reservationJoins+`
		WHERE r.status = 'APPROVED'
		  AND s.start_at >= $1
		  AND s.start_at < $2
		ORDER BY s.start_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PgRepository) AcquireLock(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, slot_id, reservation_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.SlotID, ev.ReservationID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) HasEvent(ctx context.Context, reservationID uuid.UUID, eventType string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM event_logs WHERE reservation_id = $1 AND event_type = $2
		)
	`, reservationID, eventType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event log: %w", err)
	}
	return exists, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
