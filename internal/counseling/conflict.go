package counseling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ensureProfessorFree fails with ErrSlotConflict when [start, end) intersects
// another slot on the professor's calendar. Callers hold the professor lock.
func ensureProfessorFree(ctx context.Context, repo Repository, professorID int64, start, end time.Time, exclude *uuid.UUID) error {
	overlap, err := repo.ProfessorHasOverlap(ctx, professorID, start, end, exclude)
	if err != nil {
		return err
	}
	if overlap {
		return fmt.Errorf("%w: professor %d already has a slot between %s and %s", ErrSlotConflict,
			professorID, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// ensureStudentFree fails with ErrStudentOverlap when the student holds an
// active reservation intersecting [start, end). Callers hold the student lock.
func ensureStudentFree(ctx context.Context, repo Repository, studentID int64, start, end time.Time) error {
	overlap, err := repo.StudentHasOverlap(ctx, studentID, start, end)
	if err != nil {
		return err
	}
	if overlap {
		return fmt.Errorf("%w: student %d", ErrStudentOverlap, studentID)
	}
	return nil
}
