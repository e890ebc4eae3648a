package counseling

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslatePgError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"23P01", ErrSlotConflict},
		{"23505", ErrSlotNotOpen},
		{"23503", ErrSlotHasReservations},
		{"23514", ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, ConstraintName: "some_constraint"}
			got := translatePgError(fmt.Errorf("exec: %w", pgErr))
			assert.ErrorIs(t, got, tt.want)
		})
	}

	plain := errors.New("conn closed")
	assert.Equal(t, plain, translatePgError(plain))

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), translatePgError(other))
}
