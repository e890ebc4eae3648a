package counseling

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	slot := &Slot{ProfessorID: 100}

	tests := []struct {
		name      string
		auth      AuthContext
		student   bool
		professor bool
		owner     bool
	}{
		{"student", AuthContext{ID: 2024001, Role: RoleStudent}, true, false, false},
		{"owning professor", AuthContext{ID: 100, Role: RoleProfessor}, false, true, true},
		{"other professor", AuthContext{ID: 101, Role: RoleProfessor}, false, true, false},
		{"admin", AuthContext{ID: 1, Role: RoleAdmin}, false, false, true},
		{"staff", AuthContext{ID: 100, Role: RoleStaff}, false, false, false},
		{"anonymous", AuthContext{}, false, false, false},
	}

	check := func(t *testing.T, allowed bool, err error) {
		t.Helper()
		if allowed {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrForbidden)
		}
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check(t, tt.student, RequireStudent(tt.auth))
			check(t, tt.professor, RequireProfessor(tt.auth))
			check(t, tt.owner, RequireSlotOwnerOrAdmin(tt.auth, slot))
		})
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleStudent, ParseRole("student"))
	assert.Equal(t, RoleProfessor, ParseRole(" Professor "))
	assert.Equal(t, RoleAdmin, ParseRole("ADMIN"))
	assert.Equal(t, Role(""), ParseRole("dean"))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "ok", ErrorCode(nil))
	assert.Equal(t, "slot_conflict", ErrorCode(fmt.Errorf("insert slot: %w", ErrSlotConflict)))
	assert.Equal(t, "reservation_not_found", ErrorCode(ErrReservationNotFound))
	assert.Equal(t, "calendar_busy", ErrorCode(fmt.Errorf("%w: lock:slot:x", ErrCalendarBusy)))
	assert.Equal(t, "internal_error", ErrorCode(errors.New("connection reset")))
}
