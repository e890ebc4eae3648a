package counseling

import "fmt"

func RequireStudent(auth AuthContext) error {
	if auth.Role != RoleStudent || auth.ID == 0 {
		return fmt.Errorf("%w: students only", ErrForbidden)
	}
	return nil
}

func RequireProfessor(auth AuthContext) error {
	if auth.Role != RoleProfessor || auth.ID == 0 {
		return fmt.Errorf("%w: professors only", ErrForbidden)
	}
	return nil
}

// RequireSlotOwnerOrAdmin passes the professor who owns the slot and any admin.
func RequireSlotOwnerOrAdmin(auth AuthContext, slot *Slot) error {
	switch auth.Role {
	case RoleAdmin:
		return nil
	case RoleProfessor:
		if auth.ID != 0 && slot.ProfessorID == auth.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: slot owner or admin only", ErrForbidden)
}
