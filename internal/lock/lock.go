// Package lock guards the critical sections of the scheduling engine.
//
// A critical section is identified by one or more keys (a slot, a professor's
// calendar, a student's calendar). Implementations acquire keys in sorted
// order so two writers asking for overlapping key sets cannot deadlock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker is used by the counseling service to serialize writers per calendar.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

func SlotKey(id uuid.UUID) string {
	return fmt.Sprintf("lock:slot:%s", id.String())
}

func ProfessorKey(id int64) string {
	return fmt.Sprintf("lock:professor:%d", id)
}

func StudentKey(id int64) string {
	return fmt.Sprintf("lock:student:%d", id)
}

// Normalize returns the keys sorted and de-duplicated.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
