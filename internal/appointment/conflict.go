package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConflictChecker treats appointments as zero-length bookings: two
// appointments collide only when doctor and instant are both equal.
type ConflictChecker struct {
	store Store
}

func NewConflictChecker(store Store) *ConflictChecker {
	return &ConflictChecker{store: store}
}

// HasConflict reports whether another appointment already holds doctorID at
// the given instant. excludeID skips the appointment being updated.
func (c *ConflictChecker) HasConflict(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	at = at.UTC()
	_, err := c.store.FindOne(ctx, Criteria{
		DoctorID:    &doctorID,
		ScheduledAt: &at,
		ExcludeID:   excludeID,
	})
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
