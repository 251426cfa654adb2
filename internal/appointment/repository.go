package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned by stores and directories when nothing
// matches. The scheduler turns it into the matching *NotFoundError.
var ErrRecordNotFound = errors.New("record not found")

// Criteria narrows appointment lookups. Nil fields do not filter.
type Criteria struct {
	ID          *uuid.UUID
	DoctorID    *uuid.UUID
	PatientID   *uuid.UUID
	Kind        *Kind
	ScheduledAt *time.Time
	ExcludeID   *uuid.UUID
}

// Store persists appointments. Insert and UpdateByID must return ErrConflict
// when the (doctor, instant) pair is already taken.
type Store interface {
	Insert(ctx context.Context, a Appointment) (*Appointment, error)
	FindOne(ctx context.Context, c Criteria) (*Appointment, error)
	FindMany(ctx context.Context, c Criteria) ([]Appointment, error)
	UpdateByID(ctx context.Context, a Appointment) (*Appointment, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type UserDirectory interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
}

type PatientDirectory interface {
	FindPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type PlanDirectory interface {
	FindPlanByID(ctx context.Context, id uuid.UUID) (*InsurancePlan, error)
}
