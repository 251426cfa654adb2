package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes a first consultation from a follow-up.
type Kind string

const (
	KindInitial Kind = "initial"
	KindReturn  Kind = "return"
)

func (k Kind) Valid() bool {
	return k == KindInitial || k == KindReturn
}

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleReceptionist Role = "receptionist"
	RoleDoctor       Role = "doctor"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type InsurancePlan struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is one booking of a doctor for a patient. ScheduledAt is
// always UTC with minute precision.
type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	ScheduledAt     time.Time
	Kind            Kind
	Insurance       bool
	InsurancePlanID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ref is the display projection of a doctor or patient.
type Ref struct {
	ID   uuid.UUID
	Name string
}

// View is an appointment ready to be presented: its date is rendered in the
// display timezone and the doctor and patient names are attached.
type View struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            string
	Kind            Kind
	Insurance       bool
	InsurancePlanID *uuid.UUID
	Doctor          Ref
	Patient         Ref
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
