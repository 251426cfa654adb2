package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
	EventAppointmentUpdated = "APPOINTMENT_UPDATED"
	EventAppointmentDeleted = "APPOINTMENT_DELETED"
)

// Publisher fans appointment changes out to subscribers such as reminders.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

type Dependencies struct {
	Store      Store
	Users      UserDirectory
	Patients   PatientDirectory
	Plans      PlanDirectory
	Locker     redisclient.Locker
	Publisher  Publisher
	Normalizer *TimeNormalizer
	Clock      Clock
	Logger     zerolog.Logger
}

// Scheduler is the only entry point that creates, changes or removes
// appointments.
type Scheduler struct {
	store     Store
	users     UserDirectory
	patients  PatientDirectory
	plans     PlanDirectory
	conflicts *ConflictChecker
	locker    redisclient.Locker
	events    Publisher
	times     *TimeNormalizer
	now       Clock
	log       zerolog.Logger
}

func NewScheduler(d Dependencies) *Scheduler {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Normalizer == nil {
		d.Normalizer = NewTimeNormalizer(time.UTC)
	}
	return &Scheduler{
		store:     d.Store,
		users:     d.Users,
		patients:  d.Patients,
		plans:     d.Plans,
		conflicts: NewConflictChecker(d.Store),
		locker:    d.Locker,
		events:    d.Publisher,
		times:     d.Normalizer,
		now:       d.Clock,
		log:       d.Logger,
	}
}

type CreateInput struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            string
	Kind            Kind
	Insurance       bool
	InsurancePlanID *uuid.UUID
}

// UpdateInput carries the fields to replace. Nil fields keep their value;
// ClearInsurancePlan removes the plan while keeping the insurance flag.
type UpdateInput struct {
	DoctorID           *uuid.UUID
	PatientID          *uuid.UUID
	Date               *string
	Kind               *Kind
	Insurance          *bool
	InsurancePlanID    *uuid.UUID
	ClearInsurancePlan bool
}

type Filter struct {
	Kind      *Kind
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}

// Create validates and books a new appointment. Checks run in a fixed order
// and the first failure is returned.
func (s *Scheduler) Create(ctx context.Context, in CreateInput) (*View, error) {
	at, err := s.times.ParseAndValidate(in.Date, s.now())
	if err != nil {
		return nil, err
	}

	doctor, err := s.lookupDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	patient, err := s.lookupPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	if !in.Kind.Valid() {
		return nil, ErrInvalidKind
	}

	planID, err := s.resolvePlan(ctx, in.Insurance, in.InsurancePlanID)
	if err != nil {
		return nil, err
	}

	appt := Appointment{
		ID:              uuid.New(),
		DoctorID:        doctor.ID,
		PatientID:       patient.ID,
		ScheduledAt:     at,
		Kind:            in.Kind,
		Insurance:       in.Insurance,
		InsurancePlanID: planID,
	}

	var created *Appointment
	err = s.book(ctx, doctor.ID, at, nil, func(ctx context.Context) error {
		var err error
		created, err = s.store.Insert(ctx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventAppointmentCreated, created)

	v := s.present(created, Ref{ID: doctor.ID, Name: doctor.Name}, Ref{ID: patient.ID, Name: patient.Name})
	return &v, nil
}

// List returns matching appointments in storage order.
func (s *Scheduler) List(ctx context.Context, f Filter) ([]View, error) {
	if f.Kind != nil && !f.Kind.Valid() {
		return nil, ErrInvalidKind
	}

	appts, err := s.store.FindMany(ctx, Criteria{
		Kind:      f.Kind,
		DoctorID:  f.DoctorID,
		PatientID: f.PatientID,
	})
	if err != nil {
		return nil, err
	}

	refs := newRefResolver(s.users, s.patients)
	views := make([]View, 0, len(appts))
	for i := range appts {
		v, err := s.presentResolved(ctx, refs, &appts[i])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	v, err := s.presentResolved(ctx, newRefResolver(s.users, s.patients), appt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Update applies a partial change. A new date or doctor is validated again
// and conflict-checked while ignoring the appointment itself.
func (s *Scheduler) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*View, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	recheck := false

	if in.Date != nil {
		at, err := s.times.ParseAndValidate(*in.Date, s.now())
		if err != nil {
			return nil, err
		}
		next.ScheduledAt = at
		recheck = true
	}

	if in.DoctorID != nil && *in.DoctorID != current.DoctorID {
		doctor, err := s.lookupDoctor(ctx, *in.DoctorID)
		if err != nil {
			return nil, err
		}
		next.DoctorID = doctor.ID
		recheck = true
	}

	if in.PatientID != nil && *in.PatientID != current.PatientID {
		patient, err := s.lookupPatient(ctx, *in.PatientID)
		if err != nil {
			return nil, err
		}
		next.PatientID = patient.ID
	}

	if in.Kind != nil {
		if !in.Kind.Valid() {
			return nil, ErrInvalidKind
		}
		next.Kind = *in.Kind
	}

	if in.Insurance != nil {
		next.Insurance = *in.Insurance
	}
	if in.InsurancePlanID != nil {
		planID, err := s.resolvePlan(ctx, next.Insurance, in.InsurancePlanID)
		if err != nil {
			return nil, err
		}
		next.InsurancePlanID = planID
	}
	if in.ClearInsurancePlan || !next.Insurance {
		next.InsurancePlanID = nil
	}

	var updated *Appointment
	write := func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateByID(ctx, next)
		if errors.Is(err, ErrRecordNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}

	if recheck {
		err = s.book(ctx, next.DoctorID, next.ScheduledAt, &current.ID, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventAppointmentUpdated, updated)

	v, err := s.presentResolved(ctx, newRefResolver(s.users, s.patients), updated)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Delete removes the appointment permanently.
func (s *Scheduler) Delete(ctx context.Context, id uuid.UUID) error {
	appt, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrAppointmentNotFound
		}
		return err
	}

	s.publish(ctx, EventAppointmentDeleted, appt)
	return nil
}

// book runs write under the doctor/instant lock after the conflict pre-check.
// The store's unique constraint still rejects a write that slips past both.
func (s *Scheduler) book(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID, write func(ctx context.Context) error) error {
	critical := func(ctx context.Context) error {
		conflict, err := s.conflicts.HasConflict(ctx, doctorID, at, excludeID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrConflict
		}
		return write(ctx)
	}
	if s.locker == nil {
		return critical(ctx)
	}

	err := s.locker.WithBookingLock(ctx, doctorID, at, critical)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func (s *Scheduler) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.FindOne(ctx, Criteria{ID: &id})
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Scheduler) lookupDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.FindUserByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Role != RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	return u, nil
}

func (s *Scheduler) lookupPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.FindPatientByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// resolvePlan drops the plan of an uninsured appointment and checks that a
// given plan exists otherwise.
func (s *Scheduler) resolvePlan(ctx context.Context, insured bool, planID *uuid.UUID) (*uuid.UUID, error) {
	if !insured || planID == nil {
		return nil, nil
	}
	plan, err := s.plans.FindPlanByID(ctx, *planID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrInsurancePlanNotFound
	}
	if err != nil {
		return nil, err
	}
	id := plan.ID
	return &id, nil
}

func (s *Scheduler) publish(ctx context.Context, eventType string, appt *Appointment) {
	if s.events == nil {
		return
	}

	payload := map[string]any{
		"appointment_id": appt.ID.String(),
		"doctor_id":      appt.DoctorID.String(),
		"patient_id":     appt.PatientID.String(),
		"scheduled_at":   appt.ScheduledAt,
		"type":           string(appt.Kind),
	}
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to publish appointment event")
	}
}

func (s *Scheduler) present(a *Appointment, doctor, patient Ref) View {
	return View{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		Date:            s.times.Format(a.ScheduledAt),
		Kind:            a.Kind,
		Insurance:       a.Insurance,
		InsurancePlanID: a.InsurancePlanID,
		Doctor:          doctor,
		Patient:         patient,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (s *Scheduler) presentResolved(ctx context.Context, refs *refResolver, a *Appointment) (View, error) {
	doctor, err := refs.doctor(ctx, a.DoctorID)
	if err != nil {
		return View{}, err
	}
	patient, err := refs.patient(ctx, a.PatientID)
	if err != nil {
		return View{}, err
	}
	return s.present(a, doctor, patient), nil
}

// refResolver memoizes display names for the duration of one call.
type refResolver struct {
	users        UserDirectory
	patients     PatientDirectory
	doctorNames  map[uuid.UUID]Ref
	patientNames map[uuid.UUID]Ref
}

func newRefResolver(users UserDirectory, patients PatientDirectory) *refResolver {
	return &refResolver{
		users:        users,
		patients:     patients,
		doctorNames:  map[uuid.UUID]Ref{},
		patientNames: map[uuid.UUID]Ref{},
	}
}

func (r *refResolver) doctor(ctx context.Context, id uuid.UUID) (Ref, error) {
	if ref, ok := r.doctorNames[id]; ok {
		return ref, nil
	}
	ref := Ref{ID: id}
	u, err := r.users.FindUserByID(ctx, id)
	switch {
	case err == nil:
		ref.Name = u.Name
	case !errors.Is(err, ErrRecordNotFound):
		return Ref{}, err
	}
	r.doctorNames[id] = ref
	return ref, nil
}

func (r *refResolver) patient(ctx context.Context, id uuid.UUID) (Ref, error) {
	if ref, ok := r.patientNames[id]; ok {
		return ref, nil
	}
	ref := Ref{ID: id}
	p, err := r.patients.FindPatientByID(ctx, id)
	switch {
	case err == nil:
		ref.Name = p.Name
	case !errors.Is(err, ErrRecordNotFound):
		return Ref{}, err
	}
	r.patientNames[id] = ref
	return ref, nil
}
