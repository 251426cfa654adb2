// Package apptest provides in-memory collaborators for exercising the
// scheduler without Postgres or Redis.
package apptest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// Store keeps appointments in insertion order and enforces the
// (doctor, instant) uniqueness the Postgres schema declares.
type Store struct {
	mu    sync.Mutex
	order []uuid.UUID
	rows  map[uuid.UUID]appointment.Appointment
	now   func() time.Time

	// Fail, when set, is returned by every call.
	Fail error
}

func NewStore() *Store {
	return &Store{
		rows: map[uuid.UUID]appointment.Appointment{},
		now:  time.Now,
	}
}

func (s *Store) taken(a appointment.Appointment) bool {
	for id, row := range s.rows {
		if id != a.ID && row.DoctorID == a.DoctorID && row.ScheduledAt.Equal(a.ScheduledAt) {
			return true
		}
	}
	return false
}

func (s *Store) Insert(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if s.taken(a) {
		return nil, appointment.ErrConflict
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.rows[a.ID] = a
	s.order = append(s.order, a.ID)
	out := a
	return &out, nil
}

func (s *Store) FindOne(ctx context.Context, c appointment.Criteria) (*appointment.Appointment, error) {
	rows, err := s.FindMany(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appointment.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (s *Store) FindMany(_ context.Context, c appointment.Criteria) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	out := []appointment.Appointment{}
	for _, id := range s.order {
		a := s.rows[id]
		if matches(a, c) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UpdateByID(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	existing, ok := s.rows[a.ID]
	if !ok {
		return nil, appointment.ErrRecordNotFound
	}
	if s.taken(a) {
		return nil, appointment.ErrConflict
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now().UTC()
	s.rows[a.ID] = a
	out := a
	return &out, nil
}

func (s *Store) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.rows[id]; !ok {
		return appointment.ErrRecordNotFound
	}
	delete(s.rows, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len reports the number of stored appointments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func matches(a appointment.Appointment, c appointment.Criteria) bool {
	switch {
	case c.ID != nil && a.ID != *c.ID:
		return false
	case c.DoctorID != nil && a.DoctorID != *c.DoctorID:
		return false
	case c.PatientID != nil && a.PatientID != *c.PatientID:
		return false
	case c.Kind != nil && a.Kind != *c.Kind:
		return false
	case c.ScheduledAt != nil && !a.ScheduledAt.Equal(*c.ScheduledAt):
		return false
	case c.ExcludeID != nil && a.ID == *c.ExcludeID:
		return false
	}
	return true
}

// Directory answers user, patient and insurance plan lookups.
type Directory struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]appointment.User
	patients map[uuid.UUID]appointment.Patient
	plans    map[uuid.UUID]appointment.InsurancePlan

	// Fail, when set, is returned by every lookup.
	Fail error
}

func NewDirectory() *Directory {
	return &Directory{
		users:    map[uuid.UUID]appointment.User{},
		patients: map[uuid.UUID]appointment.Patient{},
		plans:    map[uuid.UUID]appointment.InsurancePlan{},
	}
}

func (d *Directory) AddUser(name string, role appointment.Role) appointment.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := appointment.User{ID: uuid.New(), Name: name, Role: role}
	d.users[u.ID] = u
	return u
}

func (d *Directory) AddDoctor(name string) appointment.User {
	return d.AddUser(name, appointment.RoleDoctor)
}

func (d *Directory) AddPatient(name string) appointment.Patient {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := appointment.Patient{ID: uuid.New(), Name: name}
	d.patients[p.ID] = p
	return p
}

func (d *Directory) AddPlan(name string) appointment.InsurancePlan {
	d.mu.Lock()
	defer d.mu.Unlock()
	ip := appointment.InsurancePlan{ID: uuid.New(), Name: name}
	d.plans[ip.ID] = ip
	return ip
}

func (d *Directory) FindUserByID(_ context.Context, id uuid.UUID) (*appointment.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Fail != nil {
		return nil, d.Fail
	}
	u, ok := d.users[id]
	if !ok {
		return nil, appointment.ErrRecordNotFound
	}
	return &u, nil
}

func (d *Directory) FindPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Fail != nil {
		return nil, d.Fail
	}
	p, ok := d.patients[id]
	if !ok {
		return nil, appointment.ErrRecordNotFound
	}
	return &p, nil
}

func (d *Directory) FindPlanByID(_ context.Context, id uuid.UUID) (*appointment.InsurancePlan, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Fail != nil {
		return nil, d.Fail
	}
	ip, ok := d.plans[id]
	if !ok {
		return nil, appointment.ErrRecordNotFound
	}
	return &ip, nil
}

// Locker runs critical sections inline. Busy simulates a lock held by
// another request.
type Locker struct {
	mu    sync.Mutex
	Busy  bool
	Calls int
}

var _ redisclient.Locker = (*Locker)(nil)

func (l *Locker) WithBookingLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.Calls++
	busy := l.Busy
	l.mu.Unlock()
	if busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type Event struct {
	Type    string
	Payload any
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []Event

	// Fail, when set, is returned by Publish after recording the event.
	Fail error
}

func (p *Publisher) Publish(_ context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Type: eventType, Payload: payload})
	return p.Fail
}

func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// Fixture wires a Scheduler to fresh in-memory collaborators.
type Fixture struct {
	Store     *Store
	Directory *Directory
	Locker    *Locker
	Publisher *Publisher
	Scheduler *appointment.Scheduler
	Now       time.Time
}

// NewFixture builds a scheduler whose clock is fixed at now and whose display
// timezone is loc.
func NewFixture(now time.Time, loc *time.Location) *Fixture {
	f := &Fixture{
		Store:     NewStore(),
		Directory: NewDirectory(),
		Locker:    &Locker{},
		Publisher: &Publisher{},
		Now:       now,
	}
	f.Store.now = func() time.Time { return now }
	f.Scheduler = appointment.NewScheduler(appointment.Dependencies{
		Store:      f.Store,
		Users:      f.Directory,
		Patients:   f.Directory,
		Plans:      f.Directory,
		Locker:     f.Locker,
		Publisher:  f.Publisher,
		Normalizer: appointment.NewTimeNormalizer(loc),
		Clock:      func() time.Time { return now },
		Logger:     zerolog.Nop(),
	})
	return f
}
