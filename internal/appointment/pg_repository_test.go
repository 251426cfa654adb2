package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWhereClause(t *testing.T) {
	doctor := uuid.MustParse("00000000-0000-0000-0000-0000000000d1")
	self := uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	at := time.Date(2099, 8, 20, 10, 0, 0, 0, time.FixedZone("BRT", -3*60*60))

	where, args := whereClause(Criteria{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = whereClause(Criteria{DoctorID: &doctor, ScheduledAt: &at, ExcludeID: &self})
	assert.Equal(t, " WHERE doctor_id = $1 AND scheduled_at = $2 AND id <> $3", where)
	assert.Equal(t, []any{doctor, at.UTC(), self}, args)

	kind := KindReturn
	where, args = whereClause(Criteria{Kind: &kind})
	assert.Equal(t, " WHERE kind = $1", where)
	assert.Equal(t, []any{"return"}, args)
}

func TestTranslateWriteError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_doctor_slot_key"}
	assert.ErrorIs(t, translateWriteError(dup), ErrConflict)

	otherDup := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"}
	assert.Same(t, otherDup, translateWriteError(otherDup))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_id_fkey"}
	assert.Same(t, fk, translateWriteError(fk))

	plain := errors.New("broken pipe")
	assert.Same(t, plain, translateWriteError(plain))
}
