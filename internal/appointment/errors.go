package appointment

import "errors"

var (
	ErrMalformedDate   = errors.New("Formato de data inválido")
	ErrPastDate        = errors.New("Data deve ser futura")
	ErrInvalidKind     = errors.New("Tipo de consulta inválido")
	ErrConflict        = errors.New("Já existe um paciente agendado para este médico neste horário")
	ErrSlotBeingBooked = errors.New("Horário em processo de agendamento, tente novamente")
)

type Entity string

const (
	EntityDoctor        Entity = "doctor"
	EntityPatient       Entity = "patient"
	EntityAppointment   Entity = "appointment"
	EntityInsurancePlan Entity = "insurance plan"
)

// NotFoundError reports a referenced entity that does not exist. A user
// without the doctor role is reported as a missing doctor.
type NotFoundError struct {
	Entity Entity
}

func (e *NotFoundError) Error() string {
	switch e.Entity {
	case EntityDoctor:
		return "Médico não encontrado"
	case EntityPatient:
		return "Paciente não encontrado"
	case EntityAppointment:
		return "Consulta não encontrada"
	case EntityInsurancePlan:
		return "Plano de saúde não encontrado"
	default:
		return "Registro não encontrado"
	}
}

// Is matches another *NotFoundError for the same entity. A target without an
// entity matches any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

var (
	ErrNotFound              = &NotFoundError{}
	ErrDoctorNotFound        = &NotFoundError{Entity: EntityDoctor}
	ErrPatientNotFound       = &NotFoundError{Entity: EntityPatient}
	ErrAppointmentNotFound   = &NotFoundError{Entity: EntityAppointment}
	ErrInsurancePlanNotFound = &NotFoundError{Entity: EntityInsurancePlan}
)
