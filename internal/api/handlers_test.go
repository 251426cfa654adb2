package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/appointment/apptest"
)

var (
	testAuth = AuthConfig{SigningKey: []byte("test-secret-key-for-unit-tests-only")}
	brt      = time.FixedZone("BRT", -3*3600)
)

type testServer struct {
	t       *testing.T
	fixture *apptest.Fixture
	handler http.Handler
	token   string
	doctor  appointment.User
	patient appointment.Patient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	f := apptest.NewFixture(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), brt)
	token, err := IssueToken(testAuth, uuid.NewString(), appointment.RoleReceptionist, time.Hour)
	require.NoError(t, err)

	return &testServer{
		t:       t,
		fixture: f,
		handler: NewRouter(RouterConfig{
			Service: f.Scheduler,
			Auth:    testAuth,
			Logger:  zerolog.Nop(),
			Env:     "test",
		}),
		token:   token,
		doctor:  f.Directory.AddDoctor("Dra. Ana Souza"),
		patient: f.Directory.AddPatient("João Lima"),
	}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(date string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/appointments", CreateAppointmentRequest{
		DoctorID:  s.doctor.ID.String(),
		PatientID: s.patient.ID.String(),
		Date:      date,
		Type:      "initial",
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func decodeAppointment(t *testing.T, rec *httptest.ResponseRecorder) AppointmentResponse {
	t.Helper()
	var body AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateAppointment_Scenario(t *testing.T) {
	s := newTestServer(t)

	rec := s.create("20/08/2099 10:00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAppointment(t, rec)
	assert.Equal(t, "20/08/2099 10:00", created.Date)
	assert.Equal(t, "initial", created.Type)
	assert.Equal(t, s.doctor.ID, created.Doctor.ID)
	assert.Equal(t, "Dra. Ana Souza", created.Doctor.Name)
	assert.Equal(t, "João Lima", created.Patient.Name)

	rec = s.create("20/08/2099 10:00")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec), "agendado")

	rec = s.create("20/08/2020 10:00")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Data deve ser futura", decodeError(t, rec))

	rec = s.create("not-a-date")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Formato de data inválido", decodeError(t, rec))

	assert.Equal(t, 1, s.fixture.Store.Len())
}

func TestCreateAppointment_Validation(t *testing.T) {
	s := newTestServer(t)
	receptionist := s.fixture.Directory.AddUser("Carla", appointment.RoleReceptionist)

	tests := []struct {
		name   string
		req    CreateAppointmentRequest
		status int
		msg    string
	}{
		{
			name:   "unknown doctor",
			req:    CreateAppointmentRequest{DoctorID: uuid.NewString(), PatientID: s.patient.ID.String(), Date: "01/01/2099 09:00", Type: "initial"},
			status: http.StatusNotFound,
			msg:    "Médico não encontrado",
		},
		{
			name:   "user is not a doctor",
			req:    CreateAppointmentRequest{DoctorID: receptionist.ID.String(), PatientID: s.patient.ID.String(), Date: "01/01/2099 09:00", Type: "initial"},
			status: http.StatusNotFound,
			msg:    "Médico não encontrado",
		},
		{
			name:   "malformed doctor id",
			req:    CreateAppointmentRequest{DoctorID: "abc", PatientID: s.patient.ID.String(), Date: "01/01/2099 09:00", Type: "initial"},
			status: http.StatusNotFound,
			msg:    "Médico não encontrado",
		},
		{
			name:   "unknown patient",
			req:    CreateAppointmentRequest{DoctorID: s.doctor.ID.String(), PatientID: uuid.NewString(), Date: "01/01/2099 09:00", Type: "initial"},
			status: http.StatusNotFound,
			msg:    "Paciente não encontrado",
		},
		{
			name:   "invalid type",
			req:    CreateAppointmentRequest{DoctorID: s.doctor.ID.String(), PatientID: s.patient.ID.String(), Date: "01/01/2099 09:00", Type: "surgery"},
			status: http.StatusBadRequest,
			msg:    "Tipo de consulta inválido",
		},
		{
			name:   "date checked before references",
			req:    CreateAppointmentRequest{DoctorID: uuid.NewString(), PatientID: uuid.NewString(), Date: "2099-01-01", Type: "initial"},
			status: http.StatusBadRequest,
			msg:    "Formato de data inválido",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/appointments", tt.req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.msg, decodeError(t, rec))
		})
	}
	assert.Zero(t, s.fixture.Store.Len())
}

func TestCreateAppointment_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidBody, decodeError(t, rec))
}

func TestCreateAppointment_StorageFailureHidesDetails(t *testing.T) {
	s := newTestServer(t)
	s.fixture.Store.Fail = assert.AnError

	rec := s.create("20/08/2099 10:00")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternalError, decodeError(t, rec))
}

func TestListAppointments(t *testing.T) {
	s := newTestServer(t)
	other := s.fixture.Directory.AddDoctor("Dr. Bruno Reis")

	require.Equal(t, http.StatusCreated, s.create("20/08/2099 10:00").Code)
	rec := s.do(http.MethodPost, "/appointments", CreateAppointmentRequest{
		DoctorID:  other.ID.String(),
		PatientID: s.patient.ID.String(),
		Date:      "20/08/2099 10:00",
		Type:      "return",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var all []AppointmentResponse
	rec = s.do(http.MethodGet, "/appointments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	var returns []AppointmentResponse
	rec = s.do(http.MethodGet, "/appointments?type=return", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &returns))
	require.Len(t, returns, 1)
	assert.Equal(t, "Dr. Bruno Reis", returns[0].Doctor.Name)

	var byDoctor []AppointmentResponse
	rec = s.do(http.MethodGet, "/appointments?doctorId="+s.doctor.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byDoctor))
	require.Len(t, byDoctor, 1)
	assert.Equal(t, s.doctor.ID, byDoctor[0].DoctorID)

	rec = s.do(http.MethodGet, "/appointments?doctorId=nope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = s.do(http.MethodGet, "/appointments?type=surgery", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAppointment(t *testing.T) {
	s := newTestServer(t)
	created := decodeAppointment(t, s.create("20/08/2099 10:00"))

	rec := s.do(http.MethodGet, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeAppointment(t, rec).ID)

	rec = s.do(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Consulta não encontrada", decodeError(t, rec))

	rec = s.do(http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAppointment(t *testing.T) {
	s := newTestServer(t)
	first := decodeAppointment(t, s.create("20/08/2099 10:00"))
	second := decodeAppointment(t, s.create("20/08/2099 11:00"))

	date := "20/08/2099 10:00"
	rec := s.do(http.MethodPut, "/appointments/"+first.ID.String(), UpdateAppointmentRequest{Date: &date})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPut, "/appointments/"+second.ID.String(), UpdateAppointmentRequest{Date: &date})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec), "agendado")

	kind := "return"
	moved := "21/08/2099 15:30"
	rec = s.do(http.MethodPut, "/appointments/"+second.ID.String(), UpdateAppointmentRequest{Date: &moved, Type: &kind})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeAppointment(t, rec)
	assert.Equal(t, "21/08/2099 15:30", updated.Date)
	assert.Equal(t, "return", updated.Type)
	assert.Equal(t, s.doctor.ID, updated.DoctorID)

	past := "01/01/2020 08:00"
	rec = s.do(http.MethodPut, "/appointments/"+second.ID.String(), UpdateAppointmentRequest{Date: &past})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Data deve ser futura", decodeError(t, rec))

	rec = s.do(http.MethodPut, "/appointments/"+uuid.NewString(), UpdateAppointmentRequest{Date: &moved})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAppointment_ClearsInsurancePlan(t *testing.T) {
	for name, value := range map[string]any{"null": nil, "empty string": ""} {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t)
			plan := s.fixture.Directory.AddPlan("Unimed")
			planID := plan.ID.String()

			rec := s.do(http.MethodPost, "/appointments", CreateAppointmentRequest{
				DoctorID:        s.doctor.ID.String(),
				PatientID:       s.patient.ID.String(),
				Date:            "20/08/2099 10:00",
				Type:            "initial",
				Insurance:       true,
				InsurancePlanID: &planID,
			})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			created := decodeAppointment(t, rec)
			require.NotNil(t, created.InsurancePlanID)

			kind := "return"
			rec = s.do(http.MethodPut, "/appointments/"+created.ID.String(), UpdateAppointmentRequest{Type: &kind})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			require.NotNil(t, decodeAppointment(t, rec).InsurancePlanID, "absent key keeps the plan")

			rec = s.do(http.MethodPut, "/appointments/"+created.ID.String(), map[string]any{"insurancePlanId": value})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			updated := decodeAppointment(t, rec)
			assert.True(t, updated.Insurance)
			assert.Nil(t, updated.InsurancePlanID)
		})
	}
}

func TestDeleteAppointment(t *testing.T) {
	s := newTestServer(t)
	created := decodeAppointment(t, s.create("20/08/2099 10:00"))

	rec := s.do(http.MethodDelete, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.do(http.MethodDelete, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Consulta não encontrada", decodeError(t, rec))

	// the slot is free again
	assert.Equal(t, http.StatusCreated, s.create("20/08/2099 10:00").Code)
}

func TestAppointments_RequireAuth(t *testing.T) {
	s := newTestServer(t)

	s.token = ""
	rec := s.do(http.MethodGet, "/appointments", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgUnauthorized, decodeError(t, rec))

	token, err := IssueToken(testAuth, uuid.NewString(), appointment.Role("patient"), time.Hour)
	require.NoError(t, err)
	s.token = token
	rec = s.do(http.MethodGet, "/appointments", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgForbidden, decodeError(t, rec))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/nowhere", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgRouteNotFound, decodeError(t, rec))
}
