package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	CancelRatio     float64
	ReadRatio       float64
	DoctorLimit     int
	PatientLimit    int
	SlotCount       int
	Base            config.Config
}

// DataPool holds the references workers draw from. Slots are the
// "dd/MM/yyyy HH:mm" strings every worker competes for.
type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
	Slots    []string

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RemoveAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for i, a := range dp.appointments {
		if a == id {
			dp.appointments = append(dp.appointments[:i], dp.appointments[i+1:]...)
			return
		}
	}
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, want int) {
	atomic.AddInt64(&om.Total, 1)
	switch status {
	case want:
		atomic.AddInt64(&om.Success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	n := len(latencies)
	p95Idx := n * 95 / 100
	if p95Idx >= n {
		p95Idx = n - 1
	}
	return sum / time.Duration(n), latencies[0], latencies[n-1], latencies[n*50/100], latencies[p95Idx]
}

type Metrics struct {
	Booking       OperationMetrics
	Reschedule    OperationMetrics
	Cancel        OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	ListByDoctor  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	logger  zerolog.Logger
	metrics Metrics
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		bootLogger := logging.New("prod", "info", "simulate")
		bootLogger.Fatal().Err(err).Msg("invalid config")
	}
	logger := logging.New(cfg.Base.Env, cfg.Base.LogLevel, "simulate")

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.Base.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("doctors", len(dataPool.Doctors)).
		Int("patients", len(dataPool.Patients)).
		Int("slots", len(dataPool.Slots)).
		Msg("data pool loaded")

	token, err := api.IssueToken(
		api.AuthConfig{SigningKey: []byte(cfg.Base.JWTSecret), Issuer: cfg.Base.JWTIssuer},
		"simulator", appointment.RoleReceptionist, cfg.Duration+time.Minute,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue token")
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()

	dups, err := findDoubleBookings(verifyCtx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify bookings")
	}
	if !reportDoubleBookings(os.Stdout, dups) {
		cancelVerify()
		pgPool.Close()
		os.Exit(1)
	}
}

// doubleBooking is a doctor/instant pair holding more than one appointment.
type doubleBooking struct {
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Count       int
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func findDoubleBookings(ctx context.Context, q rowQuerier) ([]doubleBooking, error) {
	rows, err := q.Query(ctx, `
		SELECT doctor_id, scheduled_at, count(*)
		FROM appointments
		GROUP BY doctor_id, scheduled_at
		HAVING count(*) > 1
		ORDER BY doctor_id, scheduled_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dups []doubleBooking
	for rows.Next() {
		var d doubleBooking
		if err := rows.Scan(&d.DoctorID, &d.ScheduledAt, &d.Count); err != nil {
			return nil, err
		}
		dups = append(dups, d)
	}
	return dups, rows.Err()
}

// reportDoubleBookings prints the at-most-once check and reports whether it
// passed.
func reportDoubleBookings(w io.Writer, dups []doubleBooking) bool {
	if len(dups) == 0 {
		fmt.Fprintln(w, "Double bookings: none (every doctor/instant booked at most once)")
		return true
	}

	fmt.Fprintf(w, "Double bookings: %d doctor/instant pairs booked more than once\n", len(dups))
	for _, d := range dups {
		fmt.Fprintf(w, "  doctor=%s at=%s count=%d\n", d.DoctorID, d.ScheduledAt.UTC().Format(time.RFC3339), d.Count)
	}
	return false
}

func loadConfig() (SimConfig, error) {
	base, err := config.Load()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:     getInt("SIM_DOCTOR_LIMIT", 20),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 4000),
		SlotCount:       getInt("SIM_SLOT_COUNT", 40),
		Base:            base,
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotCount <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_SLOT_COUNT must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	dataPool.Doctors, err = loadIDs(ctx, pool, `SELECT id FROM users WHERE role = 'doctor' LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}

	dataPool.Slots = futureSlots(time.Now().In(cfg.Base.DisplayLocation), cfg.SlotCount)
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// futureSlots returns count half-hour slots starting at 08:00 on the day
// after now, spilling into following days after 18:00.
func futureSlots(now time.Time, count int) []string {
	day := time.Date(now.Year(), now.Month(), now.Day()+1, 8, 0, 0, 0, now.Location())
	slots := make([]string, 0, count)
	for at := day; len(slots) < count; at = at.Add(30 * time.Minute) {
		if at.Hour() >= 18 {
			day = day.AddDate(0, 0, 1)
			at = day.Add(-30 * time.Minute)
			continue
		}
		slots = append(slots, at.Format(appointment.DateLayout))
	}
	return slots
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < s.config.BookingRatio+s.config.RescheduleRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doListByDoctor(ctx, rng)
			}
		}
	}
}

// call sends one request and returns the status code and latency. A
// transport error yields status 0.
func (s *Simulator) call(ctx context.Context, method, path string, body any, out any) (int, time.Duration) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug().Err(err).Str("path", path).Msg("request failed")
		}
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	kind := appointment.KindInitial
	if rng.Intn(3) == 0 {
		kind = appointment.KindReturn
	}

	req := api.CreateAppointmentRequest{
		DoctorID:  s.pool.Doctors[rng.Intn(len(s.pool.Doctors))].String(),
		PatientID: s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		Date:      s.pool.Slots[rng.Intn(len(s.pool.Slots))],
		Type:      string(kind),
	}

	var created api.AppointmentResponse
	status, latency := s.call(ctx, http.MethodPost, "/appointments", req, &created)
	if ctx.Err() != nil {
		return
	}
	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, status, http.StatusCreated)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	date := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	status, latency := s.call(ctx, http.MethodPut, "/appointments/"+id.String(), api.UpdateAppointmentRequest{Date: &date}, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Reschedule.Record(latency, status, http.StatusOK)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, latency := s.call(ctx, http.MethodDelete, "/appointments/"+id.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	if status == http.StatusNoContent || status == http.StatusNotFound {
		s.pool.RemoveAppointment(id)
	}
	s.metrics.Cancel.Record(latency, status, http.StatusNoContent)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, latency := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(latency, status, http.StatusOK)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	status, latency := s.call(ctx, http.MethodGet, "/appointments?patientId="+patientID.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListByPatient.Record(latency, status, http.StatusOK)
}

func (s *Simulator) doListByDoctor(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	status, latency := s.call(ctx, http.MethodGet, "/appointments?doctorId="+doctorID.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListByDoctor.Record(latency, status, http.StatusOK)
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d doctors x %d instants\n", len(s.pool.Doctors), len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("List by Doctor", &s.metrics.ListByDoctor)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
