// The simulator drives concurrent booking traffic against a running
// api-server and verifies afterwards that no slot ended up with more
// than one live appointment.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/clinic-booking/internal/config"
	"github.com/medbook/clinic-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
	JWTSecret    string
}

type slotTarget struct {
	SlotID   uuid.UUID
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	RoomID   uuid.UUID
}

type bookedAppt struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotTarget

	mu           sync.RWMutex
	appointments []bookedAppt
}

func (dp *DataPool) AddAppointment(a bookedAppt) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) RandomAppointment() (bookedAppt, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppt{}, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}
	return avg, latencies[idx(50)], latencies[idx(95)]
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	booking OperationMetrics
	cancel  OperationMetrics
	reads   OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	if len(dataPool.Patients) == 0 || len(dataPool.Slots) == 0 {
		log.Fatal("no patients or available slots found; run seed and generate slots first")
	}

	log.Printf("loaded: %d patients, %d available slots", len(dataPool.Patients), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if err := verifyNoDoubleBooking(context.Background(), pgPool); err != nil {
		log.Fatalf("INVARIANT VIOLATED: %v", err)
	}
	log.Println("invariant holds: no slot has more than one live appointment")
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getIntEnv("SIM_WORKERS", 10),
		BookingRatio: getFloatEnv("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloatEnv("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloatEnv("SIM_READ_RATIO", 0.3),
		PatientLimit: getIntEnv("SIM_PATIENT_LIMIT", 2000),
		SlotLimit:    getIntEnv("SIM_SLOT_LIMIT", 2400),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slotRows, err := pool.Query(ctx, `
		SELECT id, doctor_id, clinic_id, room_id
		FROM slots
		WHERE status = 'AVAILABLE'
		  AND date > to_char(now(), 'YYYY-MM-DD')
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var t slotTarget
		if err := slotRows.Scan(&t.SlotID, &t.DoctorID, &t.ClinicID, &t.RoomID); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, t)
	}
	return dataPool, slotRows.Err()
}

func (s *Simulator) Run() {
	log.Printf("running for %s with %d workers", s.config.Duration, s.config.Workers)

	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				roll := rand.Float64()
				switch {
				case roll < s.config.BookingRatio:
					s.doBook()
				case roll < s.config.BookingRatio+s.config.CancelRatio:
					s.doCancel()
				default:
					s.doRead()
				}
			}
		}()
	}

	wg.Wait()
}

func (s *Simulator) patientToken(patientID uuid.UUID) string {
	claims := jwt.MapClaims{
		"sub":  patientID.String(),
		"role": "patient",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	return signed
}

func (s *Simulator) doBook() {
	patient := s.pool.Patients[rand.Intn(len(s.pool.Patients))]
	target := s.pool.Slots[rand.Intn(len(s.pool.Slots))]

	body, _ := json.Marshal(map[string]string{
		"doctor_id": target.DoctorID.String(),
		"clinic_id": target.ClinicID.String(),
		"room_id":   target.RoomID.String(),
		"slot_id":   target.SlotID.String(),
		"method":    "CASH",
	})

	start := time.Now()
	status, respBody := s.post("/appointments", patient, body)
	latency := time.Since(start)

	success := status == http.StatusCreated
	conflict := status == http.StatusConflict
	s.booking.Record(latency, success, conflict)

	if success {
		var resp struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(respBody, &resp); err == nil {
			s.pool.AddAppointment(bookedAppt{ID: resp.ID, PatientID: patient})
		}
	}
}

func (s *Simulator) doCancel() {
	appt, ok := s.pool.RandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.post("/appointments/"+appt.ID.String()+"/cancel", appt.PatientID, nil)
	latency := time.Since(start)

	// A previously cancelled appointment comes back 400; count it as a
	// conflict rather than an error.
	s.cancel.Record(latency, status == http.StatusOK, status == http.StatusBadRequest)
}

func (s *Simulator) doRead() {
	patient := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	start := time.Now()
	req, err := http.NewRequest(http.MethodGet, s.config.APIBaseURL+"/appointments?limit=20", nil)
	if err != nil {
		s.reads.Record(time.Since(start), false, false)
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.patientToken(patient))

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.reads.Record(latency, false, false)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	s.reads.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(path string, patientID uuid.UUID, body []byte) (int, []byte) {
	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.patientToken(patientID))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody
}

func (s *Simulator) PrintReport() {
	report := func(name string, om *OperationMetrics) {
		avg, p50, p95 := om.Stats()
		log.Printf("%-8s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
			name, om.Total, om.Success, om.Conflict, om.Error, avg, p50, p95)
	}
	report("book", &s.booking)
	report("cancel", &s.cancel)
	report("read", &s.reads)
}

func verifyNoDoubleBooking(ctx context.Context, pool *pgxpool.Pool) error {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT slot_id
			FROM appointments
			WHERE status IN ('BOOKED', 'CONFIRMED')
			GROUP BY slot_id
			HAVING count(*) > 1
		) doubled
	`).Scan(&violations)
	if err != nil {
		return fmt.Errorf("verification query: %w", err)
	}
	if violations > 0 {
		return fmt.Errorf("%d slots have more than one live appointment", violations)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
