package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/config"
	"github.com/hackgods/counseling-scheduling/internal/db"
	"github.com/hackgods/counseling-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	ReserveRatio float64
	CancelRatio  float64
	ApproveRatio float64
	ReadRatio    float64
	StudentLimit int
	SlotLimit    int
}

type slotRef struct {
	ID          uuid.UUID
	ProfessorID int64
}

type reservationRef struct {
	ID          uuid.UUID
	StudentID   int64
	ProfessorID int64
}

type DataPool struct {
	Students []int64
	Slots    []slotRef

	mu           sync.Mutex
	reservations []reservationRef
}

func (dp *DataPool) AddReservation(r reservationRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.reservations = append(dp.reservations, r)
}

// TakeReservation removes and returns a random tracked reservation.
func (dp *DataPool) TakeReservation(rng *rand.Rand) (reservationRef, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.reservations) == 0 {
		return reservationRef{}, false
	}
	idx := rng.Intn(len(dp.reservations))
	r := dp.reservations[idx]
	dp.reservations[idx] = dp.reservations[len(dp.reservations)-1]
	dp.reservations = dp.reservations[:len(dp.reservations)-1]
	return r, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	at := func(pct int) time.Duration {
		idx := min(len(latencies)*pct/100, len(latencies)-1)
		return latencies[idx]
	}
	return at(50), at(95), at(99)
}

type Metrics struct {
	Reserve OperationMetrics
	Cancel  OperationMetrics
	Approve OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		logger.Fatal("SIM_WORKERS and SIM_DURATION must be > 0")
	}
	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("reserve", cfg.ReserveRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("approve", cfg.ApproveRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, db.PoolOptions{AppName: "counseling-simulate", MaxConns: 2})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data pool loaded", zap.Int("students", len(dataPool.Students)), zap.Int("slots", len(dataPool.Slots)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()

	if err := checkInvariants(context.Background(), pgPool, logger); err != nil {
		logger.Fatal("invariant check failed", zap.Error(err))
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		ReserveRatio: getFloat("SIM_RESERVE_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.15),
		ApproveRatio: getFloat("SIM_APPROVE_RATIO", 0.15),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		StudentLimit: getInt("SIM_STUDENT_LIMIT", 2000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 400),
	}

	// Normalize ratios
	total := cfg.ReserveRatio + cfg.CancelRatio + cfg.ApproveRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.CancelRatio /= total
		cfg.ApproveRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM students ORDER BY id LIMIT $1`, cfg.StudentLimit)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Students = append(dataPool.Students, id)
	}
	rows.Close()

	// A small slot pool keeps contention high.
	rows, err = pool.Query(ctx, `
		SELECT id, professor_id FROM counseling_slots
		WHERE status = 'OPEN' AND start_at > now() + interval '1 hour'
		ORDER BY start_at
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.ID, &s.ProfessorID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()

	if len(dataPool.Students) == 0 {
		return nil, fmt.Errorf("no students loaded, run cmd/seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		switch r := rng.Float64(); {
		case r < c.ReserveRatio:
			s.doReserve(ctx, rng)
		case r < c.ReserveRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		case r < c.ReserveRatio+c.CancelRatio+c.ApproveRatio:
			s.doApprove(ctx, rng)
		default:
			s.doReadOpen(ctx, rng)
		}
	}
}

// call sends one request as the given identity and decodes a 2xx body into out.
func (s *Simulator) call(ctx context.Context, userID int64, role, method, path string, body, out any) (int, time.Duration) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	req.Header.Set("X-User-Role", role)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode/100 == 2 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	studentID := s.pool.Students[rng.Intn(len(s.pool.Students))]

	var res struct {
		ID uuid.UUID `json:"reservation_id"`
	}
	status, latency := s.call(ctx, studentID, "STUDENT", http.MethodPost,
		"/counseling/slots/"+slot.ID.String()+"/reserve", map[string]string{"memo": "load test"}, &res)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Reserve.Record(latency, status)

	if status == http.StatusCreated && res.ID != uuid.Nil {
		s.pool.AddReservation(reservationRef{ID: res.ID, StudentID: studentID, ProfessorID: slot.ProfessorID})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	res, ok := s.pool.TakeReservation(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, res.StudentID, "STUDENT", http.MethodDelete,
		"/counseling/reservations/"+res.ID.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(latency, status)
}

func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	res, ok := s.pool.TakeReservation(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, res.ProfessorID, "PROFESSOR", http.MethodPost,
		"/counseling/reservations/"+res.ID.String()+"/approve", nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Approve.Record(latency, status)

	// approved reservations can still be canceled by the student
	if status == http.StatusOK {
		s.pool.AddReservation(res)
	}
}

func (s *Simulator) doReadOpen(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	studentID := s.pool.Students[rng.Intn(len(s.pool.Students))]

	from := time.Now().Format(time.DateOnly)
	to := time.Now().AddDate(0, 0, 28).Format(time.DateOnly)
	status, latency := s.call(ctx, studentID, "STUDENT", http.MethodGet,
		fmt.Sprintf("/counseling/slots/open?professorId=%d&from=%s&to=%s", slot.ProfessorID, from, to), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Read.Record(latency, status)
}

// checkInvariants verifies the database after the run: one active reservation
// per slot and no overlapping active reservations per student.
func checkInvariants(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	var doubleBooked int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT slot_id FROM counseling_reservations
			WHERE status IN ('RESERVED', 'APPROVED')
			GROUP BY slot_id HAVING count(*) > 1
		) t
	`).Scan(&doubleBooked)
	if err != nil {
		return err
	}

	var overlapping int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM counseling_reservations a
		JOIN counseling_slots sa ON sa.id = a.slot_id
		JOIN counseling_reservations b ON b.student_id = a.student_id AND b.id < a.id
		JOIN counseling_slots sb ON sb.id = b.slot_id
		WHERE a.status IN ('RESERVED', 'APPROVED')
		  AND b.status IN ('RESERVED', 'APPROVED')
		  AND sa.start_at < sb.end_at
		  AND sa.end_at > sb.start_at
	`).Scan(&overlapping)
	if err != nil {
		return err
	}

	var mismatched int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM counseling_slots s
		WHERE (s.status = 'RESERVED') <> EXISTS (
			SELECT 1 FROM counseling_reservations r
			WHERE r.slot_id = s.id AND r.status IN ('RESERVED', 'APPROVED')
		)
	`).Scan(&mismatched)
	if err != nil {
		return err
	}

	logger.Info("invariant check",
		zap.Int("double_booked_slots", doubleBooked),
		zap.Int("overlapping_student_pairs", overlapping),
		zap.Int("slot_status_mismatches", mismatched),
	)
	if doubleBooked+overlapping+mismatched > 0 {
		return fmt.Errorf("found %d double-booked slots, %d overlapping pairs, %d status mismatches",
			doubleBooked, overlapping, mismatched)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\nWorkers: %d\n\n", s.config.Duration, s.config.Workers)

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Read open slots", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	p50, p95, p99 := om.Percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s p99=%s\n\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
}

// Helper functions

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
