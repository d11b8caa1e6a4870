// Package watch re-checks the Gemini key list on a timer and exposes the
// results as Prometheus metrics, health endpoints and a websocket feed.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"gemini-console/internal/keys"
	"gemini-console/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Checker is the key manager as seen by the timer loop.
type Checker interface {
	Pull(ctx context.Context) error
	CheckAll(ctx context.Context) (keys.Report, error)
}

type Options struct {
	Interval time.Duration
	// MetricsEnabled mounts /metrics. With a username set, requests must
	// authenticate against MetricsPasswordHash.
	MetricsEnabled      bool
	MetricsUsername     string
	MetricsPasswordHash string
	// RateLimitPerMinute caps requests per remote address; 0 means 120.
	RateLimitPerMinute int
	DB                 *gorm.DB
}

// Monitor is a keys.Observer; pass it to the key manager it watches.
type Monitor struct {
	opts    Options
	hub     *Hub
	metrics *Metrics
	limiter *rateLimiter
	now     func() time.Time

	mu      sync.RWMutex
	last    *keys.Report
	lastErr error
	lastAt  time.Time
	running bool
}

func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	return &Monitor{
		opts:    opts,
		hub:     NewHub(),
		metrics: NewMetrics(),
		limiter: newRateLimiter(opts.RateLimitPerMinute),
		now:     time.Now,
	}
}

// AttachDB enables the database ping of /health/ready. Call it before Serve.
func (m *Monitor) AttachDB(db *gorm.DB) {
	m.opts.DB = db
}

func (m *Monitor) Hub() *Hub {
	return m.hub
}

func (m *Monitor) CheckStarted(run keys.Run) {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	m.metrics.reset()
	m.hub.Broadcast(Event{Type: "check_started", RunID: run.ID, Model: run.Model, Total: run.Total})
}

func (m *Monitor) KeyChecked(run keys.Run, res keys.Result) {
	m.metrics.observe(res)
	m.hub.Broadcast(Event{
		Type:       "key_checked",
		RunID:      run.ID,
		Model:      run.Model,
		Total:      run.Total,
		Key:        keys.Mask(res.Key),
		Status:     res.Status.String(),
		Message:    res.Message,
		DurationMs: res.Duration.Milliseconds(),
	})
}

func (m *Monitor) CheckFinished(report keys.Report) {
	now := m.now()
	m.mu.Lock()
	m.running = false
	m.last = &report
	m.lastAt = now
	m.mu.Unlock()
	m.metrics.finish(report, float64(now.Unix()))

	masked := make([]string, 0, len(report.Invalid))
	for _, k := range report.Invalid {
		masked = append(masked, keys.Mask(k))
	}
	m.hub.Broadcast(Event{
		Type:       "check_finished",
		RunID:      report.Run.ID,
		Model:      report.Run.Model,
		Total:      report.Run.Total,
		Checked:    report.Checked,
		Valid:      report.Valid,
		Invalid:    masked,
		DurationMs: report.Duration.Milliseconds(),
	})
}

// Run checks immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context, checker Checker) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		m.tick(ctx, checker)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick(ctx context.Context, checker Checker) {
	err := checker.Pull(ctx)
	if err == nil {
		var report keys.Report
		report, err = checker.CheckAll(ctx)
		if err == nil {
			logger.Sugar.Infof("[WATCH] Run %s: %d/%d valid", report.Run.ID, report.Valid, report.Checked)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Sugar.Warnf("[WATCH] Check run failed: %v", err)
	}
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Router mounts health, metrics and the websocket feed.
func (m *Monitor) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recovery)
	r.Use(requestLogger)
	r.Use(m.limiter.middleware)
	r.Use(securityHeaders)

	r.Get("/health", m.health)
	r.Get("/health/live", m.live)
	r.Get("/health/ready", m.ready)
	if m.opts.MetricsEnabled {
		r.Handle("/metrics", m.metrics.Handler(m.opts.MetricsUsername, m.opts.MetricsPasswordHash))
	}
	r.Get("/ws", m.ws)
	return r
}

type HealthResponse struct {
	Status      string   `json:"status"`
	Timestamp   int64    `json:"timestamp"`
	Running     bool     `json:"running"`
	LastRunID   string   `json:"last_run_id,omitempty"`
	LastRunAt   int64    `json:"last_run_at,omitempty"`
	Checked     int      `json:"checked"`
	Valid       int      `json:"valid"`
	InvalidKeys []string `json:"invalid_keys,omitempty"`
	Error       string   `json:"error,omitempty"`
	Clients     int      `json:"clients"`
}

func (m *Monitor) health(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: m.now().Unix(),
		Running:   m.running,
		Clients:   m.hub.ClientCount(),
	}
	if m.last != nil {
		resp.LastRunID = m.last.Run.ID
		resp.LastRunAt = m.lastAt.Unix()
		resp.Checked = m.last.Checked
		resp.Valid = m.last.Valid
		for _, k := range m.last.Invalid {
			resp.InvalidKeys = append(resp.InvalidKeys, keys.Mask(k))
		}
	}
	if m.lastErr != nil {
		resp.Status = "degraded"
		resp.Error = m.lastErr.Error()
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (m *Monitor) live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ready pings the local database when one is attached.
func (m *Monitor) ready(w http.ResponseWriter, r *http.Request) {
	if m.opts.DB != nil {
		sqlDB, err := m.opts.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			http.Error(w, "database unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (m *Monitor) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Warnf("[WS] Upgrade failed: %v", err)
		return
	}
	m.hub.Register(conn)
}

// Serve runs the HTTP server until ctx ends, then shuts it down.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("[WATCH] Listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
