package watch

import (
	"net/http"

	"gemini-console/internal/keys"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

// Metrics are kept in their own registry so several monitors can coexist
// in one process.
type Metrics struct {
	registry      *prometheus.Registry
	keyValid      *prometheus.GaugeVec
	checksTotal   *prometheus.CounterVec
	invalidKeys   prometheus.Gauge
	checkDuration prometheus.Histogram
	lastRun       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keyValid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gemini_console_key_valid",
			Help: "1 when the latest check found the key valid, 0 otherwise",
		}, []string{"key"}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_console_key_checks_total",
			Help: "Total number of key checks by result",
		}, []string{"result"}),
		invalidKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemini_console_invalid_keys",
			Help: "Number of keys the latest run found invalid",
		}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemini_console_key_check_duration_seconds",
			Help:    "Duration of a single key check in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemini_console_last_run_timestamp_seconds",
			Help: "Unix time the latest check run finished",
		}),
	}
	m.registry.MustRegister(
		m.keyValid, m.checksTotal, m.invalidKeys, m.checkDuration, m.lastRun,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) observe(res keys.Result) {
	valid := 0.0
	if res.Status == keys.StatusValid {
		valid = 1
	}
	m.keyValid.WithLabelValues(keys.Mask(res.Key)).Set(valid)
	m.checksTotal.WithLabelValues(res.Status.String()).Inc()
	m.checkDuration.Observe(res.Duration.Seconds())
}

// reset drops per-key gauges so removed keys disappear from the output.
func (m *Metrics) reset() {
	m.keyValid.Reset()
}

func (m *Metrics) finish(report keys.Report, finishedUnix float64) {
	m.invalidKeys.Set(float64(len(report.Invalid)))
	m.lastRun.Set(finishedUnix)
}

// Handler serves the registry. With a username set, requests need basic
// auth matching the bcrypt hash.
func (m *Metrics) Handler(username, passwordHash string) http.Handler {
	prom := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	if username == "" {
		return prom
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != username || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="Prometheus Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		prom.ServeHTTP(w, r)
	})
}
