// internal/metrics/tracker.go
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mwiater/supportbot/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// questionLimit is the number of characters of a question kept in an InferenceRecord.
	questionLimit = 100
	// recentLimit is the number of records returned by Summary.
	recentLimit = 10
)

// Tracker accumulates inference telemetry for one model. It is owned by the process entry point and
// passed to every component that records metrics; all methods are safe for concurrent use.
type Tracker struct {
	mutex   sync.Mutex
	model   ModelMetrics
	history []InferenceRecord
	latency RunningStat
	respLen RunningStat
	dir     string
	now     func() time.Time

	registry *prometheus.Registry
	prom     *collectors
}

type collectors struct {
	inferences prometheus.Counter
	errors     prometheus.Counter
	latency    prometheus.Histogram
	tokens     prometheus.Counter
	loadTime   prometheus.Gauge
	backend    *prometheus.HistogramVec
}

// NewTracker creates a Tracker for modelName that saves its summary under dir.
func NewTracker(modelName, dir string) *Tracker {
	reg := prometheus.NewRegistry()
	t := &Tracker{
		model:    ModelMetrics{ModelName: modelName},
		dir:      dir,
		now:      time.Now,
		registry: reg,
		prom:     newCollectors(reg),
	}
	return t
}

func newCollectors(reg *prometheus.Registry) *collectors {
	c := &collectors{
		inferences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_inferences_total",
			Help: "Total number of successful chat completions",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_inference_errors_total",
			Help: "Total number of failed chat completions",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "supportbot_inference_latency_seconds",
			Help:    "End-to-end chat completion latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_tokens_generated_total",
			Help: "Total tokens generated",
		}),
		loadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "supportbot_model_load_seconds",
			Help: "Time taken to load the base model and adapter",
		}),
		backend: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supportbot_backend_request_seconds",
			Help:    "Model server call duration by operation and outcome",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(c.inferences, c.errors, c.latency, c.tokens, c.loadTime, c.backend)
	return c
}

// LogModelLoad records where the adapter came from and how long loading took.
func (t *Tracker) LogModelLoad(adapterPath string, d time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.model.AdapterPath = adapterPath
	t.model.LoadTimeSeconds = d.Seconds()
	t.prom.loadTime.Set(d.Seconds())
	logging.LogEvent("[METRICS] Model loaded from %s in %.2fs", adapterPath, d.Seconds())
}

// LogInference appends an InferenceRecord and updates the aggregate. When tokens is zero the token
// count falls back to the number of whitespace-separated words in response.
func (t *Tracker) LogInference(question, response string, latency time.Duration, tokens int) {
	if tokens <= 0 {
		tokens = len(strings.Fields(response))
	}
	record := InferenceRecord{
		Timestamp:       t.now(),
		Question:        truncate(question, questionLimit),
		ResponseLength:  utf8.RuneCountInString(response),
		LatencyMs:       float64(latency) / float64(time.Millisecond),
		TokensGenerated: tokens,
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.history = append(t.history, record)
	t.model.TotalInferences++
	updateRunningStat(&t.latency, record.LatencyMs)
	updateRunningStat(&t.respLen, float64(record.ResponseLength))
	t.model.AvgLatencyMs = t.latency.Mean

	t.prom.inferences.Inc()
	t.prom.latency.Observe(latency.Seconds())
	t.prom.tokens.Add(float64(tokens))
}

// LogError counts a failed chat call. Errors do not enter the inference history.
func (t *Tracker) LogError() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.model.Errors++
	t.prom.errors.Inc()
}

// ObserveBackend records the duration of one model server call.
func (t *Tracker) ObserveBackend(operation string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.prom.backend.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// Summary returns a snapshot of the model metrics, the most recent records (oldest first) and
// statistics derived from the full history.
func (t *Tracker) Summary() Summary {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	start := len(t.history) - recentLimit
	if start < 0 {
		start = 0
	}
	recent := make([]InferenceRecord, len(t.history)-start)
	copy(recent, t.history[start:])

	denominator := t.model.TotalInferences
	if denominator < 1 {
		denominator = 1
	}
	return Summary{
		Model:            t.model,
		RecentInferences: recent,
		Stats: Stats{
			TotalRequests:     t.model.TotalInferences,
			ErrorRate:         float64(t.model.Errors) / float64(denominator),
			AvgLatencyMs:      t.latency.Mean,
			MinLatencyMs:      t.latency.Min,
			MaxLatencyMs:      t.latency.Max,
			AvgResponseLength: t.respLen.Mean,
		},
	}
}

// Path returns today's metrics file.
func (t *Tracker) Path() string {
	return filepath.Join(t.dir, fmt.Sprintf("metrics_%s.json", t.now().Format("20060102")))
}

// Save writes the current summary to today's metrics file, replacing any earlier save from the same day.
func (t *Tracker) Save() (string, error) {
	summary := t.Summary()
	path := t.Path()
	logging.LogEvent("[METRICS] Saving metrics to %s", path)

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write metrics file: %w", err)
	}
	return path, nil
}

// Handler exposes the tracker's Prometheus collectors.
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// ReadSummary loads a summary previously written by Save.
func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("decode metrics file %s: %w", path, err)
	}
	return s, nil
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
