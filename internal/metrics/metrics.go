package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxLatencySamples = 10_000

// Result classifies one finished relay request.
type Result string

const (
	ResultCompleted            Result = "completed"
	ResultDegraded             Result = "degraded"
	ResultCancelled            Result = "cancelled"
	ResultConfigurationFailure Result = "configuration_failure"
	ResultPreStreamFailure     Result = "pre_stream_failure"
)

// Metrics collects in-memory relay statistics. The relay never reads them.
type Metrics struct {
	total                 int64
	completed             int64
	degraded              int64
	cancelled             int64
	configurationFailures int64
	preStreamFailures     int64

	mu        sync.Mutex
	latencies []int64 // ms, streamed requests only
}

// Snapshot is served by the /metrics endpoint.
type Snapshot struct {
	TotalRequests         int64   `json:"total_requests"`
	Completed             int64   `json:"completed"`
	Degraded              int64   `json:"degraded"`
	Cancelled             int64   `json:"cancelled"`
	ConfigurationFailures int64   `json:"configuration_failures"`
	PreStreamFailures     int64   `json:"pre_stream_failures"`
	AvgLatencyMs          float64 `json:"avg_latency_ms"`
	P95LatencyMs          int64   `json:"p95_latency_ms"`
}

func New() *Metrics {
	return &Metrics{latencies: make([]int64, 0, 1024)}
}

// Record captures a single finished request. Latency is only sampled for
// requests that reached the provider stream.
func (m *Metrics) Record(result Result, latency time.Duration) {
	atomic.AddInt64(&m.total, 1)

	switch result {
	case ResultCompleted:
		atomic.AddInt64(&m.completed, 1)
	case ResultDegraded:
		atomic.AddInt64(&m.degraded, 1)
	case ResultCancelled:
		atomic.AddInt64(&m.cancelled, 1)
	case ResultConfigurationFailure:
		atomic.AddInt64(&m.configurationFailures, 1)
		return
	case ResultPreStreamFailure:
		atomic.AddInt64(&m.preStreamFailures, 1)
		return
	}

	m.mu.Lock()
	if len(m.latencies) < maxLatencySamples {
		m.latencies = append(m.latencies, latency.Milliseconds())
	} else {
		// Rolling window: drop oldest sample.
		copy(m.latencies, m.latencies[1:])
		m.latencies[maxLatencySamples-1] = latency.Milliseconds()
	}
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	lats := make([]int64, len(m.latencies))
	copy(lats, m.latencies)
	m.mu.Unlock()

	var avgMs float64
	var p95Ms int64
	if len(lats) > 0 {
		sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
		var sum int64
		for _, v := range lats {
			sum += v
		}
		avgMs = float64(sum) / float64(len(lats))
		idx := int(math.Ceil(float64(len(lats))*0.95)) - 1
		if idx < 0 {
			idx = 0
		}
		p95Ms = lats[idx]
	}

	return Snapshot{
		TotalRequests:         atomic.LoadInt64(&m.total),
		Completed:             atomic.LoadInt64(&m.completed),
		Degraded:              atomic.LoadInt64(&m.degraded),
		Cancelled:             atomic.LoadInt64(&m.cancelled),
		ConfigurationFailures: atomic.LoadInt64(&m.configurationFailures),
		PreStreamFailures:     atomic.LoadInt64(&m.preStreamFailures),
		AvgLatencyMs:          math.Round(avgMs),
		P95LatencyMs:          p95Ms,
	}
}

// Handler serves the snapshot as JSON.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	}
}
