package observability

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Metrics is the process-wide counter set, exposed in Prometheus text
// format on /metrics. Everything is plain in-memory state; there is no
// push path.
type Metrics struct {
	apiRequests    *CounterVec
	apiLatency     *HistogramVec
	batchesTotal   *Counter
	batchesFailed  *Counter
	usersFailed    *Counter
	eventsIngested *Counter
	dupBatches     *Counter
	queueDepth     *Gauge
	qtableEntries  *Gauge
	recsServed     *CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("adapt_api_requests_total",
			"API requests by method, route and status class.",
			[]string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("adapt_api_latency_seconds",
			"API request latency by route.",
			[]string{"route"},
			[]float64{0.005, 0.025, 0.1, 0.5, 1, 5}),
		batchesTotal: NewCounter("adapt_ingest_batches_total",
			"Event batches pulled off the queue and processed."),
		batchesFailed: NewCounter("adapt_ingest_batches_failed_total",
			"Event batches that failed before any learning update."),
		usersFailed: NewCounter("adapt_ingest_users_failed_total",
			"Per-user processing failures inside otherwise successful batches."),
		eventsIngested: NewCounter("adapt_ingest_events_total",
			"Raw events accepted into the queue."),
		dupBatches: NewCounter("adapt_ingest_duplicate_batches_total",
			"Batches dropped by the idempotency receipt."),
		queueDepth: NewGauge("adapt_ingest_queue_depth",
			"Current depth of the ingestion queue."),
		qtableEntries: NewGauge("adapt_qtable_entries",
			"Distinct states in the q-table."),
		recsServed: NewCounterVec("adapt_recommendations_served_total",
			"Recommendation responses by source.",
			[]string{"source"}),
	}
}

func (m *Metrics) ObserveAPIRequest(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, statusClass(status))
	m.apiLatency.Observe(dur.Seconds(), route)
}

func (m *Metrics) IncBatchProcessed(events int) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
	m.eventsIngested.Add(float64(events))
}

func (m *Metrics) IncBatchFailed() {
	if m == nil {
		return
	}
	m.batchesFailed.Inc()
}

func (m *Metrics) IncUserFailed() {
	if m == nil {
		return
	}
	m.usersFailed.Inc()
}

func (m *Metrics) IncDuplicateBatch() {
	if m == nil {
		return
	}
	m.dupBatches.Inc()
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) SetQTableEntries(n int) {
	if m == nil {
		return
	}
	m.qtableEntries.Set(float64(n))
}

func (m *Metrics) IncRecommendationServed(source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.recsServed.Inc(source)
}

func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = m.WritePrometheus(w)
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency,
		m.batchesTotal, m.batchesFailed, m.usersFailed,
		m.eventsIngested, m.dupBatches,
		m.queueDepth, m.qtableEntries, m.recsServed,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	counts     map[string][]float64
	sums       map[string]float64
	totals     map[string]float64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	return &HistogramVec{
		name:       name,
		help:       help,
		labelNames: labels,
		buckets:    buckets,
		counts:     map[string][]float64{},
		sums:       map[string]float64{},
		totals:     map[string]float64{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	counts, ok := h.counts[lbl]
	if !ok {
		counts = make([]float64, len(h.buckets))
		h.counts[lbl] = counts
	}
	for i, upper := range h.buckets {
		if v <= upper {
			counts[i]++
		}
	}
	h.sums[lbl] += v
	h.totals[lbl]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for lbl, counts := range h.counts {
		inner := strings.TrimSuffix(strings.TrimPrefix(lbl, "{"), "}")
		for i, upper := range h.buckets {
			le := fmt.Sprintf("%g", upper)
			if err := writeBucket(w, h.name, inner, le, counts[i]); err != nil {
				return err
			}
		}
		if err := writeBucket(w, h.name, inner, "+Inf", h.totals[lbl]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, lbl, h.sums[lbl]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %f\n", h.name, lbl, h.totals[lbl]); err != nil {
			return err
		}
	}
	return nil
}

func writeBucket(w io.Writer, name, inner, le string, count float64) error {
	sep := ""
	if inner != "" {
		sep = ","
	}
	_, err := fmt.Fprintf(w, "%s_bucket{%s%sle=%q} %f\n", name, inner, sep, le, count)
	return err
}

func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", name, val))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
