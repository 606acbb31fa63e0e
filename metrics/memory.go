package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

// MemoryMetrics keeps metrics in process memory. Useful for tests and
// deployments without a scraper.
type MemoryMetrics struct {
	ctx        context.Context
	logger     types.Logger
	counters   map[string]*MemoryCounter
	gauges     map[string]*MemoryGauge
	histograms map[string]*MemoryHistogram
	mu         sync.RWMutex
	running    int32
	lastUpdate atomic.Value
}

func NewMemoryMetrics(ctx context.Context, logger types.Logger, _ *types.MetricsConfig) (types.MetricsManager, error) {
	metrics := &MemoryMetrics{
		ctx:        ctx,
		logger:     logger,
		counters:   make(map[string]*MemoryCounter),
		gauges:     make(map[string]*MemoryGauge),
		histograms: make(map[string]*MemoryHistogram),
	}

	metrics.lastUpdate.Store(time.Now())

	logger.Info("Memory metrics initialized")
	return metrics, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		m.logger.Warn("Memory metrics is already running")
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("memory metrics started")
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		m.logger.Warn("Memory metrics is not running")
		return types.ErrServerNotRunning
	}

	m.logger.Info("memory metrics stopped")
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := buildMetricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[key]; exists {
		return counter
	}

	counter := &MemoryCounter{}
	m.counters[key] = counter
	m.lastUpdate.Store(time.Now())

	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := buildMetricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[key]; exists {
		return gauge
	}

	gauge := &MemoryGauge{}
	m.gauges[key] = gauge
	m.lastUpdate.Store(time.Now())

	return gauge
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := buildMetricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[key]; exists {
		return histogram
	}

	histogram := NewMemoryHistogram(buckets)
	m.histograms[key] = histogram
	m.lastUpdate.Store(time.Now())

	return histogram
}

func (m *MemoryMetrics) GetMetrics() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]float64, len(m.counters)+len(m.gauges)+len(m.histograms))

	for key, counter := range m.counters {
		snapshot[key] = counter.Get()
	}
	for key, gauge := range m.gauges {
		snapshot[key] = gauge.Get()
	}
	for key, histogram := range m.histograms {
		snapshot[key+"_sum"] = histogram.GetSum()
		snapshot[key+"_count"] = float64(histogram.GetCount())
	}

	return utils.Marshal(snapshot)
}

func (m *MemoryMetrics) GetStats() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.MetricsStats{
		TotalMetrics:     len(m.counters) + len(m.gauges) + len(m.histograms),
		CounterMetrics:   len(m.counters),
		GaugeMetrics:     len(m.gauges),
		HistogramMetrics: len(m.histograms),
		LastUpdate:       m.lastUpdate.Load().(time.Time),
	}

	return utils.Marshal(stats)
}

func buildMetricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	labelNames := make([]string, 0, len(labels))
	for labelName := range labels {
		labelNames = append(labelNames, labelName)
	}
	sort.Strings(labelNames)

	var builder strings.Builder
	builder.WriteString(name)
	for _, labelName := range labelNames {
		builder.WriteString(fmt.Sprintf("{%s=%s}", labelName, labels[labelName]))
	}
	return builder.String()
}

type MemoryCounter struct {
	value uint64
}

func (c *MemoryCounter) Inc() {
	c.Add(1)
}

func (c *MemoryCounter) Add(value float64) {
	if value < 0 {
		return
	}
	for {
		old := atomic.LoadUint64(&c.value)
		updated := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&c.value, old, updated) {
			return
		}
	}
}

func (c *MemoryCounter) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.value))
}

type MemoryGauge struct {
	value uint64
}

func (g *MemoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.value, math.Float64bits(value))
}

func (g *MemoryGauge) Inc() { g.Add(1) }
func (g *MemoryGauge) Dec() { g.Add(-1) }

func (g *MemoryGauge) Add(value float64) {
	for {
		old := atomic.LoadUint64(&g.value)
		updated := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&g.value, old, updated) {
			return
		}
	}
}

func (g *MemoryGauge) Sub(value float64) {
	g.Add(-value)
}

func (g *MemoryGauge) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.value))
}

type MemoryHistogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func NewMemoryHistogram(buckets []float64) *MemoryHistogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &MemoryHistogram{
		buckets: sorted,
		counts:  make([]uint64, len(sorted)),
	}
}

func (h *MemoryHistogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++

	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) GetCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *MemoryHistogram) GetSum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}
