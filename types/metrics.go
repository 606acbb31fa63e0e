package types

import (
	"time"
)

type MetricsManager interface {
	LifecycleManager
	Counter(name string, labels map[string]string) Counter
	Gauge(name string, labels map[string]string) Gauge
	Histogram(name string, buckets []float64, labels map[string]string) Histogram
	GetMetrics() ([]byte, error)
	GetStats() ([]byte, error)
}

type Counter interface {
	Inc()
	Add(value float64)
	Get() float64
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(value float64)
	Sub(value float64)
	Get() float64
}

type Histogram interface {
	Observe(value float64)
	ObserveDuration(start time.Time)
	GetCount() uint64
	GetSum() float64
}

type MetricsManagerCreator func(config interface{}) (MetricsManager, error)

type MetricsStats struct {
	TotalMetrics     int       `json:"total_metrics"`
	CounterMetrics   int       `json:"counter_metrics"`
	GaugeMetrics     int       `json:"gauge_metrics"`
	HistogramMetrics int       `json:"histogram_metrics"`
	LastUpdate       time.Time `json:"last_update"`
}
