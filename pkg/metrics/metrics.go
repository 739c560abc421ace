package metrics

//go:generate mockgen -package=mocks -destination=mocks/metrics.go github.com/trussle/expense/pkg/metrics Counter,Gauge,HistogramVec,Observer

import "github.com/prometheus/client_golang/prometheus"

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Inc()
	Dec()
	Set(float64)
}

// HistogramVec is a collection of histograms partitioned by labels.
type HistogramVec interface {
	WithLabelValues(...string) prometheus.Observer
}

// Observer records single observations.
type Observer interface {
	Observe(float64)
}
