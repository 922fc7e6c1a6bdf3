package forge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	Installs           *prometheus.CounterVec
	InstallDuration    prometheus.Histogram
}

// NewMetrics registers the pipeline collectors with reg. A nil reg selects
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matforge_generations_total",
				Help: "Texture generations by operation and result",
			},
			[]string{"operation", "result"},
		),
		GenerationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matforge_generation_duration_seconds",
				Help:    "Time from request to attached material",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"operation"},
		),
		Installs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matforge_installs_total",
				Help: "Environment provisioning runs by result",
			},
			[]string{"result"},
		),
		InstallDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matforge_install_duration_seconds",
				Help:    "Duration of environment provisioning",
				Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600},
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
