package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PassMetrics tracks detector pass outcomes and alert churn.
type PassMetrics struct {
	passDuration    *prometheus.HistogramVec
	passOutcomes    *prometheus.CounterVec
	alertOperations *prometheus.CounterVec
	openAlerts      *prometheus.GaugeVec
	providerErrors  *prometheus.CounterVec
}

var (
	passMetricsOnce sync.Once
	passMetrics     *PassMetrics
)

func Pass() *PassMetrics {
	return PassWithConfig(Config{})
}

func PassWithConfig(cfg Config) *PassMetrics {
	passMetricsOnce.Do(func() {
		passMetrics = newPassMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return passMetrics
}

func ResetPassMetricsForTest() {
	passMetricsOnce = sync.Once{}
	passMetrics = nil
}

func newPassMetrics(registerer prometheus.Registerer, cfg Config) *PassMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := prometheus.Labels{
		"service": cfg.serviceName(),
		"env":     cfg.environment(),
	}

	passDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "signalway_detector_pass_duration_seconds",
			Help:        "Duration of a single customer+detector reconciliation pass.",
			Buckets:     []float64{0.05, 0.25, 1, 5, 15, 60, 300},
			ConstLabels: constLabels,
		},
		[]string{"detector"},
	)

	passOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "signalway_detector_pass_total",
			Help:        "Detector passes by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"detector", "result"}, // ok | suppressed | provider_error | config_error | storage_error
	)

	alertOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "signalway_alert_operations_total",
			Help:        "Alert rows created, updated and closed by reconciliation.",
			ConstLabels: constLabels,
		},
		[]string{"detector", "operation"}, // created | updated | closed
	)

	openAlerts := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "signalway_open_alerts",
			Help:        "Open alert rows by detector type.",
			ConstLabels: constLabels,
		},
		[]string{"detector"},
	)

	providerErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "signalway_provider_errors_total",
			Help:        "Signal provider fetch failures by provider.",
			ConstLabels: constLabels,
		},
		[]string{"provider"},
	)

	registerer.MustRegister(
		passDuration,
		passOutcomes,
		alertOperations,
		openAlerts,
		providerErrors,
	)

	return &PassMetrics{
		passDuration:    passDuration,
		passOutcomes:    passOutcomes,
		alertOperations: alertOperations,
		openAlerts:      openAlerts,
		providerErrors:  providerErrors,
	}
}

func (m *PassMetrics) ObservePassDuration(detector string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(detector).Observe(elapsed.Seconds())
}

func (m *PassMetrics) IncPassOutcome(detector, result string) {
	if m == nil {
		return
	}
	m.passOutcomes.WithLabelValues(detector, result).Inc()
}

func (m *PassMetrics) AddAlertOperations(detector, operation string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alertOperations.WithLabelValues(detector, operation).Add(float64(count))
}

func (m *PassMetrics) SetOpenAlerts(detector string, count int) {
	if m == nil {
		return
	}
	m.openAlerts.WithLabelValues(detector).Set(float64(count))
}

func (m *PassMetrics) IncProviderError(provider string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider).Inc()
}
