package realme

import "github.com/prometheus/client_golang/prometheus"

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordAuthAttempt records one completed authentication attempt.
	RecordAuthAttempt(mode IntegrationMode, success bool)

	// RecordIdentityDecode records an identity document extraction.
	RecordIdentityDecode(success bool)

	// RecordRejectedRedirect records a stored back-URL that failed
	// same-site validation.
	RecordRejectedRedirect()
}

// NoopMetricsRecorder is a no-op implementation for when metrics are
// disabled. All methods are safe to call and do nothing.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a new no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

// RecordAuthAttempt is a no-op.
func (n *NoopMetricsRecorder) RecordAuthAttempt(mode IntegrationMode, success bool) {}

// RecordIdentityDecode is a no-op.
func (n *NoopMetricsRecorder) RecordIdentityDecode(success bool) {}

// RecordRejectedRedirect is a no-op.
func (n *NoopMetricsRecorder) RecordRejectedRedirect() {}

// PrometheusMetricsRecorder records metrics using Prometheus.
type PrometheusMetricsRecorder struct {
	authAttemptsTotal      *prometheus.CounterVec
	identityDecodesTotal   *prometheus.CounterVec
	rejectedRedirectsTotal prometheus.Counter
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus metrics
// recorder with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	authAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realme_auth_attempts_total",
		Help: "Total RealMe authentication attempts",
	}, []string{"mode", "result"})

	identityDecodesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realme_identity_decodes_total",
		Help: "Total federated identity document extractions",
	}, []string{"result"})

	rejectedRedirectsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realme_rejected_redirects_total",
		Help: "Total stored back-URLs rejected by same-site validation",
	})

	reg.MustRegister(
		authAttemptsTotal,
		identityDecodesTotal,
		rejectedRedirectsTotal,
	)

	return &PrometheusMetricsRecorder{
		authAttemptsTotal:      authAttemptsTotal,
		identityDecodesTotal:   identityDecodesTotal,
		rejectedRedirectsTotal: rejectedRedirectsTotal,
	}
}

// RecordAuthAttempt records one completed authentication attempt.
func (p *PrometheusMetricsRecorder) RecordAuthAttempt(mode IntegrationMode, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.authAttemptsTotal.WithLabelValues(string(mode), result).Inc()
}

// RecordIdentityDecode records an identity document extraction.
func (p *PrometheusMetricsRecorder) RecordIdentityDecode(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.identityDecodesTotal.WithLabelValues(result).Inc()
}

// RecordRejectedRedirect records a rejected redirect target.
func (p *PrometheusMetricsRecorder) RecordRejectedRedirect() {
	p.rejectedRedirectsTotal.Inc()
}
