package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the auth subsystem.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DbAuthRequests      *prometheus.CounterVec
	AuthResolutions     *prometheus.CounterVec
	PasswordHashSeconds prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DbAuthRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbauth_requests_total",
			Help: "Total number of dbAuth invocations by method and status code",
		}, []string{"method", "status"}),
		AuthResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_context_resolutions_total",
			Help: "Total number of auth context resolutions by provider and outcome",
		}, []string{"provider", "outcome"}),
		PasswordHashSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dbauth_password_hash_duration_seconds",
			Help:    "Duration of PBKDF2 password hashing",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.DbAuthRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveResolution(provider, outcome string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "none"
	}
	m.AuthResolutions.WithLabelValues(provider, outcome).Inc()
}

// ObservePasswordHash records the time since start.
func (m *Metrics) ObservePasswordHash(start time.Time) {
	if m == nil {
		return
	}
	m.PasswordHashSeconds.Observe(time.Since(start).Seconds())
}
