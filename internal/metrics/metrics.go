package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ams"

// Registry is the Prometheus registry served at /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels; the value is always 1.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Outcomes of a date request.
const (
	DateRequestAssigned   = "assigned"
	DateRequestNoDelegate = "no_delegate"
	DateRequestQuota      = "quota_exceeded"
	DateRequestInvalid    = "invalid"
	DateRequestError      = "error"
)

// DateRequests counts organizer date requests by outcome.
var DateRequests = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "date_requests_total",
		Help:      "Total number of competition date requests by outcome",
	},
	[]string{"outcome"},
)

// Notification delivery results.
const (
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationFailed  = "failed"
)

// NotificationAbandoned is counted once per job that used its last attempt.
const NotificationAbandoned = "abandoned"

// Notifications counts email deliveries by job kind and result.
var Notifications = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notification emails by kind and result",
	},
	[]string{"kind", "result"},
)

// SessionsDeleted counts expired sessions removed by the cleanup job.
var SessionsDeleted = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_deleted_total",
		Help:      "Total number of expired sessions deleted by the cleanup job",
	},
)

var registerRuntime sync.Once

// Init registers the Go and process collectors and sets build information.
// Collectors are registered only on the first call.
func Init(version, commit, buildDate string) {
	registerRuntime.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
