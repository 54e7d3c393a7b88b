package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lock acquisition counter by outcome
	// conflict rate is the core product signal: conflict / (granted + conflict)
	// labels: status (granted/conflict/contention)
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claustra_lock_acquire_total",
			Help: "total number of field lock acquisition attempts",
		},
		[]string{"status"},
	)

	// heartbeat counter - tracks keepalive activity
	// high rate = healthy editing sessions
	HeartbeatTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claustra_heartbeat_total",
			Help: "total number of heartbeats processed",
		},
	)

	// released locks - explicit releases through Unlock
	LockReleaseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claustra_lock_release_total",
			Help: "total number of field locks released explicitly",
		},
	)

	// reaped locks - abandoned rows cleaned up by the background sweep
	// spikes indicate crashed or disconnected editors
	LockReapTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claustra_lock_reap_total",
			Help: "total number of expired field locks swept away",
		},
	)

	// currently active locks - gauge refreshed by the reaper on each sweep
	LocksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "claustra_locks_active",
			Help: "current number of active field locks",
		},
	)

	// service uptime - always 1 when running
	// prometheus uses this to detect service restarts
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "claustra_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	// set uptime gauge to 1 on startup
	Up.Set(1)
}
