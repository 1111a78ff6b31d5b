package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpulse_broadcasts_total",
		Help: "Total room broadcast operations",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpulse_deliveries_total",
		Help: "Per-send outcomes of broadcast and point-to-point delivery",
	}, []string{"outcome"}) // success | transient | closed

	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpulse_evictions_total",
		Help: "Participants evicted after their channel was detected closed",
	})

	CatchupReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classpulse_catchup_replays_total",
		Help: "Quiz messages replayed to reconnecting participants",
	})

	SchedulerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classpulse_scheduler_cycles_total",
		Help: "Automation loop cycles by result",
	}, []string{"result"}) // sent | skipped

	ActiveSchedules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classpulse_active_schedules",
		Help: "Automation schedules currently running",
	})

	ConnectedParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classpulse_connected_participants",
		Help: "Participants currently joined across all rooms",
	})
)
