package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счетчики и датчики протокольного слоя.
// Экспортируются через /metrics (promhttp в main).
var (
	BusDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bridge_messages_dispatched_total",
		Help: "Messages accepted by the bridge bus and delivered to handlers",
	})

	BusSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bridge_messages_sent_total",
		Help: "Envelopes successfully written to a frame",
	})

	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_bridge_messages_dropped_total",
		Help: "Messages rejected before dispatch, by reason",
	}, []string{"reason"})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_rooms",
		Help: "PvP match rooms currently running",
	})

	ActivePracticeGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_practice_games",
		Help: "Single-player practice sessions currently active",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_ws_connections",
		Help: "Open game websocket connections",
	})

	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_games_finished_total",
		Help: "Finished matches by game kind",
	}, []string{"kind"})
)
