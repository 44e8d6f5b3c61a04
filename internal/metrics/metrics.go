package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive 현재 열린 강의실 WebSocket 연결 수
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classroom_ws_connections_active",
			Help: "Number of open classroom websocket connections",
		},
	)

	// RoomsActive 연결이 하나 이상 있는 미팅(룸) 수
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classroom_rooms_active",
			Help: "Number of meetings with at least one registered connection",
		},
	)

	// EnvelopesTotal 수신 메시지 처리 결과
	// Labels: type (join/chat_message/...), result (ok/validation/forbidden/not_found/internal/ignored)
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_envelopes_total",
			Help: "Inbound envelopes handled by type and result",
		},
		[]string{"type", "result"},
	)

	// BroadcastDeliveriesTotal 브로드캐스트 전달 결과
	// Labels: result (delivered/pruned)
	BroadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_broadcast_deliveries_total",
			Help: "Per-peer broadcast deliveries by result",
		},
		[]string{"result"},
	)

	// HandlerDuration 메시지 처리 시간 (초)
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classroom_envelope_duration_seconds",
			Help:    "Inbound envelope handling duration in seconds by type",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"type"},
	)

	// MeetingTransitionsTotal 미팅 상태 전이 수
	// Labels: to (live/ended/cancelled)
	MeetingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_meeting_transitions_total",
			Help: "Meeting status transitions by target status",
		},
		[]string{"to"},
	)
)

// RecordEnvelope 메시지 처리 결과 기록
func RecordEnvelope(msgType, result string, elapsed time.Duration) {
	EnvelopesTotal.WithLabelValues(msgType, result).Inc()
	HandlerDuration.WithLabelValues(msgType).Observe(elapsed.Seconds())
}

// RecordDelivery 브로드캐스트 전달 결과 기록
func RecordDelivery(delivered, pruned int) {
	if delivered > 0 {
		BroadcastDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	}
	if pruned > 0 {
		BroadcastDeliveriesTotal.WithLabelValues("pruned").Add(float64(pruned))
	}
}

// RecordTransition 미팅 상태 전이 기록
func RecordTransition(to string) {
	MeetingTransitionsTotal.WithLabelValues(to).Inc()
}
