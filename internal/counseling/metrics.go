package counseling

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opCreateSingleSlot    = "create_single_slot"
	opCreateWeeklyPattern = "create_weekly_pattern"
	opDeleteSlot          = "delete_slot"
	opAttachMeeting       = "attach_meeting"
	opReserveSlot         = "reserve_slot"
	opCancelReservation   = "cancel_reservation"
	opApproveReservation  = "approve_reservation"
	opMeetingReminders    = "meeting_reminders"
)

// reasons for weekly occurrences that were not created
const (
	skipPast     = "past"
	skipConflict = "conflict"
	skipInvalid  = "invalid"
)

var (
	// operationsTotal counts mutating engine calls by outcome code
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counseling_operations_total",
		Help: "Total counseling engine operations by operation and result",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "counseling_operation_duration_seconds",
		Help:    "Counseling engine operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"operation"})

	// weeklySkipped counts pattern occurrences that were not created
	weeklySkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counseling_weekly_occurrences_skipped_total",
		Help: "Weekly pattern occurrences skipped by reason",
	}, []string{"reason"})
)

func observe(op string, started time.Time, errp *error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	operationsTotal.WithLabelValues(op, ErrorCode(*errp)).Inc()
}
