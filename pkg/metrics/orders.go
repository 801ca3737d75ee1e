package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts domain activity across orders, payments, tracking and
// the outbox relay. A nil *OrderMetrics is a no-op.
type OrderMetrics struct {
	placed            prometheus.Counter
	allocationRetries *prometheus.CounterVec
	contention        *prometheus.CounterVec
	payments          *prometheus.CounterVec
	tracking          *prometheus.CounterVec
	outbox            *prometheus.CounterVec
	backlog           prometheus.Gauge
}

// NewOrderMetrics registers the domain counters on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders successfully placed.",
	})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_number_allocation_retries_total",
		Help: "Order number allocations retried after a duplicate number.",
	}, []string{"strategy"})
	contention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_number_contention_total",
		Help: "Placements abandoned after exhausting the retry budget.",
	}, []string{"strategy"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Payment records appended to the ledger.",
	}, []string{"method"})
	tracking := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_transitions_total",
		Help: "Fulfillment status changes applied.",
	}, []string{"status"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_total",
		Help: "Outbox events relayed to the broker.",
	}, []string{"event_type", "result"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending_events",
		Help: "Outbox events waiting for delivery with attempts left.",
	})
	reg.MustRegister(placed, retries, contention, payments, tracking, outbox, backlog)
	return &OrderMetrics{
		placed:            placed,
		allocationRetries: retries,
		contention:        contention,
		payments:          payments,
		tracking:          tracking,
		outbox:            outbox,
		backlog:           backlog,
	}
}

func (m *OrderMetrics) IncPlaced() {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.Inc()
}

func (m *OrderMetrics) IncAllocationRetry(strategy string) {
	if m == nil || m.allocationRetries == nil {
		return
	}
	m.allocationRetries.WithLabelValues(label(strategy)).Inc()
}

func (m *OrderMetrics) IncContention(strategy string) {
	if m == nil || m.contention == nil {
		return
	}
	m.contention.WithLabelValues(label(strategy)).Inc()
}

func (m *OrderMetrics) IncPaymentRecorded(method string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(label(method)).Inc()
}

func (m *OrderMetrics) IncTrackingTransition(status string) {
	if m == nil || m.tracking == nil {
		return
	}
	m.tracking.WithLabelValues(label(status)).Inc()
}

// IncOutboxRelay records one relay attempt; result is "published" or "failed".
func (m *OrderMetrics) IncOutboxRelay(eventType, result string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(label(eventType), label(result)).Inc()
}

func (m *OrderMetrics) SetOutboxBacklog(pending int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(pending))
}
