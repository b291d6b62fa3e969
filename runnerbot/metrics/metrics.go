package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the bot's collectors. It satisfies lifecycle.Recorder and
// doubles as the timer scheduler observer.
type Registry struct {
	reg *prometheus.Registry

	Placed      *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Karma       *prometheus.CounterVec
	Fired       *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	Active      prometheus.GaugeFunc
	Offers      prometheus.GaugeFunc
	Latency     *prometheus.HistogramVec
	Redemptions *prometheus.CounterVec
}

// NewRegistry builds the collectors. activeOrders and openOffers are sampled
// on every scrape.
func NewRegistry(activeOrders, openOffers func() float64) *Registry {
	r := prometheus.NewRegistry()

	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karma_runner_orders_placed_total",
		Help: "Orders placed, by drink category and initiator.",
	}, []string{"category", "initiated_by"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karma_runner_order_transitions_total",
		Help: "Order status transitions.",
	}, []string{"from", "to"})
	moved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karma_runner_karma_moved_total",
		Help: "Karma points debited, credited or refunded.",
	}, []string{"reason"})
	fired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karma_runner_timers_fired_total",
		Help: "Timer callbacks that reached the lifecycle, split by staleness.",
	}, []string{"kind", "stale"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karma_runner_timers_dropped_total",
		Help: "Timers that fired after being canceled.",
	}, []string{"kind"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "karma_runner_command_seconds",
		Help:    "Interaction handler latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name", "status"})
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karma_runner_redemptions_total",
		Help: "Redemption attempts by outcome.",
	}, []string{"status"})

	if activeOrders == nil {
		activeOrders = func() float64 { return 0 }
	}
	if openOffers == nil {
		openOffers = func() float64 { return 0 }
	}
	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "karma_runner_active_orders",
		Help: "Orders that are pending or claimed.",
	}, activeOrders)
	offers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "karma_runner_open_offers",
		Help: "Runner offers currently open.",
	}, openOffers)

	r.MustRegister(
		placed, transitions, moved, fired, dropped, latency, redemptions, active, offers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:         r,
		Placed:      placed,
		Transitions: transitions,
		Karma:       moved,
		Fired:       fired,
		Dropped:     dropped,
		Active:      active,
		Offers:      offers,
		Latency:     latency,
		Redemptions: redemptions,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) OrderPlaced(category orders.Category, initiator orders.Initiator) {
	r.Placed.WithLabelValues(string(category), string(initiator)).Inc()
}

func (r *Registry) OrderTransitioned(from, to orders.Status) {
	r.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (r *Registry) KarmaMoved(reason string, amount int64) {
	r.Karma.WithLabelValues(reason).Add(float64(amount))
}

func (r *Registry) TimerFired(kind timers.Kind, stale bool) {
	r.Fired.WithLabelValues(kind.String(), strconv.FormatBool(stale)).Inc()
}

// ObserveTimer is installed with timers.Scheduler.SetObserver.
func (r *Registry) ObserveTimer(kind timers.Kind, dropped bool) {
	if dropped {
		r.Dropped.WithLabelValues(kind.String()).Inc()
	}
}

func (r *Registry) Redeemed(status string) {
	r.Redemptions.WithLabelValues(status).Inc()
}

// ObserveCommand records how long an interaction handler ran.
func (r *Registry) ObserveCommand(name, status string, took time.Duration) {
	r.Latency.WithLabelValues(name, status).Observe(took.Seconds())
}
