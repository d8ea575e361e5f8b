package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	ordersReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_received_total",
		Help: "Total number of orders accepted by the matching core.",
	})
	ordersRested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_rested_total",
		Help: "Total number of order remainders inserted as resting orders.",
	})
	fillsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fills_executed_total",
			Help: "Total number of completed fill fragments.",
		},
		[]string{"pair"},
	)
	storeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_store_errors_total",
		Help: "Total number of failed order store mirror operations.",
	})
	matchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_latency_seconds",
		Help:    "Latency of one order's full match loop in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	bookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "book_depth_levels",
			Help: "Number of populated price levels per pair and side.",
		},
		[]string{"pair", "side"},
	)
)

// Init registers metrics with the registry once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			ordersReceived,
			ordersRested,
			fillsExecuted,
			storeErrors,
			matchLatency,
			bookDepth,
		)
	})
}

// Handler exposes the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func IncOrdersReceived() {
	Init()
	ordersReceived.Inc()
}

func IncOrdersRested() {
	Init()
	ordersRested.Inc()
}

func AddFillsExecuted(pair string, n int) {
	Init()
	if n <= 0 {
		return
	}
	fillsExecuted.WithLabelValues(pair).Add(float64(n))
}

func IncStoreErrors() {
	Init()
	storeErrors.Inc()
}

func ObserveMatchLatency(d time.Duration) {
	Init()
	matchLatency.Observe(d.Seconds())
}

func SetBookDepth(pair, side string, levels int) {
	Init()
	bookDepth.WithLabelValues(pair, side).Set(float64(levels))
}
