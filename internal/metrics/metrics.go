package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the watcher pipeline.
type Metrics struct {
	blocksScanned  prometheus.Counter
	eventsDecoded  *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	reportsSent    *prometheus.CounterVec
	reportsDropped *prometheus.CounterVec
	rpcErrors      prometheus.Counter
	reorgs         prometheus.Counter
	streamDrops    prometheus.Counter
	cursorHeight   prometheus.Gauge
	chainHead      prometheus.Gauge
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			blocksScanned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "spider_blocks_scanned_total",
				Help: "Total number of blocks scanned",
			}),
			eventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "spider_events_decoded_total",
				Help: "Total number of log entries decoded, by kind",
			}, []string{"kind"}),
			decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "spider_decode_errors_total",
				Help: "Total number of malformed log entries skipped",
			}),
			reportsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "spider_reports_sent_total",
				Help: "Total number of reports delivered, by sink",
			}, []string{"sink"}),
			reportsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "spider_reports_dropped_total",
				Help: "Total number of reports not delivered, by reason",
			}, []string{"reason"}),
			rpcErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "spider_rpc_errors_total",
				Help: "Total number of node RPC failures",
			}),
			reorgs: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "spider_reorgs_total",
				Help: "Total number of chain reorganizations detected",
			}),
			streamDrops: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "spider_stream_drops_total",
				Help: "Total number of websocket subscription drops",
			}),
			cursorHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "spider_cursor_height",
				Help: "Last confirmed block height processed",
			}),
			chainHead: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "spider_chain_head",
				Help: "Latest block height reported by the node",
			}),
		}
		prometheus.MustRegister(
			metrics.blocksScanned,
			metrics.eventsDecoded,
			metrics.decodeErrors,
			metrics.reportsSent,
			metrics.reportsDropped,
			metrics.rpcErrors,
			metrics.reorgs,
			metrics.streamDrops,
			metrics.cursorHeight,
			metrics.chainHead,
		)
	})
	return metrics
}

// BlocksScanned adds n to the blocks scanned counter.
func (m *Metrics) BlocksScanned(n uint64) {
	if m != nil {
		m.blocksScanned.Add(float64(n))
	}
}

// EventDecoded increments the decoded counter for an event kind.
func (m *Metrics) EventDecoded(kind string) {
	if m != nil {
		m.eventsDecoded.WithLabelValues(kind).Inc()
	}
}

// DecodeError increments the malformed entry counter.
func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// ReportSent increments the sent counter for a sink.
func (m *Metrics) ReportSent(sink string) {
	if m != nil {
		m.reportsSent.WithLabelValues(sink).Inc()
	}
}

// ReportDropped increments the dropped counter for a reason.
func (m *Metrics) ReportDropped(reason string) {
	if m != nil {
		m.reportsDropped.WithLabelValues(reason).Inc()
	}
}

// RPCError increments the node failure counter.
func (m *Metrics) RPCError() {
	if m != nil {
		m.rpcErrors.Inc()
	}
}

// ReorgDetected increments the reorg counter.
func (m *Metrics) ReorgDetected() {
	if m != nil {
		m.reorgs.Inc()
	}
}

// StreamDropped increments the subscription drop counter.
func (m *Metrics) StreamDropped() {
	if m != nil {
		m.streamDrops.Inc()
	}
}

// SetCursorHeight records the last processed block height.
func (m *Metrics) SetCursorHeight(h uint64) {
	if m != nil {
		m.cursorHeight.Set(float64(h))
	}
}

// SetChainHead records the node's latest block height.
func (m *Metrics) SetChainHead(h uint64) {
	if m != nil {
		m.chainHead.Set(float64(h))
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
