package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bingot"

// Metrics groups the node's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Hashes       prometheus.Counter
	Rounds       *prometheus.CounterVec
	Blocks       *prometheus.CounterVec
	Transactions *prometheus.CounterVec
	Reorgs       prometheus.Counter
	ReorgDepth   prometheus.Histogram
	Height       prometheus.Gauge
	MempoolSize  prometheus.Gauge
	State        *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hashes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hashes_total",
			Help:      "Header hashes computed by the miner.",
		}),
		Rounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mining_rounds_total",
			Help:      "Finished mining rounds by outcome.",
		}, []string{"outcome"}),
		Blocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Blocks handed to the chain by source and result.",
		}, []string{"source", "result"}),
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions received by result.",
		}, []string{"result"}),
		Reorgs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorgs_total",
			Help:      "Chain reorganizations.",
		}),
		ReorgDepth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reorg_depth_blocks",
			Help:      "Blocks disconnected per reorganization.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		Height: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_length",
			Help:      "Canonical chain length including genesis.",
		}),
		MempoolSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_transactions",
			Help:      "Pending transactions.",
		}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_state",
			Help:      "1 for the node's current state, 0 otherwise.",
		}, []string{"state"}),
	}
}

func (m *Metrics) AddHashes(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.Hashes.Add(float64(n))
}

func (m *Metrics) RoundFinished(outcome string) {
	if m == nil {
		return
	}
	m.Rounds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BlockProcessed(source, result string) {
	if m == nil {
		return
	}
	m.Blocks.WithLabelValues(source, result).Inc()
}

func (m *Metrics) TransactionReceived(result string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(result).Inc()
}

func (m *Metrics) Reorganized(depth int) {
	if m == nil {
		return
	}
	m.Reorgs.Inc()
	m.ReorgDepth.Observe(float64(depth))
}

func (m *Metrics) SetHeight(length uint64) {
	if m == nil {
		return
	}
	m.Height.Set(float64(length))
}

func (m *Metrics) SetMempoolSize(n int) {
	if m == nil {
		return
	}
	m.MempoolSize.Set(float64(n))
}

// SetState marks current as the only active state among all.
func (m *Metrics) SetState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.State.WithLabelValues(s).Set(0)
	}
	m.State.WithLabelValues(current).Set(1)
}
