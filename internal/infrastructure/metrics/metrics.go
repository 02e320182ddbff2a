package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_gate_decisions_total",
		Help: "Pre-trade gate decisions by result and reason",
	}, []string{"result", "reason"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_total",
		Help: "Orders placed by type and side",
	}, []string{"type", "side"})

	EntryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_entry_outcomes_total",
		Help: "Entry orders by outcome (filled|timed_out|canceled)",
	}, []string{"outcome"})

	Exits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_exit_reasons_total",
		Help: "Closed positions by exit reason",
	}, []string{"reason"})

	IterationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_iteration_errors_total",
		Help: "Run loop iterations aborted by error kind",
	}, []string{"kind"})

	InPosition = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_in_position",
		Help: "1 while a position is open",
	})

	PanicMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_panic_mode",
		Help: "1 once the panic latch is set",
	})

	DailyRealizedLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_daily_realized_loss",
		Help: "Realized loss accumulated since the last daily reset, quote currency",
	})

	DailyTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_daily_trades",
		Help: "Entries filled since the last daily reset",
	})
)

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

func SetInPosition(v bool) { boolGauge(InPosition, v) }
func SetPanicMode(v bool)  { boolGauge(PanicMode, v) }
