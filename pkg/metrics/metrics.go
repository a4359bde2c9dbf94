// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersSettled counts committed orders by type (create, redeem,
// redeem_no_settlement).
var OrdersSettled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolengine_orders_settled_total",
		Help: "Total number of orders committed by the settlement coordinator",
	},
	[]string{"type"},
)

// OrdersRejected counts rejected settlement calls by reason.
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolengine_orders_rejected_total",
		Help: "Total number of settlement calls rejected before commit",
	},
	[]string{"reason"},
)

// Rebalances counts committed rebalances by kind (daily, threshold).
var Rebalances = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poolengine_rebalances_total",
		Help: "Total number of committed rebalance cycles",
	},
	[]string{"kind"},
)

// RebalanceMismatches counts rebalance submissions whose expected end
// state diverged from the recomputation.
var RebalanceMismatches = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "poolengine_rebalance_mismatches_total",
		Help: "Total number of rebalance submissions rejected on cross-validation",
	},
)

// DelayedRedemptionOutstanding tracks the aggregate delayed-redemption
// balance awaiting settlement.
var DelayedRedemptionOutstanding = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "poolengine_delayed_redemption_outstanding",
		Help: "Aggregate delayed-redemption amount awaiting settlement",
	},
)

func init() {
	prometheus.MustRegister(OrdersSettled, OrdersRejected)
	prometheus.MustRegister(Rebalances, RebalanceMismatches)
	prometheus.MustRegister(DelayedRedemptionOutstanding)
}
