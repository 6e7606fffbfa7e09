package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMarketMetricsRecordOutcomes(t *testing.T) {
	m := Market()
	before := testutil.ToFloat64(m.failures.WithLabelValues("buy_listing", "swap_mismatch"))

	m.ObserveExecution("market", "buy_listing", "swap_mismatch", time.Millisecond)
	m.ObserveExecution("market", "buy_listing", "", time.Millisecond)
	m.RecordMessages("bank", 2)
	m.RecordMessages("wasm", 0)
	m.SetHeight(77)

	require.Equal(t, before+1, testutil.ToFloat64(m.failures.WithLabelValues("buy_listing", "swap_mismatch")))
	require.Equal(t, float64(77), testutil.ToFloat64(m.height))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.messages.WithLabelValues("bank")), float64(2))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var market *MarketMetrics
	market.ObserveExecution("market", "fee_cycle", "", time.Second)
	market.SetHeight(1)

	var module *moduleMetrics
	module.Observe("rpc", "cyberswap_status", 200, time.Second)
	module.RecordThrottle("rpc", "")

	var events *eventMetrics
	events.RecordEvent("cyberswap.listing.created")
}

func TestEventMetricsCountByType(t *testing.T) {
	e := Events()
	before := testutil.ToFloat64(e.emitted.WithLabelValues("unknown"))
	e.RecordEvent("  ")
	require.Equal(t, before+1, testutil.ToFloat64(e.emitted.WithLabelValues("unknown")))
}
