package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoundsSettled.WithLabelValues("fixed").Inc()
	m.RoundsSettled.WithLabelValues("fixed").Inc()
	m.Rejections.WithLabelValues("fixed", "PUNISHMENT", "E_SELF_TARGETING").Inc()
	m.CostClamps.WithLabelValues("transfer_cost").Inc()
	m.SettleLatency.WithLabelValues("fixed").Observe(0.002)
	m.ActiveGroups.Set(3)

	if got := testutil.ToFloat64(m.RoundsSettled.WithLabelValues("fixed")); got != 2 {
		t.Fatalf("rounds settled=%v", got)
	}
	if got := testutil.ToFloat64(m.Rejections.WithLabelValues("fixed", "PUNISHMENT", "E_SELF_TARGETING")); got != 1 {
		t.Fatalf("rejections=%v", got)
	}
	if got := testutil.ToFloat64(m.ActiveGroups); got != 3 {
		t.Fatalf("active groups=%v", got)
	}
	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n < 4 {
		t.Fatalf("expected at least 4 series, got %d", n)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Registering twice on one registry panics; distinct registries must not.
	a := New(prometheus.NewRegistry())
	b := New(nil)
	a.CostClamps.WithLabelValues("fixed").Inc()
	if got := testutil.ToFloat64(b.CostClamps.WithLabelValues("fixed")); got != 0 {
		t.Fatalf("registries leaked state: %v", got)
	}
}
