package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/relayd/internal/metrics"
	"github.com/dantte-lp/relayd/internal/relay"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.PacketsIn == nil {
		t.Error("PacketsIn is nil")
	}
	if c.PacketsRelayed == nil {
		t.Error("PacketsRelayed is nil")
	}
	if c.PacketsDropped == nil {
		t.Error("PacketsDropped is nil")
	}
	if c.CommandsOK == nil {
		t.Error("CommandsOK is nil")
	}
	if c.CommandsErrors == nil {
		t.Error("CommandsErrors is nil")
	}
	if c.SessionsExpired == nil {
		t.Error("SessionsExpired is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SessionCreated()
	c.SessionCreated()
	if v := gaugeValue(t, c.Sessions); v != 2 {
		t.Errorf("Sessions = %v, want 2", v)
	}

	c.SessionDestroyed()
	if v := gaugeValue(t, c.Sessions); v != 1 {
		t.Errorf("Sessions = %v, want 1", v)
	}

	c.SessionExpired()
	if v := counterValue(t, c.SessionsExpired); v != 1 {
		t.Errorf("SessionsExpired = %v, want 1", v)
	}
}

func TestPacketCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.PacketIn(relay.DirCallee)
	c.PacketIn(relay.DirCallee)
	c.PacketIn(relay.DirCaller)

	if v := counterVecValue(t, c.PacketsIn, "0"); v != 2 {
		t.Errorf("PacketsIn[0] = %v, want 2", v)
	}
	if v := counterVecValue(t, c.PacketsIn, "1"); v != 1 {
		t.Errorf("PacketsIn[1] = %v, want 1", v)
	}

	c.PacketRelayed()
	c.PacketRelayed()
	if v := counterValue(t, c.PacketsRelayed); v != 2 {
		t.Errorf("PacketsRelayed = %v, want 2", v)
	}

	c.PacketDropped()
	if v := counterValue(t, c.PacketsDropped); v != 1 {
		t.Errorf("PacketsDropped = %v, want 1", v)
	}
}

func TestCommandCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.CommandOK("U")
	c.CommandOK("U")
	c.CommandError("D", relay.ECNotFound)

	if v := counterVecValue(t, c.CommandsOK, "U"); v != 2 {
		t.Errorf("CommandsOK[U] = %v, want 2", v)
	}
	if v := counterVecValue(t, c.CommandsErrors, "D", "8"); v != 1 {
		t.Errorf("CommandsErrors[D,8] = %v, want 1", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
