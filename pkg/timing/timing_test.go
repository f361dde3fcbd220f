package timing

import "testing"

func TestTimerOnlyMarkedPhases(t *testing.T) {
	tm := NewTimer()
	tm.StartDNS()
	tm.EndDNS()
	tm.StartTCP()
	tm.EndTCP()

	m := tm.GetMetrics()
	if m.DNSLookup < 0 {
		t.Fatalf("DNSLookup should be non-negative, got %v", m.DNSLookup)
	}
	if m.TLSHandshake != 0 {
		t.Fatalf("TLSHandshake should be zero when never marked, got %v", m.TLSHandshake)
	}
	if m.TTFB != 0 {
		t.Fatalf("TTFB should be zero when never marked, got %v", m.TTFB)
	}
}

func TestMetricsDerived(t *testing.T) {
	m := Metrics{DNSLookup: 1, TCPConnect: 2, TLSHandshake: 3, TTFB: 10, TotalTime: 20}
	if got := m.GetConnectionTime(); got != 6 {
		t.Fatalf("GetConnectionTime() = %v, want 6", got)
	}
	if got := m.GetServerTime(); got != 10 {
		t.Fatalf("GetServerTime() = %v, want 10", got)
	}
	if got := m.GetNetworkTime(); got != 10 {
		t.Fatalf("GetNetworkTime() = %v, want 10", got)
	}
}
