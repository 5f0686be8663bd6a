package analysis

import (
	"testing"
	"time"

	"netrisk/internal/models"
)

var t0 = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func rec(src, proto string, length int, risk models.Risk) models.PacketRecord {
	return models.PacketRecord{Source: src, Destination: "10.0.0.254", Protocol: proto, Length: length, Timestamp: t0, Risk: risk}
}

func TestTrafficStats_Summary(t *testing.T) {
	s := NewTrafficStats(DefaultConfig())
	s.ProcessRecord(rec("10.0.0.1", "TCP", 100, models.RiskLow))
	s.ProcessRecord(rec("10.0.0.2", "UDP", 300, models.RiskHigh))
	s.ProcessRecord(rec("10.0.0.1", "TCP", 250, models.RiskMedium))
	s.ProcessRecord(rec(models.Unknown, "ARP", 42, models.RiskLow))
	s.ProcessRecord(models.Degraded(5, t0))

	sum := s.Summary(10)
	if sum.Packets != 5 || sum.TotalBytes != 692 || sum.Degraded != 1 {
		t.Fatalf("unexpected totals: %+v", sum)
	}
	if sum.Risk[models.RiskLow] != 3 || sum.Risk[models.RiskMedium] != 1 || sum.Risk[models.RiskHigh] != 1 {
		t.Errorf("unexpected risk counts: %v", sum.Risk)
	}
	if len(sum.TopTalkers) != 2 || sum.TopTalkers[0].IP != "10.0.0.1" || sum.TopTalkers[0].Bytes != 350 {
		t.Errorf("unexpected top talkers: %v", sum.TopTalkers)
	}
	if sum.Protocols[0].Protocol != "TCP" || sum.Protocols[0].Count != 2 {
		t.Errorf("unexpected protocol stats: %v", sum.Protocols)
	}
}

func TestTrafficStats_TopLimitAndReset(t *testing.T) {
	s := NewTrafficStats(DefaultConfig())
	s.ProcessRecord(rec("10.0.0.1", "TCP", 10, models.RiskLow))
	s.ProcessRecord(rec("10.0.0.2", "TCP", 20, models.RiskLow))
	s.ProcessRecord(rec("10.0.0.3", "TCP", 30, models.RiskLow))

	top := s.GetTopTalkers(2)
	if len(top) != 2 || top[0].IP != "10.0.0.3" {
		t.Errorf("unexpected top talkers: %v", top)
	}
	if got := s.Summary(0).TopTalkers; len(got) != 0 {
		t.Errorf("top 0 should be empty, got %v", got)
	}

	s.Reset()
	sum := s.Summary(5)
	if sum.Packets != 0 || len(sum.Protocols) != 0 || sum.Risk[models.RiskLow] != 0 {
		t.Errorf("reset left data behind: %+v", sum)
	}
}

func TestAnomalyDetector_RateSpike(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateThreshold = 3
	ad := NewAnomalyDetector(cfg)

	for i := 0; i < 4; i++ {
		ad.ProcessRecord(rec("10.0.0.7", "UDP", 60, models.RiskLow))
	}
	alerts := ad.GetRecentAlerts(5)
	if len(alerts) != 1 || alerts[0].Type != AnomalyRateSpike || alerts[0].Source != "10.0.0.7" {
		t.Fatalf("expected one rate alert, got %v", alerts)
	}

	// a new second starts a new window
	next := rec("10.0.0.7", "UDP", 60, models.RiskLow)
	next.Timestamp = t0.Add(time.Second)
	ad.ProcessRecord(next)
	if len(ad.GetRecentAlerts(5)) != 1 {
		t.Error("window did not roll over")
	}
}

func TestAnomalyDetector_RiskBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateThreshold = 0
	cfg.BurstThreshold = 2
	ad := NewAnomalyDetector(cfg)

	ad.ProcessRecord(rec("10.0.0.8", "TCP", 60, models.RiskHigh))
	ad.ProcessRecord(rec("10.0.0.8", "TCP", 60, models.RiskLow))
	ad.ProcessRecord(rec("10.0.0.8", "TCP", 60, models.RiskHigh))
	if len(ad.GetRecentAlerts(5)) != 0 {
		t.Fatal("alerted below threshold")
	}
	ad.ProcessRecord(rec("10.0.0.8", "TCP", 60, models.RiskHigh))

	alerts := ad.GetRecentAlerts(5)
	if len(alerts) != 1 || alerts[0].Type != AnomalyRiskBurst {
		t.Fatalf("expected one burst alert, got %v", alerts)
	}

	ad.Reset()
	if len(ad.GetRecentAlerts(5)) != 0 {
		t.Error("reset kept alerts")
	}
}

func TestAnomalyDetector_IgnoresSentinels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateThreshold = 1
	ad := NewAnomalyDetector(cfg)
	for i := 0; i < 5; i++ {
		ad.ProcessRecord(models.Degraded(uint64(i), t0))
		ad.ProcessRecord(rec(models.Unknown, "ARP", 42, models.RiskLow))
	}
	if len(ad.GetRecentAlerts(5)) != 0 {
		t.Error("sentinel sources raised alerts")
	}
}
