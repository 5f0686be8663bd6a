package analysis

import (
	"sort"
	"sync"

	"netrisk/internal/models"
)

// IPStat holds byte volume for a single source address.
type IPStat struct {
	IP    string `json:"ip"`
	Bytes int    `json:"bytes"`
}

// ProtocolStat holds the packet count for a single protocol.
type ProtocolStat struct {
	Protocol string `json:"protocol"`
	Count    int64  `json:"count"`
}

// Summary is a point-in-time view of a session's traffic.
type Summary struct {
	Packets    int64                 `json:"packets"`
	TotalBytes int64                 `json:"totalBytes"`
	Degraded   int64                 `json:"degraded"`
	Risk       map[models.Risk]int64 `json:"risk"`
	Protocols  []ProtocolStat        `json:"protocols"`
	TopTalkers []IPStat              `json:"topTalkers"`
	Alerts     []Alert               `json:"alerts"`
}

// TrafficStats aggregates the records of one capture session.
type TrafficStats struct {
	mu             sync.Mutex
	packets        int64
	totalBytes     int64
	degraded       int64
	ipBytes        map[string]int
	protocolCounts map[string]int64
	riskCounts     map[models.Risk]int64

	anomalyDetector *AnomalyDetector
}

// NewTrafficStats creates an empty aggregate.
func NewTrafficStats(cfg Config) *TrafficStats {
	s := &TrafficStats{anomalyDetector: NewAnomalyDetector(cfg)}
	s.clear()
	return s
}

func (s *TrafficStats) clear() {
	s.packets = 0
	s.totalBytes = 0
	s.degraded = 0
	s.ipBytes = make(map[string]int)
	s.protocolCounts = make(map[string]int64)
	s.riskCounts = make(map[models.Risk]int64)
}

// ProcessRecord updates the aggregate with a new record.
func (s *TrafficStats) ProcessRecord(rec models.PacketRecord) {
	s.mu.Lock()
	s.packets++
	s.totalBytes += int64(rec.Length)
	s.riskCounts[rec.Risk]++
	s.protocolCounts[rec.Protocol]++

	switch rec.Source {
	case models.ParseError:
		s.degraded++
	case models.Unknown, "":
	default:
		s.ipBytes[rec.Source] += rec.Length
	}
	s.mu.Unlock()

	// detector has its own mutex
	s.anomalyDetector.ProcessRecord(rec)
}

// Reset discards everything aggregated so far.
func (s *TrafficStats) Reset() {
	s.mu.Lock()
	s.clear()
	s.mu.Unlock()
	s.anomalyDetector.Reset()
}

// GetTopTalkers returns the top N sources by volume.
func (s *TrafficStats) GetTopTalkers(limit int) []IPStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topTalkers(limit)
}

func (s *TrafficStats) topTalkers(limit int) []IPStat {
	stats := make([]IPStat, 0, len(s.ipBytes))
	for ip, bytes := range s.ipBytes {
		stats = append(stats, IPStat{IP: ip, Bytes: bytes})
	}

	// Sort descending by bytes, address breaks ties
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Bytes != stats[j].Bytes {
			return stats[i].Bytes > stats[j].Bytes
		}
		return stats[i].IP < stats[j].IP
	})

	if limit >= 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}

// GetProtocolStats returns the protocol distribution.
func (s *TrafficStats) GetProtocolStats() []ProtocolStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolStats()
}

func (s *TrafficStats) protocolStats() []ProtocolStat {
	stats := make([]ProtocolStat, 0, len(s.protocolCounts))
	for proto, count := range s.protocolCounts {
		stats = append(stats, ProtocolStat{Protocol: proto, Count: count})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Protocol < stats[j].Protocol
	})
	return stats
}

// Summary returns a copy of the aggregate with at most top talkers.
func (s *TrafficStats) Summary(top int) Summary {
	s.mu.Lock()
	sum := Summary{
		Packets:    s.packets,
		TotalBytes: s.totalBytes,
		Degraded:   s.degraded,
		Risk:       make(map[models.Risk]int64, 3),
		Protocols:  s.protocolStats(),
		TopTalkers: s.topTalkers(top),
	}
	for _, r := range []models.Risk{models.RiskLow, models.RiskMedium, models.RiskHigh} {
		sum.Risk[r] = s.riskCounts[r]
	}
	s.mu.Unlock()

	sum.Alerts = s.anomalyDetector.GetRecentAlerts(5)
	return sum
}
