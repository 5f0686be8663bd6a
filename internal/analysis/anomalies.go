package analysis

import (
	"fmt"
	"sync"
	"time"

	"netrisk/internal/models"
)

// AnomalyType represents the type of anomaly detected.
type AnomalyType string

const (
	AnomalyRateSpike AnomalyType = "RATE_SPIKE"
	AnomalyRiskBurst AnomalyType = "HIGH_RISK_BURST"
)

// Config holds configuration for the anomaly detector.
type Config struct {
	// packets per second per source
	RateThreshold int `yaml:"rate_threshold"`
	// HIGH risk packets per window per source
	BurstThreshold int           `yaml:"burst_threshold"`
	BurstWindow    time.Duration `yaml:"burst_window"`
	// how long idle sources are tracked
	DataRetention   time.Duration `yaml:"data_retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxAlerts       int           `yaml:"max_alerts"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RateThreshold:   500,
		BurstThreshold:  20,
		BurstWindow:     10 * time.Second,
		DataRetention:   5 * time.Minute,
		CleanupInterval: 1 * time.Minute,
		MaxAlerts:       20,
	}
}

// Alert represents a detected traffic anomaly.
type Alert struct {
	Type      AnomalyType `json:"type"`
	Source    string      `json:"source"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

type window struct {
	start time.Time
	count int
}

// AnomalyDetector watches per-source packet rates and HIGH risk bursts.
// Time is taken from record timestamps so replayed captures behave like live ones.
type AnomalyDetector struct {
	mu sync.Mutex

	config Config

	rate  map[string]*window
	burst map[string]*window

	// Alert History (circular buffer)
	alerts []Alert

	lastCleanup time.Time
}

// NewAnomalyDetector creates a new anomaly detection engine.
func NewAnomalyDetector(cfg Config) *AnomalyDetector {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 20
	}
	return &AnomalyDetector{
		config: cfg,
		rate:   make(map[string]*window),
		burst:  make(map[string]*window),
		alerts: make([]Alert, 0),
	}
}

// ProcessRecord analyzes a record for anomalies.
func (ad *AnomalyDetector) ProcessRecord(rec models.PacketRecord) {
	if rec.Source == "" || rec.Source == models.Unknown || rec.Source == models.ParseError {
		return
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()

	now := rec.Timestamp
	if ad.lastCleanup.IsZero() {
		ad.lastCleanup = now
	}
	if now.Sub(ad.lastCleanup) > ad.config.CleanupInterval {
		ad.cleanup(now)
		ad.lastCleanup = now
	}

	if ad.config.RateThreshold > 0 {
		ad.detect(ad.rate, rec.Source, now, time.Second, ad.config.RateThreshold, AnomalyRateSpike,
			"High packet rate from %s: %d packets in 1s")
	}
	if ad.config.BurstThreshold > 0 && rec.Risk == models.RiskHigh {
		ad.detect(ad.burst, rec.Source, now, ad.config.BurstWindow, ad.config.BurstThreshold, AnomalyRiskBurst,
			"Burst of HIGH risk packets from %s: %d in window")
	}
}

// detect counts one packet for source in its window and alerts once the threshold is exceeded.
func (ad *AnomalyDetector) detect(track map[string]*window, source string, now time.Time,
	span time.Duration, threshold int, kind AnomalyType, format string) {
	w, ok := track[source]
	if !ok || now.Sub(w.start) >= span {
		w = &window{start: now}
		track[source] = w
	}
	w.count++

	if w.count > threshold {
		ad.addAlert(Alert{
			Type:      kind,
			Source:    source,
			Message:   fmt.Sprintf(format, source, w.count),
			Timestamp: now,
		})
		// Reset to avoid spam
		track[source] = &window{start: now}
	}
}

// cleanup removes old entries to prevent memory leaks.
func (ad *AnomalyDetector) cleanup(now time.Time) {
	for _, track := range []map[string]*window{ad.rate, ad.burst} {
		for source, w := range track {
			if now.Sub(w.start) > ad.config.DataRetention {
				delete(track, source)
			}
		}
	}
}

// addAlert adds an alert to the history (circular buffer).
func (ad *AnomalyDetector) addAlert(alert Alert) {
	ad.alerts = append(ad.alerts, alert)

	// Keep only last MaxAlerts
	if len(ad.alerts) > ad.config.MaxAlerts {
		ad.alerts = ad.alerts[len(ad.alerts)-ad.config.MaxAlerts:]
	}
}

// Reset forgets all tracking data and alerts.
func (ad *AnomalyDetector) Reset() {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	ad.rate = make(map[string]*window)
	ad.burst = make(map[string]*window)
	ad.alerts = make([]Alert, 0)
	ad.lastCleanup = time.Time{}
}

// GetRecentAlerts returns the most recent alerts (thread-safe).
func (ad *AnomalyDetector) GetRecentAlerts(limit int) []Alert {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	if len(ad.alerts) == 0 {
		return []Alert{}
	}

	// Return last N alerts (newest last)
	start := 0
	if len(ad.alerts) > limit {
		start = len(ad.alerts) - limit
	}

	// Make a copy to avoid race conditions
	result := make([]Alert, len(ad.alerts)-start)
	copy(result, ad.alerts[start:])

	return result
}
