package models

import "time"

// Sentinel field values used when a frame carries no addressing or fails to decode.
const (
	Unknown    = "UNKNOWN"
	ParseError = "PARSE_ERROR"
)

// Risk is the coarse threat tier assigned to every packet.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Valid reports whether r is one of the known tiers.
func (r Risk) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// PacketRecord holds the canonical metadata of one captured frame.
// Records are never modified after the normalizer returns them.
type PacketRecord struct {
	ID          uint64    `json:"id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Protocol    string    `json:"protocol"`
	Length      int       `json:"length"`
	Timestamp   time.Time `json:"timestamp"` // second precision
	Risk        Risk      `json:"risk"`
}

// Degraded returns the record emitted when a frame could not be processed.
// It keeps the caller supplied id so the sequence stays gap free.
func Degraded(id uint64, now time.Time) PacketRecord {
	return PacketRecord{
		ID:          id,
		Source:      ParseError,
		Destination: ParseError,
		Protocol:    Unknown,
		Length:      0,
		Timestamp:   now.Truncate(time.Second),
		Risk:        RiskLow,
	}
}

// Status is the externally visible state of the capture session.
type Status struct {
	Capturing     bool   `json:"isCapturing"`
	TotalCaptured int    `json:"totalCaptured"`
	SessionID     string `json:"sessionId,omitempty"`
	Interface     string `json:"interface,omitempty"`
}
