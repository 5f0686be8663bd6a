// Package normalize maps captured frames onto canonical packet records.
package normalize

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"netrisk/internal/features"
	"netrisk/internal/models"
	"netrisk/internal/risk"
)

// Outcome is the result of normalizing one frame. Record is always usable: when Degraded is
// set it carries the sentinel values and Err explains why.
type Outcome struct {
	Record   models.PacketRecord
	Degraded bool
	Err      error
}

// Normalizer extracts metadata, features and a risk tier from frames.
type Normalizer struct {
	classifier risk.Classifier
	now        func() time.Time
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithClock replaces time.Now, used for frames without a capture timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New returns a normalizer classifying with c.
func New(c risk.Classifier, opts ...Option) *Normalizer {
	n := &Normalizer{classifier: c, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the record for frame under the given id. It never panics and always
// returns exactly one record carrying id.
func (n *Normalizer) Normalize(frame gopacket.Packet, id uint64) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = n.degraded(id, errors.Errorf("panic while normalizing: %v", p))
		}
	}()

	rec, err := n.describe(frame)
	if err != nil {
		return n.degraded(id, err)
	}
	rec.ID = id
	rec.Risk = n.classifier.Predict(features.Extract(rec.Length))
	if !rec.Risk.Valid() {
		rec.Risk = models.RiskLow
	}
	return Outcome{Record: rec}
}

func (n *Normalizer) degraded(id uint64, err error) Outcome {
	return Outcome{Record: models.Degraded(id, n.now()), Degraded: true, Err: err}
}

func (n *Normalizer) describe(frame gopacket.Packet) (models.PacketRecord, error) {
	if frame == nil {
		return models.PacketRecord{}, errors.New("nil frame")
	}
	ls := frame.Layers()
	if len(ls) == 0 {
		return models.PacketRecord{}, errors.New("frame has no layers")
	}
	if len(ls) == 1 && ls[0].LayerType() == gopacket.LayerTypeDecodeFailure {
		return models.PacketRecord{}, errors.Wrap(frame.ErrorLayer().Error(), "undecodable frame")
	}

	rec := models.PacketRecord{
		Source:      models.Unknown,
		Destination: models.Unknown,
		Length:      frameLength(frame),
		Timestamp:   n.captureTime(frame),
	}

	switch ip := frame.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.Source, rec.Destination = ip.SrcIP.String(), ip.DstIP.String()
		rec.Protocol = transport(frame, uint8(ip.Protocol))
	case *layers.IPv6:
		rec.Source, rec.Destination = ip.SrcIP.String(), ip.DstIP.String()
		rec.Protocol = transport(frame, uint8(ip.NextHeader))
	default:
		rec.Protocol = typeName(ls)
	}
	return rec, nil
}

// transport checks TCP, then UDP, then ICMP and falls back to the raw IP protocol number.
func transport(frame gopacket.Packet, proto uint8) string {
	switch {
	case frame.Layer(layers.LayerTypeTCP) != nil:
		return "TCP"
	case frame.Layer(layers.LayerTypeUDP) != nil:
		return "UDP"
	case frame.Layer(layers.LayerTypeICMPv4) != nil:
		return "ICMP"
	case frame.Layer(layers.LayerTypeICMPv6) != nil:
		return "ICMPv6"
	}
	return fmt.Sprintf("IP-%d", proto)
}

// typeName names a non-IP frame after its innermost decoded layer, e.g. ARP.
func typeName(ls []gopacket.Layer) string {
	for i := len(ls) - 1; i >= 0; i-- {
		switch t := ls[i].LayerType(); t {
		case gopacket.LayerTypePayload, gopacket.LayerTypeDecodeFailure:
			continue
		default:
			return t.String()
		}
	}
	return ls[0].LayerType().String()
}

func frameLength(frame gopacket.Packet) int {
	if md := frame.Metadata(); md != nil && md.Length > 0 {
		return md.Length
	}
	return len(frame.Data())
}

func (n *Normalizer) captureTime(frame gopacket.Packet) time.Time {
	if md := frame.Metadata(); md != nil && !md.Timestamp.IsZero() {
		return md.Timestamp.Truncate(time.Second)
	}
	return n.now().Truncate(time.Second)
}
