package normalize

import (
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"netrisk/internal/capture/capturetest"
	"netrisk/internal/features"
	"netrisk/internal/models"
	"netrisk/internal/risk"
)

type fixedClassifier struct {
	risk models.Risk
	seen []features.Vector
}

func (c *fixedClassifier) Predict(v features.Vector) models.Risk {
	c.seen = append(c.seen, v)
	return c.risk
}

type panicClassifier struct{}

func (panicClassifier) Predict(features.Vector) models.Risk { panic("model exploded") }

// brokenFrame panics on any method call.
type brokenFrame struct{ gopacket.Packet }

var clock = time.Date(2026, 10, 19, 12, 30, 45, 900, time.UTC)

func newNormalizer(c risk.Classifier) *Normalizer {
	return New(c, WithClock(func() time.Time { return clock }))
}

func TestNormalize_TCP(t *testing.T) {
	c := &fixedClassifier{risk: models.RiskMedium}
	out := newNormalizer(c).Normalize(capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 120), 7)

	require.False(t, out.Degraded)
	require.NoError(t, out.Err)
	require.Equal(t, models.PacketRecord{
		ID:          7,
		Source:      "10.0.0.1",
		Destination: "10.0.0.2",
		Protocol:    "TCP",
		Length:      120,
		Timestamp:   clock.Truncate(time.Second),
		Risk:        models.RiskMedium,
	}, out.Record)
	require.Equal(t, []features.Vector{features.Extract(120)}, c.seen)
}

func TestNormalize_TCPWithStub(t *testing.T) {
	out := newNormalizer(risk.Stub{}).Normalize(capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 120), 1)
	require.False(t, out.Degraded)
	require.Equal(t, "TCP", out.Record.Protocol)
	require.True(t, out.Record.Risk.Valid())
}

func TestNormalize_Protocols(t *testing.T) {
	n := newNormalizer(&fixedClassifier{risk: models.RiskLow})

	cases := []struct {
		name     string
		frame    gopacket.Packet
		protocol string
		src, dst string
	}{
		{"udp", capturetest.UDPFrame("192.168.1.5", "8.8.8.8", 90), "UDP", "192.168.1.5", "8.8.8.8"},
		{"icmp", capturetest.ICMPFrame("192.168.1.5", "1.1.1.1"), "ICMP", "192.168.1.5", "1.1.1.1"},
		{"gre", capturetest.IPFrame("10.0.0.1", "10.0.0.2", layers.IPProtocol(47)), "IP-47", "10.0.0.1", "10.0.0.2"},
		{"ipv6", capturetest.TCP6Frame("fe80::1", "fe80::2", 120), "TCP", "fe80::1", "fe80::2"},
		{"arp", capturetest.ARPFrame(), "ARP", models.Unknown, models.Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := n.Normalize(tc.frame, 3)
			require.False(t, out.Degraded)
			require.Equal(t, tc.protocol, out.Record.Protocol)
			require.Equal(t, tc.src, out.Record.Source)
			require.Equal(t, tc.dst, out.Record.Destination)
			require.Equal(t, len(tc.frame.Data()), out.Record.Length)
		})
	}
}

func TestNormalize_CaptureInfo(t *testing.T) {
	frame := capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 120)
	captured := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	md := frame.Metadata()
	md.Timestamp = captured
	md.Length = 1514
	md.CaptureLength = 120

	out := newNormalizer(&fixedClassifier{risk: models.RiskLow}).Normalize(frame, 1)
	require.Equal(t, 1514, out.Record.Length)
	require.Equal(t, captured.Truncate(time.Second), out.Record.Timestamp)
}

func assertDegraded(t *testing.T, out Outcome, id uint64) {
	t.Helper()
	require.True(t, out.Degraded)
	require.Error(t, out.Err)
	require.Equal(t, models.PacketRecord{
		ID:          id,
		Source:      "PARSE_ERROR",
		Destination: "PARSE_ERROR",
		Protocol:    "UNKNOWN",
		Length:      0,
		Timestamp:   clock.Truncate(time.Second),
		Risk:        models.RiskLow,
	}, out.Record)
}

func TestNormalize_Degraded(t *testing.T) {
	n := newNormalizer(&fixedClassifier{risk: models.RiskHigh})

	assertDegraded(t, n.Normalize(nil, 11), 11)
	assertDegraded(t, n.Normalize(capturetest.GarbageFrame(), 12), 12)
	assertDegraded(t, n.Normalize(brokenFrame{}, 13), 13)
}

func TestNormalize_ClassifierPanic(t *testing.T) {
	out := newNormalizer(panicClassifier{}).Normalize(capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 120), 42)
	assertDegraded(t, out, 42)
}

func TestNormalize_InvalidTierCoerced(t *testing.T) {
	out := newNormalizer(&fixedClassifier{risk: "CRITICAL"}).Normalize(capturetest.ARPFrame(), 1)
	require.False(t, out.Degraded)
	require.Equal(t, models.RiskLow, out.Record.Risk)
}
