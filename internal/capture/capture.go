// Package capture delivers raw frames from libpcap to a per-frame callback.
package capture

import (
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"netrisk/internal/discovery"
)

// Facility runs a capture loop. It calls onFrame for every frame without retaining it and
// evaluates stop between frames, returning once stop reports true. An empty iface lets the
// facility choose.
type Facility interface {
	Sniff(iface string, onFrame func(gopacket.Packet), stop func() bool) error
}

// Config controls the libpcap handle.
type Config struct {
	Interface   string        `yaml:"interface"`
	PcapFile    string        `yaml:"pcap_file"` // replay a capture file instead of a live interface
	SnapLen     int           `yaml:"snaplen"`
	Promiscuous bool          `yaml:"promiscuous"`
	BPFFilter   string        `yaml:"bpf_filter"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // bounds how long stop can go unchecked on an idle link
	StopTimeout time.Duration `yaml:"stop_timeout"`
	AutoStart   bool          `yaml:"autostart"`
}

// DefaultConfig returns the capture defaults.
func DefaultConfig() Config {
	return Config{
		SnapLen:     65535,
		Promiscuous: true,
		ReadTimeout: 500 * time.Millisecond,
		StopTimeout: 2 * time.Second,
	}
}

// Pcap is the libpcap backed Facility.
type Pcap struct {
	cfg Config
	log *zap.Logger
}

// NewPcap returns a facility using cfg.
func NewPcap(cfg Config, log *zap.Logger) *Pcap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pcap{cfg: cfg, log: log}
}

func (p *Pcap) Sniff(iface string, onFrame func(gopacket.Packet), stop func() bool) error {
	handle, source, err := p.open(iface)
	if err != nil {
		return err
	}
	defer handle.Close()

	if p.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(p.cfg.BPFFilter); err != nil {
			return errors.Wrapf(err, "bpf filter %q", p.cfg.BPFFilter)
		}
	}
	p.log.Info("capture loop started",
		zap.String("source", source),
		zap.String("filter", p.cfg.BPFFilter),
		zap.Stringer("link_type", handle.LinkType()))

	decoder := handle.LinkType()
	opts := gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for !stop() {
		data, ci, err := handle.ReadPacketData()
		switch {
		case err == nil:
		case errors.Cause(err) == pcap.NextErrorTimeoutExpired:
			continue
		case errors.Cause(err) == io.EOF:
			p.log.Info("capture source exhausted", zap.String("source", source))
			return nil
		default:
			return errors.Wrap(err, "read packet")
		}

		frame := gopacket.NewPacket(data, decoder, opts)
		frame.Metadata().CaptureInfo = ci
		onFrame(frame)
	}
	return nil
}

func (p *Pcap) open(iface string) (*pcap.Handle, string, error) {
	if p.cfg.PcapFile != "" {
		h, err := pcap.OpenOffline(p.cfg.PcapFile)
		if err != nil {
			return nil, "", errors.Wrapf(err, "open capture file %s", p.cfg.PcapFile)
		}
		return h, p.cfg.PcapFile, nil
	}

	if iface == "" {
		iface = p.cfg.Interface
	}
	if iface == "" {
		var err error
		if iface, err = discovery.DefaultInterface(); err != nil {
			return nil, "", err
		}
	}
	timeout := p.cfg.ReadTimeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}
	h, err := pcap.OpenLive(iface, int32(p.cfg.SnapLen), p.cfg.Promiscuous, timeout)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open interface %s", iface)
	}
	return h, iface, nil
}
