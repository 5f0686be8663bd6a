// Package capturetest provides frame builders and a scripted capture facility for tests.
package capturetest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

const (
	ethLen  = 14
	ipv4Len = 20
	ipv6Len = 40
	tcpLen  = 20
	udpLen  = 8
)

// TCPFrame builds an Ethernet/IPv4/TCP frame of exactly length bytes (at least 60).
func TCPFrame(src, dst string, length int) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, Seq: 1, ACK: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ip)
	return build(eth(layers.EthernetTypeIPv4), ip, tcp, padding(length-ethLen-ipv4Len-tcpLen))
}

// TCP6Frame builds an Ethernet/IPv6/TCP frame.
func TCP6Frame(src, dst string, length int) gopacket.Packet {
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolTCP,
		HopLimit:   64,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, Seq: 1, ACK: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ip)
	return build(eth(layers.EthernetTypeIPv6), ip, tcp, padding(length-ethLen-ipv6Len-tcpLen))
}

// UDPFrame builds an Ethernet/IPv4/UDP frame.
func UDPFrame(src, dst string, length int) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40001, DstPort: 9999}
	udp.SetNetworkLayerForChecksum(ip)
	return build(eth(layers.EthernetTypeIPv4), ip, udp, padding(length-ethLen-ipv4Len-udpLen))
}

// ICMPFrame builds an Ethernet/IPv4/ICMP echo request.
func ICMPFrame(src, dst string) gopacket.Packet {
	ip := ipv4(src, dst, layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}
	return build(eth(layers.EthernetTypeIPv4), ip, icmp, padding(8))
}

// IPFrame builds an IPv4 frame carrying an arbitrary protocol number.
func IPFrame(src, dst string, proto layers.IPProtocol) gopacket.Packet {
	return build(eth(layers.EthernetTypeIPv4), ipv4(src, dst, proto), padding(4))
}

// ARPFrame builds a broadcast ARP request.
func ARPFrame() gopacket.Packet {
	e := eth(layers.EthernetTypeARP)
	e.DstMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return build(e, arp)
}

// GarbageFrame is too short to decode as Ethernet.
func GarbageFrame() gopacket.Packet {
	return gopacket.NewPacket([]byte{0x01, 0x02, 0x03}, layers.LayerTypeEthernet, gopacket.Default)
}

func eth(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func padding(n int) gopacket.Payload {
	if n < 0 {
		n = 0
	}
	return gopacket.Payload(make([]byte, n))
}

func build(ls ...gopacket.SerializableLayer) gopacket.Packet {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}
