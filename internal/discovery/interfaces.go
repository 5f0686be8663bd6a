// Package discovery lists the capture devices of the local machine.
package discovery

import (
	"net"

	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// findAllDevs is a variable so tests can run without a libpcap environment.
var findAllDevs = pcap.FindAllDevs

// FindInterfaces returns every device libpcap can open.
func FindInterfaces() ([]Interface, error) {
	devices, err := findAllDevs()
	if err != nil {
		return nil, errors.Wrap(err, "list capture devices")
	}

	ifaces := make([]Interface, 0, len(devices))
	for _, d := range devices {
		iface := Interface{
			Name:        d.Name,
			Description: d.Description,
			Addresses:   make([]string, 0, len(d.Addresses)),
		}
		loopbackOnly := len(d.Addresses) > 0
		for _, a := range d.Addresses {
			if a.IP == nil {
				continue
			}
			iface.Addresses = append(iface.Addresses, a.IP.String())
			if !a.IP.IsLoopback() {
				loopbackOnly = false
			}
		}
		iface.Loopback = loopbackOnly || d.Name == "lo"
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

// DefaultInterface picks the first non-loopback device with an IPv4 address, then the first
// non-loopback device with any address.
func DefaultInterface() (string, error) {
	ifaces, err := FindInterfaces()
	if err != nil {
		return "", err
	}

	var fallback string
	for _, iface := range ifaces {
		if iface.Loopback || len(iface.Addresses) == 0 {
			continue
		}
		for _, a := range iface.Addresses {
			if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
				return iface.Name, nil
			}
		}
		if fallback == "" {
			fallback = iface.Name
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", errors.New("no usable capture interface found")
}
