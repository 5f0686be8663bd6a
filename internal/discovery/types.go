package discovery

// Interface describes a capture device visible to libpcap.
type Interface struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Addresses   []string `json:"addresses"`
	Loopback    bool     `json:"loopback"`
}
