// Package sequence issues gap free packet identifiers.
package sequence

import "sync"

// Issuer hands out strictly increasing identifiers starting at 1.
// It is safe for concurrent use.
type Issuer struct {
	mu      sync.Mutex
	current uint64
}

// NewIssuer returns an issuer whose first Next call yields 1.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// Next returns the identifier following the previously issued one.
func (i *Issuer) Next() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.current++
	return i.current
}

// Reset rewinds the counter so the next call to Next returns 1.
func (i *Issuer) Reset() {
	i.mu.Lock()
	i.current = 0
	i.mu.Unlock()
}

// Current returns the last issued identifier, 0 if none since the last reset.
func (i *Issuer) Current() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}
