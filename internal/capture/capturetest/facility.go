package capturetest

import (
	"sync"
	"time"

	"github.com/google/gopacket"
)

// Facility is a scripted capture.Facility. It delivers Frames, then Feed until stop or
// until Feed is closed, then panics or returns Err as configured.
type Facility struct {
	Frames []gopacket.Packet
	Feed   chan gopacket.Packet
	Err    error
	Panic  bool
	// Hold keeps Sniff running after the script until stop reports true.
	Hold bool
	// Block simulates a hung backend: Sniff ignores stop until Block is closed.
	Block chan struct{}

	mu         sync.Mutex
	interfaces []string
	running    int
}

func (f *Facility) Sniff(iface string, onFrame func(gopacket.Packet), stop func() bool) error {
	f.mu.Lock()
	f.interfaces = append(f.interfaces, iface)
	f.running++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.Block != nil {
		<-f.Block
		return nil
	}
	for _, fr := range f.Frames {
		if stop() {
			return nil
		}
		onFrame(fr)
	}
	if f.Feed != nil {
		for !stop() {
			select {
			case fr, ok := <-f.Feed:
				if !ok {
					return f.finish()
				}
				onFrame(fr)
			case <-time.After(5 * time.Millisecond):
			}
		}
		return nil
	}
	for f.Hold && !stop() {
		time.Sleep(time.Millisecond)
	}
	return f.finish()
}

func (f *Facility) finish() error {
	if f.Panic {
		panic("capture backend crashed")
	}
	return f.Err
}

// Interfaces lists the selectors Sniff was called with.
func (f *Facility) Interfaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.interfaces...)
}

// Running reports how many Sniff calls have not returned.
func (f *Facility) Running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
