package session

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"netrisk/internal/analysis"
	"netrisk/internal/capture/capturetest"
	"netrisk/internal/features"
	"netrisk/internal/metrics"
	"netrisk/internal/models"
	"netrisk/internal/normalize"
)

type fixed models.Risk

func (f fixed) Predict(features.Vector) models.Risk { return models.Risk(f) }

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newController(f *capturetest.Facility) *Controller {
	return New(Options{
		Facility:    f,
		Normalizer:  normalize.New(fixed(models.RiskMedium)),
		StopTimeout: 200 * time.Millisecond,
		Analysis:    analysis.DefaultConfig(),
	})
}

func frames(n int) []gopacket.Packet {
	out := make([]gopacket.Packet, n)
	for i := range out {
		out[i] = capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 100)
	}
	return out
}

func waitTotal(t *testing.T, c *Controller, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status().TotalCaptured == n }, waitFor, tick)
}

func requireContiguous(t *testing.T, recs []models.PacketRecord) {
	t.Helper()
	for i, r := range recs {
		require.Equal(t, uint64(i+1), r.ID)
	}
}

func TestStartStop_SequentialIDs(t *testing.T) {
	f := &capturetest.Facility{Frames: frames(5), Hold: true}
	c := newController(f)

	require.Equal(t, Started, c.Start("eth0"))
	waitTotal(t, c, 5)

	st := c.Status()
	require.True(t, st.Capturing)
	require.Equal(t, "eth0", st.Interface)
	require.NotEmpty(t, st.SessionID)

	recs := c.Snapshot(50)
	requireContiguous(t, recs)
	require.Equal(t, "TCP", recs[0].Protocol)
	require.Equal(t, models.RiskMedium, recs[0].Risk)

	require.Equal(t, Stopped, c.Stop())
	st = c.Status()
	require.False(t, st.Capturing)
	require.Equal(t, 5, st.TotalCaptured)
	require.Equal(t, []string{"eth0"}, f.Interfaces())
	require.Eventually(t, func() bool { return f.Running() == 0 }, waitFor, tick)
}

func TestStart_AlreadyRunningKeepsSession(t *testing.T) {
	feed := make(chan gopacket.Packet)
	f := &capturetest.Facility{Feed: feed}
	c := newController(f)
	defer c.Stop()

	require.Equal(t, Started, c.Start(""))
	feed <- capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 60)
	feed <- capturetest.UDPFrame("10.0.0.3", "10.0.0.4", 60)
	waitTotal(t, c, 2)
	id := c.Status().SessionID

	require.Equal(t, AlreadyRunning, c.Start("eth1"))
	st := c.Status()
	require.Equal(t, 2, st.TotalCaptured)
	require.Equal(t, id, st.SessionID)
	require.Equal(t, 1, f.Running())
}

func TestStop_NotRunning(t *testing.T) {
	c := newController(&capturetest.Facility{})
	require.Equal(t, NotRunning, c.Stop())
	require.Equal(t, models.Status{}, c.Status())
}

func TestRestart_ClearsBufferAndIssuer(t *testing.T) {
	f := &capturetest.Facility{Frames: frames(3), Hold: true}
	c := newController(f)

	c.Start("")
	waitTotal(t, c, 3)
	first := c.Status().SessionID
	c.Stop()

	require.Equal(t, Started, c.Start(""))
	waitTotal(t, c, 3)
	require.NotEqual(t, first, c.Status().SessionID)
	requireContiguous(t, c.Snapshot(10))
	c.Stop()
}

func TestReset(t *testing.T) {
	f := &capturetest.Facility{Frames: frames(4), Hold: true}
	c := newController(f)

	c.Start("")
	waitTotal(t, c, 4)
	c.Reset()

	require.Empty(t, c.Snapshot(50))
	require.Equal(t, models.Status{}, c.Status())
	require.Equal(t, int64(0), c.Summary(5).Packets)

	f.Frames = frames(1)
	c.Start("")
	waitTotal(t, c, 1)
	require.Equal(t, uint64(1), c.Snapshot(1)[0].ID)
	c.Stop()
}

func TestReset_WhileIdle(t *testing.T) {
	c := newController(&capturetest.Facility{Frames: frames(2)})
	c.Start("")
	require.Eventually(t, func() bool { return !c.Status().Capturing }, waitFor, tick)
	require.Equal(t, 2, c.Status().TotalCaptured)

	c.Reset()
	require.Equal(t, 0, c.Status().TotalCaptured)
}

func TestSnapshot_Limits(t *testing.T) {
	f := &capturetest.Facility{Frames: frames(5), Hold: true}
	c := newController(f)
	c.Start("")
	waitTotal(t, c, 5)
	defer c.Stop()

	require.NotNil(t, c.Snapshot(0))
	require.Empty(t, c.Snapshot(0))
	require.Empty(t, c.Snapshot(-3))
	require.Len(t, c.Snapshot(100), 5)

	last := c.Snapshot(2)
	require.Len(t, last, 2)
	require.Equal(t, uint64(4), last[0].ID)
	require.Equal(t, uint64(5), last[1].ID)
}

func TestSnapshot_IsACopy(t *testing.T) {
	c := newController(&capturetest.Facility{Frames: frames(1), Hold: true})
	c.Start("")
	waitTotal(t, c, 1)
	defer c.Stop()

	snap := c.Snapshot(1)
	snap[0].Source = "changed"
	require.Equal(t, "10.0.0.1", c.Snapshot(1)[0].Source)
}

func TestFacilityError_ReturnsToIdle(t *testing.T) {
	f := &capturetest.Facility{Frames: frames(2), Err: errors.New("device went away")}
	c := newController(f)

	require.Equal(t, Started, c.Start(""))
	require.Eventually(t, func() bool { return !c.Status().Capturing }, waitFor, tick)
	require.Equal(t, 2, c.Status().TotalCaptured)
	require.Equal(t, NotRunning, c.Stop())
	require.Equal(t, Started, c.Start(""))
	c.Stop()
}

func TestFacilityPanic_ReturnsToIdle(t *testing.T) {
	f := &capturetest.Facility{Frames: frames(1), Panic: true}
	c := newController(f)

	c.Start("")
	require.Eventually(t, func() bool { return !c.Status().Capturing }, waitFor, tick)
	require.Equal(t, 1, c.Status().TotalCaptured)
}

func TestStop_HungFacility(t *testing.T) {
	block := make(chan struct{})
	f := &capturetest.Facility{Block: block}
	c := New(Options{
		Facility:    f,
		Normalizer:  normalize.New(fixed(models.RiskLow)),
		StopTimeout: 30 * time.Millisecond,
	})

	c.Start("")
	begin := time.Now()
	require.Equal(t, Stopped, c.Stop())
	require.Less(t, time.Since(begin), time.Second)
	require.False(t, c.Status().Capturing)

	close(block)
	require.Eventually(t, func() bool { return f.Running() == 0 }, waitFor, tick)
	require.False(t, c.Status().Capturing)
}

func TestDegradedFrameKeepsID(t *testing.T) {
	f := &capturetest.Facility{
		Frames: []gopacket.Packet{
			capturetest.TCPFrame("10.0.0.1", "10.0.0.2", 80),
			capturetest.GarbageFrame(),
			capturetest.ARPFrame(),
		},
		Hold: true,
	}
	c := newController(f)
	c.Start("")
	waitTotal(t, c, 3)
	defer c.Stop()

	recs := c.Snapshot(3)
	requireContiguous(t, recs)
	require.Equal(t, models.ParseError, recs[1].Source)
	require.Equal(t, models.RiskLow, recs[1].Risk)
	require.Equal(t, "ARP", recs[2].Protocol)

	sum := c.Summary(5)
	require.Equal(t, int64(3), sum.Packets)
	require.Equal(t, int64(1), sum.Degraded)
}

// trailingFacility delivers one more frame after stop reports true, like a read that
// completes while Stop is pending.
type trailingFacility struct{}

func (trailingFacility) Sniff(_ string, onFrame func(gopacket.Packet), stop func() bool) error {
	for !stop() {
		time.Sleep(time.Millisecond)
	}
	onFrame(capturetest.TCPFrame("10.0.0.5", "10.0.0.6", 52))
	return nil
}

func TestStop_KeepsFrameInFlight(t *testing.T) {
	c := New(Options{
		Facility:    trailingFacility{},
		Normalizer:  normalize.New(fixed(models.RiskLow)),
		StopTimeout: time.Second,
	})

	c.Start("")
	require.Equal(t, Stopped, c.Stop())

	recs := c.Snapshot(10)
	require.Len(t, recs, 1)
	require.Equal(t, uint64(1), recs[0].ID)
	require.Equal(t, "10.0.0.5", recs[0].Source)
	require.False(t, c.Status().Capturing)
}

// lateFacility delivers a frame only when released, ignoring stop.
type lateFacility struct {
	release chan struct{}
	done    chan struct{}
}

func (l *lateFacility) Sniff(_ string, onFrame func(gopacket.Packet), _ func() bool) error {
	defer close(l.done)
	<-l.release
	onFrame(capturetest.TCPFrame("10.0.0.9", "10.0.0.8", 40))
	return nil
}

func newLate() *lateFacility {
	return &lateFacility{release: make(chan struct{}), done: make(chan struct{})}
}

func TestResetDropsLateFrames(t *testing.T) {
	late := newLate()
	m := metrics.New()
	c := New(Options{
		Facility:    late,
		Normalizer:  normalize.New(fixed(models.RiskLow)),
		StopTimeout: 10 * time.Millisecond,
		Metrics:     m,
	})

	c.Start("")
	c.Reset()
	close(late.release)
	<-late.done

	require.Equal(t, 0, c.Status().TotalCaptured)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Contains(t, rec.Body.String(), "netrisk_dropped_frames_total 1")
	require.Contains(t, rec.Body.String(), "netrisk_capturing 0")
}

// switchingFacility hangs in its first call and returns at once afterwards.
type switchingFacility struct {
	first *lateFacility
	calls int
	mu    sync.Mutex
}

func (s *switchingFacility) Sniff(iface string, onFrame func(gopacket.Packet), stop func() bool) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n == 1 {
		return s.first.Sniff(iface, onFrame, stop)
	}
	for !stop() {
		time.Sleep(time.Millisecond)
	}
	return nil
}

func TestNewSessionDropsFramesOfOldLoop(t *testing.T) {
	f := &switchingFacility{first: newLate()}
	c := New(Options{
		Facility:    f,
		Normalizer:  normalize.New(fixed(models.RiskLow)),
		StopTimeout: 10 * time.Millisecond,
	})

	c.Start("")
	c.Stop()
	require.Equal(t, Started, c.Start(""))
	close(f.first.release)
	<-f.first.done

	require.Equal(t, 0, c.Status().TotalCaptured)
	require.True(t, c.Status().Capturing)
	c.Stop()
}

func TestConcurrentReadersDuringCapture(t *testing.T) {
	feed := make(chan gopacket.Packet)
	c := newController(&capturetest.Facility{Feed: feed})
	c.Start("")
	defer c.Stop()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					requireOrdered(t, c.Snapshot(20))
					_ = c.Status()
					_ = c.Summary(3)
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		feed <- capturetest.UDPFrame("10.0.0.1", "10.0.0.2", 64)
	}
	waitTotal(t, c, 200)
	close(stop)
	wg.Wait()

	requireContiguous(t, c.Snapshot(200))
}

func requireOrdered(t *testing.T, recs []models.PacketRecord) {
	for i := 1; i < len(recs); i++ {
		if recs[i].ID != recs[i-1].ID+1 {
			t.Errorf("ids out of order: %d then %d", recs[i-1].ID, recs[i].ID)
		}
	}
}

// gated blocks every prediction until release is closed.
type gated struct {
	entered chan struct{}
	release chan struct{}
}

func (g gated) Predict(features.Vector) models.Risk {
	g.entered <- struct{}{}
	<-g.release
	return models.RiskHigh
}

func TestSlowClassifierDoesNotBlockReaders(t *testing.T) {
	g := gated{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := New(Options{
		Facility:   &capturetest.Facility{Frames: frames(1), Hold: true},
		Normalizer: normalize.New(g),
	})

	c.Start("")
	<-g.entered

	read := make(chan models.Status, 1)
	go func() {
		_ = c.Snapshot(10)
		_ = c.Summary(3)
		read <- c.Status()
	}()
	select {
	case st := <-read:
		require.True(t, st.Capturing)
		require.Equal(t, 0, st.TotalCaptured)
	case <-time.After(time.Second):
		t.Fatal("readers blocked while a frame was being classified")
	}

	close(g.release)
	waitTotal(t, c, 1)
	require.Equal(t, uint64(1), c.Snapshot(1)[0].ID)
	c.Stop()
}
