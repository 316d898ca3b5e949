package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/sampler"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/timer"
	"github.com/sweeney/button-sensor/internal/web"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestInputs(t *testing.T) {
	cfg := logic.DefaultConfig()
	got := inputs(cfg)
	if len(got) != 3 {
		t.Fatalf("got %d inputs, want 3", len(got))
	}
	if got[0].Pin != cfg.ButtonPin || got[0].Edge != gpio.EdgeBoth || !got[0].PullUp {
		t.Errorf("button input: got %+v", got[0])
	}
	for i, p := range cfg.Probes {
		in := got[i+1]
		if in.Pin != p.Pin || in.Edge != gpio.EdgeFalling || !in.PullUp {
			t.Errorf("probe %d input: got %+v", i, in)
		}
	}
}

func TestDurationMs(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want uint32
	}{
		{100 * time.Millisecond, 100},
		{5 * time.Second, 5000},
		{1500 * time.Microsecond, 1},
		{-time.Second, 0},
	}
	for _, tt := range tests {
		if got := durationMs(tt.in); got != tt.want {
			t.Errorf("durationMs(%v): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPrintState(t *testing.T) {
	cfg := logic.DefaultConfig()
	board := gpio.NewFakeBoard(inputs(cfg), nil)
	board.SetLevel(cfg.ButtonPin, false)

	var buf bytes.Buffer
	if err := printState(&buf, board, cfg); err != nil {
		t.Fatalf("printState: %v", err)
	}
	want := "button (pin 17): PRESSED\nprobe A (pin 22): HIGH\nprobe B (pin 27): HIGH\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	board.LevelError = errors.New("line gone")
	if err := printState(&buf, board, cfg); err == nil {
		t.Error("expected error when the button cannot be read")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := newQueue(1)
	q.onEdge(gpio.EdgeEvent{Pin: 17, Edge: gpio.EdgeFalling})
	q.onEdge(gpio.EdgeEvent{Pin: 17, Edge: gpio.EdgeRising})
	q.onInterrupt(timer.Interrupt{Channel: 1, Target: 10})
	q.onInterrupt(timer.Interrupt{Channel: 2, Target: 20})
	q.onInterrupt(timer.Interrupt{Channel: 1, Target: 30})

	got := q.drops()
	if got.Edges != 1 || got.Interrupts != 3 {
		t.Errorf("drops: got %+v, want 1 edge, 3 interrupts", got)
	}
	if in := <-q.irqs; in.compare || in.edge.Edge != gpio.EdgeFalling {
		t.Errorf("queued: got %+v, want the first edge", in)
	}
}

func TestQueueKeepsRaisedOrder(t *testing.T) {
	q := newQueue(4)
	q.onInterrupt(timer.Interrupt{Channel: 0, Target: 10})
	q.onEdge(gpio.EdgeEvent{Pin: 17, Edge: gpio.EdgeRising})
	q.onInterrupt(timer.Interrupt{Channel: 2, Target: 20})

	want := []bool{true, false, true}
	for i, compare := range want {
		if in := <-q.irqs; in.compare != compare {
			t.Errorf("item %d: got compare=%v, want %v", i, in.compare, compare)
		}
	}
}

// recordingPublisher signals each published event or sample so tests can wait
// for the dispatch loop without sleeping.
type recordingPublisher struct {
	*mqtt.FakePublisher
	published chan string
}

func (p *recordingPublisher) Publish(ev logic.Event) error {
	err := p.FakePublisher.Publish(ev)
	p.published <- string(ev.Type)
	return err
}

func (p *recordingPublisher) PublishSample(s sampler.Sample) error {
	err := p.FakePublisher.PublishSample(s)
	p.published <- "SAMPLE:" + s.Kind.String()
	return err
}

type rig struct {
	cfg     logic.Config
	d       *daemon
	board   *gpio.FakeBoard
	smp     *sampler.Fake
	pub     *recordingPublisher
	tracker *status.Tracker
	hub     *web.Hub
	tick    chan time.Time
	sig     chan os.Signal
	done    chan error
}

// newRig wires the dispatch loop to a real software counter running with
// short delays, a fake board, sampler and publisher. Edges are injected
// straight into the queue; the board only serves the LED and levels.
func newRig(t *testing.T) *rig {
	t.Helper()
	return newRigWithTimer(t, func(cfg logic.Config, q *queue) logic.Timer {
		tm, err := timer.NewReal(timer.Config{RateHz: cfg.TickRateHz, Width: 24}, q.onInterrupt)
		if err != nil {
			t.Fatalf("NewReal: %v", err)
		}
		t.Cleanup(func() { tm.Close() })
		return tm
	})
}

func newRigWithTimer(t *testing.T, newTimer func(logic.Config, *queue) logic.Timer) *rig {
	t.Helper()
	cfg := logic.DefaultConfig()
	cfg.DebounceMs = 10
	cfg.LongPressMs = 200
	cfg.BlinkCycleMs = 20
	cfg.BlinkDutyMs = 5

	q := newQueue(16)
	tm := newTimer(cfg, q)

	events := make(chan logic.Event, 16)
	samples := make(chan sampler.Sample, 4)
	board := gpio.NewFakeBoard(inputs(cfg), nil)
	smp := sampler.NewFake(sampleSink(samples))

	ctrl, err := newController(cfg, tm, board, smp, events)
	if err != nil {
		t.Fatalf("newController: %v", err)
	}

	pub := &recordingPublisher{FakePublisher: mqtt.NewFakePublisher(), published: make(chan string, 64)}
	pub.Connected = true
	tracker := status.NewTracker(time.Now(), status.Config{})
	hub := web.NewHub()

	r := &rig{
		cfg:     cfg,
		board:   board,
		smp:     smp,
		pub:     pub,
		tracker: tracker,
		hub:     hub,
		tick:    make(chan time.Time),
		sig:     make(chan os.Signal, 1),
		done:    make(chan error, 1),
	}
	r.d = &daemon{
		ctrl:       ctrl,
		publisher:  pub,
		mqttStatus: pub,
		tracker:    tracker,
		sampler:    smp,
		hub:        hub,
		queue:      q,
		events:     events,
		samples:    samples,
	}
	return r
}

func (r *rig) start() {
	go func() { r.done <- runLoop(r.d, r.tick, r.sig) }()
}

func (r *rig) stop(t *testing.T, s os.Signal) {
	t.Helper()
	r.sig <- s
	select {
	case err := <-r.done:
		if err != nil {
			t.Fatalf("runLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after signal")
	}
}

func (r *rig) edge(pin gpio.Pin, e gpio.Edge) {
	r.d.queue.onEdge(gpio.EdgeEvent{Pin: pin, Edge: e, Time: time.Now()})
}

// await waits until each of want has been published, in order. Other
// publications in between are skipped.
func (r *rig) await(t *testing.T, want ...string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for _, w := range want {
		for found := false; !found; {
			select {
			case got := <-r.pub.published:
				found = got == w
			case <-deadline:
				t.Fatalf("timed out waiting for %s", w)
			}
		}
	}
}

func TestRunLoopProbeBlinks(t *testing.T) {
	r := newRig(t)
	r.start()

	r.edge(r.cfg.Probes[1].Pin, gpio.EdgeFalling)
	r.await(t, "PROBE", "BLINK_START", "BLINK_END")
	r.stop(t, syscall.SIGTERM)

	types := r.pub.EventTypes()
	want := []logic.EventType{logic.EventProbe, logic.EventBlinkStart, logic.EventBlinkEnd}
	if len(types) != len(want) {
		t.Fatalf("events: got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, types[i], want[i])
		}
	}
	if r.pub.Events[1].Blinks != 3 {
		t.Errorf("BLINK_START blinks: got %d, want 3", r.pub.Events[1].Blinks)
	}
	if r.board.Toggles != 6 {
		t.Errorf("LED toggles: got %d, want 6", r.board.Toggles)
	}
	if r.board.LED {
		t.Error("LED should end off")
	}

	snap := r.tracker.Snapshot()
	if snap.Controller.Session != logic.SessionIdle {
		t.Errorf("session: got %s, want IDLE", snap.Controller.Session)
	}
	if snap.Controller.Counts.Probes != 1 || snap.Controller.Counts.BlinksDone != 1 {
		t.Errorf("counts: got %+v", snap.Controller.Counts)
	}
	if snap.LastEvent.Type != logic.EventBlinkEnd {
		t.Errorf("last event: got %s, want BLINK_END", snap.LastEvent.Type)
	}
	if !snap.MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
}

func TestRunLoopShortPressTakesAnalogSample(t *testing.T) {
	r := newRig(t)
	r.start()

	r.edge(r.cfg.ButtonPin, gpio.EdgeFalling)
	time.Sleep(50 * time.Millisecond)
	r.edge(r.cfg.ButtonPin, gpio.EdgeRising)
	r.await(t, "SHORT_PRESS", "BLINK_START", "BLINK_END")

	if !r.smp.Pending(sampler.KindAnalog) {
		t.Fatal("short press should request an analog sample")
	}
	r.smp.Complete(sampler.KindAnalog, 1650)
	r.await(t, "SAMPLE:analog")
	r.stop(t, syscall.SIGTERM)

	if len(r.pub.Samples) != 1 || r.pub.Samples[0].Value != 1650 {
		t.Errorf("samples: got %+v", r.pub.Samples)
	}
	snap := r.tracker.Snapshot()
	if snap.Analog.Value != 1650 || snap.Analog.Unit != "mV" {
		t.Errorf("tracked analog: got %+v", snap.Analog)
	}
	if snap.Controller.Counts.ShortPresses != 1 || snap.Controller.Counts.Blinks != 1 {
		t.Errorf("counts: got %+v", snap.Controller.Counts)
	}
	if r.board.Toggles != 4 {
		t.Errorf("LED toggles: got %d, want 4", r.board.Toggles)
	}
}

func TestRunLoopLongPress(t *testing.T) {
	r := newRig(t)
	// Held down when channel 0 fires.
	r.board.SetLevel(r.cfg.ButtonPin, false)
	r.start()

	r.edge(r.cfg.ButtonPin, gpio.EdgeFalling)
	r.await(t, "LONG_PRESS", "BLINK_START", "BLINK_END")
	r.stop(t, syscall.SIGTERM)

	if r.pub.Events[0].Type != logic.EventLongPress {
		t.Fatalf("first event: got %s, want LONG_PRESS", r.pub.Events[0].Type)
	}
	if r.pub.Events[1].Blinks != r.cfg.LongPressBlinks {
		t.Errorf("BLINK_START blinks: got %d, want %d", r.pub.Events[1].Blinks, r.cfg.LongPressBlinks)
	}
	if r.smp.Pending(sampler.KindAnalog) {
		t.Error("long press should not request a sample")
	}
}

// A long-press interrupt raised before the release edge must be dispatched
// first even when both are already waiting in the queue.
func TestRunLoopDispatchesInRaisedOrder(t *testing.T) {
	for i := 0; i < 8; i++ {
		var tm *timer.Fake
		r := newRigWithTimer(t, func(cfg logic.Config, _ *queue) logic.Timer {
			tm = timer.NewFake(timer.Config{RateHz: cfg.TickRateHz, Width: 24})
			return tm
		})

		// Still held when channel 0 fires.
		r.board.SetLevel(r.cfg.ButtonPin, false)
		if err := r.d.ctrl.HandleEdge(gpio.EdgeEvent{Pin: r.cfg.ButtonPin, Edge: gpio.EdgeFalling}); err != nil {
			t.Fatalf("press: %v", err)
		}
		tm.AdvanceMs(r.cfg.LongPressMs)
		if len(tm.Fired) != 1 {
			t.Fatalf("fired: got %+v, want one channel 0 interrupt", tm.Fired)
		}
		r.d.queue.onInterrupt(tm.Fired[0])
		r.edge(r.cfg.ButtonPin, gpio.EdgeRising)

		r.start()
		r.await(t, "LONG_PRESS", "BLINK_START")
		r.stop(t, syscall.SIGTERM)

		types := r.pub.EventTypes()
		if len(types) != 2 || types[0] != logic.EventLongPress || types[1] != logic.EventBlinkStart {
			t.Fatalf("run %d: events %v, want LONG_PRESS then BLINK_START", i, types)
		}
		if n := r.tracker.Snapshot().Controller.Counts.Spurious; n != 0 {
			t.Errorf("run %d: %d spurious interrupts", i, n)
		}
	}
}

func TestRunLoopBlinkRequestFromAnotherGoroutine(t *testing.T) {
	r := newRig(t)
	r.start()

	if err := r.d.ctrl.RequestBlink(2); err != nil {
		t.Fatalf("RequestBlink: %v", err)
	}
	r.await(t, "BLINK_START", "BLINK_END")
	r.stop(t, syscall.SIGINT)

	if r.board.Toggles != 4 {
		t.Errorf("LED toggles: got %d, want 4", r.board.Toggles)
	}
}

func TestRunLoopReport(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.5")
	r := newRig(t)
	r.start()

	r.tick <- time.Now()
	r.stop(t, syscall.SIGTERM)

	if len(r.smp.Requests) != 1 || r.smp.Requests[0] != sampler.KindTemperature {
		t.Errorf("sample requests: got %v, want [temperature]", r.smp.Requests)
	}
	if len(r.pub.SystemEvents) != 2 {
		t.Fatalf("system events: got %d, want 2", len(r.pub.SystemEvents))
	}
	hb := r.pub.SystemEvents[0]
	if hb.Event != "HEARTBEAT" || hb.Retained {
		t.Errorf("heartbeat: got %+v", hb)
	}
	payload := string(r.pub.SystemPayloads[0])
	for _, want := range []string{`"event":"HEARTBEAT"`, `"session":"IDLE"`, `"ip":"10.0.0.5"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("heartbeat payload missing %s: %s", want, payload)
		}
	}
}

func TestRunLoopShutdown(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := newRig(t)
			r.start()
			r.stop(t, tt.sig)

			if len(r.pub.SystemEvents) != 1 {
				t.Fatalf("system events: got %d, want 1", len(r.pub.SystemEvents))
			}
			ev := r.pub.SystemEvents[0]
			if ev.Event != "SHUTDOWN" || ev.Reason != tt.want || !ev.Retained {
				t.Errorf("shutdown event: got %+v", ev)
			}
			payload := string(r.pub.SystemPayloads[0])
			if !strings.Contains(payload, `"reason":"`+tt.want+`"`) {
				t.Errorf("payload missing reason: %s", payload)
			}
		})
	}
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	r := newRig(t)
	r.pub.PublishError = errors.New("broker gone")
	r.start()

	r.edge(r.cfg.Probes[0].Pin, gpio.EdgeFalling)
	r.await(t, "PROBE", "BLINK_START", "BLINK_END")
	r.stop(t, syscall.SIGTERM)

	if len(r.pub.Events) != 0 {
		t.Errorf("no events should be recorded, got %d", len(r.pub.Events))
	}
	if r.tracker.Snapshot().Controller.Counts.BlinksDone != 1 {
		t.Error("blink should complete despite publish errors")
	}
	if len(r.pub.SystemEvents) != 1 {
		t.Error("shutdown should still be published")
	}
}

func TestRunLoopIgnoresUnknownPin(t *testing.T) {
	r := newRig(t)
	r.start()

	r.edge(5, gpio.EdgeFalling)
	r.tick <- time.Now()
	r.stop(t, syscall.SIGTERM)

	if len(r.pub.Events) != 0 {
		t.Errorf("events: got %v, want none", r.pub.EventTypes())
	}
	if r.board.Toggles != 0 {
		t.Errorf("LED toggles: got %d, want 0", r.board.Toggles)
	}
}
