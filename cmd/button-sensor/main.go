// Command button-sensor debounces a push button, blinks an LED on presses and
// probe edges, and publishes events and readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/sampler"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/timer"
	"github.com/sweeney/button-sensor/internal/web"
)

// Queue sizes between the platform goroutines and the dispatch loop.
const (
	irqQueueSize    = 64
	eventQueueSize  = 64
	sampleQueueSize = 8
)

type options struct {
	chip       string
	ctrl       logic.Config
	timer      timer.Config
	ledPin     gpio.Pin
	report     time.Duration
	broker     string
	httpAddr   string
	printState bool
	sysfs      sampler.SysfsConfig
}

func main() {
	def := logic.DefaultConfig()

	chip := flag.String("chip", "gpiochip0", "GPIO chip name")
	pinButton := flag.Int("pin-button", gpio.DefaultPinButton, "BCM pin number for the push button")
	pinProbeA := flag.Int("pin-probe-a", gpio.DefaultPinProbeA, "BCM pin number for probe A")
	pinProbeB := flag.Int("pin-probe-b", gpio.DefaultPinProbeB, "BCM pin number for probe B")
	pinLED := flag.Int("pin-led", gpio.DefaultPinLED, "BCM pin number for the LED")
	activeLow := flag.Bool("active-low", def.ButtonActiveLow, "Button pulls the line low when pressed")
	probeEdge := flag.String("probe-edge", "falling", "Probe trigger edge (rising or falling)")
	tickRate := flag.Uint("tick-rate", timer.DefaultRateHz, "Counter tick rate in Hz")
	counterBits := flag.Uint("counter-bits", timer.DefaultWidth, "Counter width in bits")
	debounce := flag.Duration("debounce", 100*time.Millisecond, "Minimum press duration")
	longPress := flag.Duration("long-press", 5*time.Second, "Long press duration")
	blinkCycle := flag.Duration("blink-cycle", 400*time.Millisecond, "Blink cycle period")
	blinkDuty := flag.Duration("blink-duty", 100*time.Millisecond, "LED on time per blink cycle")
	shortBlinks := flag.Int("short-blinks", def.ShortPressBlinks, "Blinks after a short press")
	longBlinks := flag.Int("long-blinks", def.LongPressBlinks, "Blinks after a long press")
	probeABlinks := flag.Int("probe-a-blinks", def.Probes[0].Blinks, "Blinks requested by probe A")
	probeBBlinks := flag.Int("probe-b-blinks", def.Probes[1].Blinks, "Blinks requested by probe B")
	report := flag.Duration("report", 10*time.Second, "Temperature sample and heartbeat interval (0 to disable)")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	printState := flag.Bool("print-state", false, "Print current input levels and exit")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	tempPath := flag.String("temp-path", sampler.DefaultTempPath, "sysfs temperature attribute (empty to disable)")
	adcPath := flag.String("adc-path", "", "sysfs ADC raw attribute, e.g. "+sampler.DefaultADCPath+" (empty to disable)")
	adcScale := flag.Float64("adc-scale", 1, "Millivolts per raw ADC count")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *counterBits > 32 {
		log.Fatalf("fatal: counter-bits %d out of range 1..32", *counterBits)
	}
	edge, err := gpio.ParseEdge(*probeEdge)
	if err != nil {
		log.Fatalf("fatal: probe-edge: %v", err)
	}

	o := options{
		chip: *chip,
		ctrl: logic.Config{
			TickRateHz:       uint32(*tickRate),
			DebounceMs:       durationMs(*debounce),
			LongPressMs:      durationMs(*longPress),
			BlinkCycleMs:     durationMs(*blinkCycle),
			BlinkDutyMs:      durationMs(*blinkDuty),
			ShortPressBlinks: *shortBlinks,
			LongPressBlinks:  *longBlinks,
			ButtonPin:        gpio.Pin(*pinButton),
			ButtonActiveLow:  *activeLow,
			Probes: [2]logic.Probe{
				{Pin: gpio.Pin(*pinProbeA), Edge: edge, Blinks: *probeABlinks},
				{Pin: gpio.Pin(*pinProbeB), Edge: edge, Blinks: *probeBBlinks},
			},
		},
		timer:      timer.Config{RateHz: uint32(*tickRate), Width: uint8(*counterBits)},
		ledPin:     gpio.Pin(*pinLED),
		report:     *report,
		broker:     *broker,
		httpAddr:   *httpAddr,
		printState: *printState,
		sysfs:      sampler.SysfsConfig{TempPath: *tempPath, ADCPath: *adcPath, ADCScale: *adcScale},
	}

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	if err := o.ctrl.Validate(); err != nil {
		return err
	}
	if err := o.timer.Validate(); err != nil {
		return err
	}
	if err := o.ctrl.ValidateCounter(o.timer.Mask()); err != nil {
		return err
	}

	q := newQueue(irqQueueSize)

	// Initialize GPIO
	board, err := gpio.NewRealBoard(o.chip, inputs(o.ctrl), o.ledPin, q.onEdge)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	if o.printState {
		return printState(os.Stdout, board, o.ctrl)
	}

	tm, err := timer.NewReal(o.timer, q.onInterrupt)
	if err != nil {
		return fmt.Errorf("init timer: %w", err)
	}
	defer tm.Close()

	events := make(chan logic.Event, eventQueueSize)
	samples := make(chan sampler.Sample, sampleQueueSize)

	smp := sampler.NewSysfs(o.sysfs, sampleSink(samples))
	if err := smp.Check(); err != nil {
		return fmt.Errorf("init sampler: %w", err)
	}

	ctrl, err := newController(o.ctrl, tm, board, smp, events)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{Broker: o.broker})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(o))
	tracker.Update(ctrl.Snapshot())
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	d := &daemon{
		ctrl:       ctrl,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		sampler:    smp,
		queue:      q,
		events:     events,
		samples:    samples,
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, ctrl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		d.hub = srv.Hub()
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	logBanner(o)

	var tick <-chan time.Time
	if o.report > 0 {
		ticker := time.NewTicker(o.report)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(d, tick, sigCh)
}

func logBanner(o options) {
	host, _ := os.Hostname()
	log.WithFields(log.Fields{
		"host":         host,
		"chip":         o.chip,
		"tick_hz":      o.timer.RateHz,
		"counter_bits": o.timer.Width,
		"counter_mask": fmt.Sprintf("%#x", uint32(o.timer.Mask())),
	}).Info("button-sensor starting")
	log.Printf("started: debounce=%dms long-press=%dms blink=%dms/%dms broker=%s report=%v",
		o.ctrl.DebounceMs, o.ctrl.LongPressMs, o.ctrl.BlinkDutyMs, o.ctrl.BlinkCycleMs, o.broker, o.report)
}

// newController wires the controller hooks: a short press takes an analog
// reading, and every event is queued for the dispatch loop.
func newController(cfg logic.Config, tm logic.Timer, board gpio.Board, smp sampler.Sampler, events chan<- logic.Event) (*logic.Controller, error) {
	hooks := logic.Hooks{
		ShortPress: func() {
			if err := smp.Request(sampler.KindAnalog); err != nil {
				log.WithError(err).Debug("analog sample not started")
			}
		},
		LongPress: func() {
			log.Printf("long press: blinking %d times", cfg.LongPressBlinks)
		},
		Event: func(ev logic.Event) {
			select {
			case events <- ev:
			default:
				log.Warnf("event queue full, dropping %s", ev.Type)
			}
		},
	}
	return logic.New(cfg, tm, board, board, hooks)
}

func sampleSink(samples chan<- sampler.Sample) sampler.DoneFunc {
	return func(s sampler.Sample) {
		select {
		case samples <- s:
		default:
			log.Warnf("sample queue full, dropping %s reading", s.Kind)
		}
	}
}

// inputs returns the GPIO lines the controller listens on. The button needs
// both edges; probes only their trigger edge.
func inputs(cfg logic.Config) []gpio.Input {
	in := []gpio.Input{{Pin: cfg.ButtonPin, Edge: gpio.EdgeBoth, PullUp: cfg.ButtonActiveLow}}
	for _, p := range cfg.Probes {
		in = append(in, gpio.Input{Pin: p.Pin, Edge: p.Edge, PullUp: p.Edge == gpio.EdgeFalling})
	}
	return in
}

func statusConfig(o options) status.Config {
	return status.Config{
		TickRateHz:   o.timer.RateHz,
		CounterBits:  o.timer.Width,
		DebounceMs:   int64(o.ctrl.DebounceMs),
		LongPressMs:  int64(o.ctrl.LongPressMs),
		BlinkCycleMs: int64(o.ctrl.BlinkCycleMs),
		BlinkDutyMs:  int64(o.ctrl.BlinkDutyMs),
		ReportMs:     o.report.Milliseconds(),
		ButtonPin:    int(o.ctrl.ButtonPin),
		ProbePins:    [2]int{int(o.ctrl.Probes[0].Pin), int(o.ctrl.Probes[1].Pin)},
		LEDPin:       int(o.ledPin),
		Broker:       o.broker,
		HTTPPort:     o.httpAddr,
	}
}

func durationMs(d time.Duration) uint32 {
	if d < 0 {
		return 0
	}
	return uint32(d.Milliseconds())
}

func printState(w io.Writer, r gpio.LevelReader, cfg logic.Config) error {
	level, err := r.Level(cfg.ButtonPin)
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	pressed := level != cfg.ButtonActiveLow
	fmt.Fprintf(w, "button (pin %d): %s\n", cfg.ButtonPin, pressedString(pressed))
	for i, p := range cfg.Probes {
		level, err := r.Level(p.Pin)
		if err != nil {
			return fmt.Errorf("read probe %d: %w", i, err)
		}
		fmt.Fprintf(w, "probe %c (pin %d): %s\n", 'A'+i, p.Pin, levelString(level))
	}
	return nil
}

func pressedString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}

// irq is one queued hardware event: a GPIO edge or a compare interrupt.
type irq struct {
	compare bool
	edge    gpio.EdgeEvent
	cmp     timer.Interrupt
}

// queue carries edges and compare interrupts from platform goroutines to the
// dispatch loop through one channel, so they are dispatched in the order they
// were raised. Producers never block; a full queue drops and counts.
type queue struct {
	irqs chan irq

	droppedEdges atomic.Int64
	droppedIrqs  atomic.Int64
}

func newQueue(size int) *queue {
	return &queue{irqs: make(chan irq, size)}
}

func (q *queue) onEdge(ev gpio.EdgeEvent) {
	select {
	case q.irqs <- irq{edge: ev}:
	default:
		q.droppedEdges.Add(1)
	}
}

func (q *queue) onInterrupt(in timer.Interrupt) {
	select {
	case q.irqs <- irq{compare: true, cmp: in}:
	default:
		q.droppedIrqs.Add(1)
	}
}

func (q *queue) drops() status.Drops {
	return status.Drops{
		Edges:      int(q.droppedEdges.Load()),
		Interrupts: int(q.droppedIrqs.Load()),
	}
}

type broadcaster interface {
	Broadcast(data []byte) int
}

// daemon is everything the dispatch loop touches.
type daemon struct {
	ctrl       *logic.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	sampler    sampler.Sampler
	hub        broadcaster // nil when HTTP is disabled
	queue      *queue
	events     <-chan logic.Event
	samples    <-chan sampler.Sample
}

// runLoop serialises interrupts into the controller and fans results out to
// MQTT, the status tracker and the live feed. It returns on a signal.
func runLoop(d *daemon, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.shutdown(s)
			return nil

		case in := <-d.queue.irqs:
			d.dispatch(in)

		case ev := <-d.events:
			d.onEvent(ev)

		case s := <-d.samples:
			d.onSample(s)

		case <-tick:
			d.report()
		}
	}
}

func (d *daemon) dispatch(in irq) {
	if in.compare {
		d.check("compare", d.ctrl.HandleCompare(in.cmp))
	} else {
		d.check("edge", d.ctrl.HandleEdge(in.edge))
	}
	d.refresh()
}

func (d *daemon) check(source string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, logic.ErrSpuriousInterrupt):
		log.Debugf("%s: %v", source, err)
	case errors.Is(err, logic.ErrHardwareBusy):
		log.WithError(err).Errorf("%s: controller fault", source)
	default:
		log.WithError(err).Errorf("%s dispatch failed", source)
	}
}

func (d *daemon) refresh() {
	d.tracker.Update(d.ctrl.Snapshot())
	d.tracker.SetDrops(d.queue.drops())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) broadcast(data []byte) {
	if d.hub != nil {
		d.hub.Broadcast(data)
	}
}

func (d *daemon) onEvent(ev logic.Event) {
	log.WithFields(log.Fields{
		"pin":     ev.Pin,
		"held_ms": ev.Held.Milliseconds(),
		"blinks":  ev.Blinks,
	}).Infof("event: %s", ev.Type)

	if err := d.publisher.Publish(ev); err != nil {
		log.Printf("publish error: %v", err)
	}
	d.tracker.RecordEvent(ev)
	d.refresh()
	d.broadcast(web.FormatEventFrame(ev))
	d.broadcast(web.FormatStatusFrame(d.tracker.Snapshot()))
}

func (d *daemon) onSample(s sampler.Sample) {
	if s.Err != nil {
		log.WithError(s.Err).Warnf("%s sample failed", s.Kind)
	} else {
		log.Debugf("sample: %s %.1f %s", s.Kind, s.Value, s.Unit)
	}
	if err := d.publisher.PublishSample(s); err != nil {
		log.Printf("sample publish error: %v", err)
	}
	d.tracker.RecordSample(s)
	d.broadcast(web.FormatSampleFrame(s))
}

// report runs once per report period: it starts a temperature reading and
// publishes a heartbeat with the current status.
func (d *daemon) report() {
	if err := d.sampler.Request(sampler.KindTemperature); err != nil {
		log.WithError(err).Debug("temperature sample not started")
	}

	d.refresh()
	// Refresh network info for heartbeat
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	snap := d.tracker.Snapshot()
	c := snap.Controller.Counts
	log.Printf("heartbeat: uptime=%v session=%s presses=%d short=%d long=%d probes=%d blinks=%d spurious=%d",
		snap.Uptime().Truncate(time.Second), snap.Controller.Session, c.Presses, c.ShortPresses, c.LongPresses, c.Probes, c.Blinks, c.Spurious)

	hbEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
	d.broadcast(web.FormatStatusFrame(snap))
}

func (d *daemon) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	d.refresh()
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
