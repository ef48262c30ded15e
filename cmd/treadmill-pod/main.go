// Command treadmill-pod watches an optical belt sensor and publishes speed,
// distance and stride telemetry to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sweeney/treadmill-pod/internal/config"
	"github.com/sweeney/treadmill-pod/internal/gpio"
	"github.com/sweeney/treadmill-pod/internal/history"
	"github.com/sweeney/treadmill-pod/internal/mqtt"
	"github.com/sweeney/treadmill-pod/internal/pace"
	"github.com/sweeney/treadmill-pod/internal/serialsink"
	"github.com/sweeney/treadmill-pod/internal/status"
	"github.com/sweeney/treadmill-pod/internal/timeutil"
	"github.com/sweeney/treadmill-pod/internal/web"
)

func main() {
	def := config.Default()

	configPath := flag.String("config", config.DefaultPath, "YAML config file (missing file = defaults)")
	broker := flag.String("broker", def.MQTT.Broker, "MQTT broker address")
	topicPrefix := flag.String("topic-prefix", def.MQTT.TopicPrefix, "MQTT topic prefix")
	heartbeat := flag.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	chip := flag.String("chip", def.Sensor.Chip, "GPIO chip")
	pin := flag.Int("pin", def.Sensor.Pin, "BCM pin number for the optical sensor")
	beltLength := flag.Uint("belt-length", uint(def.Pace.BeltLengthMM), "Belt length in mm (1-65535)")
	debounce := flag.Duration("debounce", time.Duration(def.Pace.DebounceMs)*time.Millisecond, "Minimum interval between belt ticks")
	httpAddr := flag.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	wsBroker := flag.String("ws-broker", def.MQTT.WSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	serialPort := flag.String("serial", def.Serial.Port, "Serial port to mirror telemetry to (empty to disable)")
	historyPath := flag.String("history", def.History.Path, "Run history database (empty to disable)")
	printState := flag.Bool("print-state", false, "Print current sensor state and exit")
	writeConfig := flag.String("write-config", "", "Write the effective config to this file and exit")
	listSerial := flag.Bool("list-serial", false, "List serial ports and exit")

	flag.Parse()

	if *listSerial {
		ports, err := serialsink.Ports()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "topic-prefix":
			cfg.MQTT.TopicPrefix = *topicPrefix
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "chip":
			cfg.Sensor.Chip = *chip
		case "pin":
			cfg.Sensor.Pin = *pin
		case "belt-length":
			cfg.Pace.BeltLengthMM = clampUint32(*beltLength)
		case "debounce":
			ms, err := durationMs(*debounce)
			if err != nil {
				log.Fatalf("fatal: -debounce: %v", err)
			}
			cfg.Pace.DebounceMs = ms
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "ws-broker":
			cfg.MQTT.WSBroker = *wsBroker
		case "serial":
			cfg.Serial.Port = *serialPort
		case "history":
			cfg.History.Path = *historyPath
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		log.Printf("wrote config to %s", *writeConfig)
		return
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printState bool) error {
	pc := cfg.PaceConfig()

	// Initialize GPIO
	source, err := gpio.NewRealEdgeSource(cfg.Sensor.Chip, cfg.Sensor.Pin, pc.Counter)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer source.Close()

	// Print state mode
	if printState {
		detected, err := source.Level()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("SENSOR: %s\n", levelString(detected))
		return nil
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Topics:     mqtt.TopicsFor(cfg.MQTT.TopicPrefix),
		Units:      mqtt.Units{Speed: pc.SpeedUnit, Distance: pc.DistanceUnit},
		OutboxSize: cfg.MQTT.OutboxSize,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		BeltLengthMM: pc.BeltLengthMM,
		DebounceMs:   pc.DebounceMs,
		SpeedUnit:    pc.SpeedUnit,
		DistanceUnit: pc.DistanceUnit,
		Pin:          cfg.Sensor.Pin,
		HeartbeatMs:  cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		SerialPort:   cfg.Serial.Port,
		HistoryPath:  cfg.History.Path,
		WSBroker:     resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker),
		TopicPrefix:  cfg.MQTT.TopicPrefix,
	})
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

	d := &dispatcher{
		source:     source,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		recorder:   history.NewRecorder(pc.BeltLengthMM),
		now:        time.Now,
	}

	// Open run history
	var runs web.RunLister
	if cfg.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		d.store = store
		runs = store
		if v, err := store.Version(); err == nil {
			log.Printf("history: schema version %d", v)
		}
		if count, mm, err := store.Totals(context.Background()); err == nil {
			log.Printf("history: %d runs, %.1f km total", count, float64(mm)/1e6)
		}
	}

	// Open serial mirror
	if cfg.Serial.Port != "" {
		sink, err := serialsink.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return fmt.Errorf("init serial: %w", err)
		}
		defer sink.Close()
		d.sinks = append(d.sinks, sink)
		log.Printf("mirroring telemetry to %s at %d baud", cfg.Serial.Port, cfg.Serial.Baud)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, runs)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	wd := pace.NewWatchdog(timeutil.RealClock{})
	d.watchdog = wd
	d.ticks = pace.NewTickSource(pc)
	d.estimator = pace.NewEstimator(pc, wd)

	log.Printf("started: pin=%d belt=%dmm debounce=%dms broker=%s heartbeat=%v",
		cfg.Sensor.Pin, pc.BeltLengthMM, pc.DebounceMs, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)
	log.Printf("edge counter wraps every %v; longer gaps read short", pc.Counter.Period())

	var heartbeatC <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(heartbeatC, sigCh)
}

// telemetrySink receives every telemetry record besides MQTT.
type telemetrySink interface {
	Publish(tel pace.Telemetry) error
}

// outboxStatus is implemented by publishers that buffer while offline.
type outboxStatus interface {
	Queued() (queued, dropped int)
}

// runSaver is the write side of the run history.
type runSaver interface {
	Save(ctx context.Context, r history.Run) error
}

// dispatcher owns the pace core. Every state change happens on the
// goroutine running runLoop, so edges and watchdog expiries are handled one
// at a time in arrival order.
type dispatcher struct {
	source     gpio.EdgeSource
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	tracker    *status.Tracker       // may be nil
	sinks      []telemetrySink
	recorder   *history.Recorder // may be nil
	store      runSaver          // may be nil

	ticks     *pace.TickSource
	estimator *pace.Estimator
	watchdog  *pace.Watchdog

	now func() time.Time
}

func (d *dispatcher) runLoop(heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	edges := d.source.Edges()
	for {
		select {
		case s := <-sig:
			// Edges already delivered belong to this session.
			d.drainEdges(edges)
			d.shutdown(s)
			return nil

		case e, ok := <-edges:
			if !ok {
				return errors.New("edge source closed")
			}
			d.handleEdge(e)

		case <-d.watchdog.C():
			d.handleExpiry()

		case <-heartbeat:
			d.handleHeartbeat()
		}
	}
}

func (d *dispatcher) drainEdges(edges <-chan pace.Edge) {
	for {
		select {
		case e, ok := <-edges:
			if !ok {
				return
			}
			d.handleEdge(e)
		default:
			return
		}
	}
}

func (d *dispatcher) handleEdge(e pace.Edge) {
	tick, ok := d.ticks.OnEdge(e)
	if ok {
		d.emit(d.estimator.OnTick(d.now(), tick.ElapsedMs))
	}
	d.updateTracker()
}

func (d *dispatcher) handleExpiry() {
	if !d.watchdog.Expire() {
		// Cancelled after it fired.
		return
	}
	if tel, ok := d.estimator.Decay(d.now()); ok {
		d.emit(tel)
	}
	d.updateTracker()
}

func (d *dispatcher) emit(tel pace.Telemetry) {
	log.Printf("pace: %s speed=%d distance=%d strides=%d", tel.Event, tel.Speed, tel.Distance, tel.StrideCount)

	if d.tracker != nil {
		d.tracker.Record(tel)
	}
	if err := d.publisher.Publish(tel); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
	for _, s := range d.sinks {
		if err := s.Publish(tel); err != nil {
			log.Printf("sink error: %v", err)
		}
	}

	if d.recorder == nil {
		return
	}
	if r, done := d.recorder.Observe(tel); done {
		d.saveRun(r)
	}
}

func (d *dispatcher) saveRun(r history.Run) {
	log.Printf("run %s: %v, %d strides, %dmm, peak speed %d",
		r.ID, r.Duration().Truncate(time.Second), r.Strides, r.DistanceMM, r.PeakSpeed)
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.Save(ctx, r); err != nil {
		log.Printf("history: %v", err)
	}
}

func (d *dispatcher) updateTracker() {
	if d.tracker == nil {
		return
	}
	d.tracker.Update(d.estimator.State(), d.ticks.Counts(), d.ticks.HasReference(), d.source.Dropped())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *dispatcher) handleHeartbeat() {
	counts := d.ticks.Counts()
	st := d.estimator.State()
	log.Printf("heartbeat: speed=%d strides=%d edges=%d ticks=%d bounces=%d dropped=%d decays=%d",
		st.Speed, st.StrideCount, counts.Edges, counts.Ticks, counts.Bounces, d.source.Dropped(), d.watchdog.Fires())
	if d.recorder != nil {
		if r, ok := d.recorder.Active(); ok {
			log.Printf("heartbeat: run %s in progress, %d strides", r.ID, r.Strides)
		}
	}
	if ob, ok := d.publisher.(outboxStatus); ok {
		if queued, lost := ob.Queued(); queued > 0 || lost > 0 {
			log.Printf("heartbeat: mqtt outbox queued=%d dropped=%d", queued, lost)
		}
	}

	hbEvent := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     "HEARTBEAT",
	}
	if d.tracker != nil {
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
		d.updateTracker()
		snap := d.tracker.Snapshot()
		hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := d.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (d *dispatcher) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	d.watchdog.Disarm()
	if d.recorder != nil {
		if r, ok := d.recorder.Flush(d.now()); ok {
			d.saveRun(r)
		}
	}

	event := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if d.tracker != nil {
		d.updateTracker()
		snap := d.tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
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

// durationMs converts a flag duration to whole milliseconds.
func durationMs(d time.Duration) (uint32, error) {
	if d < 0 {
		return 0, fmt.Errorf("%v is negative", d)
	}
	ms := d.Milliseconds()
	if ms > math.MaxUint32 {
		return 0, fmt.Errorf("%v is too long", d)
	}
	return uint32(ms), nil
}

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

func levelString(detected bool) string {
	if detected {
		return "DETECTED"
	}
	return "CLEAR"
}

// clampUint32 keeps an out-of-range flag value out of range after
// narrowing, so Validate still rejects it.
func clampUint32(v uint) uint32 {
	if uint64(v) > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
