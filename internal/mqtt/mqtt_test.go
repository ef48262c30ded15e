package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

var _ Publisher = (*RealPublisher)(nil)
var _ ConnectionStatus = (*RealPublisher)(nil)
var _ Publisher = (*FakePublisher)(nil)

func sampleTelemetry() pace.Telemetry {
	return pace.Telemetry{
		Timestamp:   time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC),
		Event:       pace.EventTick,
		Speed:       809,
		Distance:    51,
		StrideCount: 1,
	}
}

func TestTopicsFor(t *testing.T) {
	got := TopicsFor("")
	if got.Telemetry != "fitness/treadmill/pod/telemetry" {
		t.Errorf("Telemetry: got %q", got.Telemetry)
	}
	if got.System != "fitness/treadmill/pod/system" {
		t.Errorf("System: got %q", got.System)
	}

	custom := TopicsFor("gym/tm2")
	if custom.Telemetry != "gym/tm2/telemetry" || custom.System != "gym/tm2/system" {
		t.Errorf("custom topics: %+v", custom)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	payload, err := FormatPayload(sampleTelemetry(), DefaultUnits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"pod":{"timestamp":"2026-03-01T07:30:00Z","event":"TICK","speed":809,"distance":51,"strides":1,"speed_mps":3.16,"distance_m":3.188}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadEvents(t *testing.T) {
	tests := []struct {
		event     pace.EventType
		speed     uint32
		wantEvent string
		wantMPS   float64
	}{
		{pace.EventTick, 512, "TICK", 2},
		{pace.EventDecay, 256, "DECAY", 1},
		{pace.EventStop, 0, "STOP", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			tel := sampleTelemetry()
			tel.Event = tt.event
			tel.Speed = tt.speed

			payload, err := FormatPayload(tel, DefaultUnits)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Pod.Event != tt.wantEvent {
				t.Errorf("event: got %s, want %s", parsed.Pod.Event, tt.wantEvent)
			}
			if parsed.Pod.Speed != tt.speed {
				t.Errorf("speed: got %d, want %d", parsed.Pod.Speed, tt.speed)
			}
			if parsed.Pod.SpeedMPS != tt.wantMPS {
				t.Errorf("speed_mps: got %v, want %v", parsed.Pod.SpeedMPS, tt.wantMPS)
			}
		})
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	tel := sampleTelemetry()
	tel.Timestamp = time.Date(2026, 3, 1, 8, 30, 0, 250_000_000, loc)

	payload, err := FormatPayload(tel, DefaultUnits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Pod.Timestamp != "2026-03-01T07:30:00.25Z" {
		t.Errorf("timestamp: got %s", parsed.Pod.Timestamp)
	}
}

func TestFormatPayloadZeroUnits(t *testing.T) {
	payload, err := FormatPayload(sampleTelemetry(), Units{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Pod.SpeedMPS != 0 || parsed.Pod.DistanceM != 0 {
		t.Errorf("expected zero physical values, got %+v", parsed.Pod)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(sampleTelemetry()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Telemetry) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.Telemetry))
	}
	if f.Telemetry[0] != sampleTelemetry() {
		t.Errorf("recorded %+v", f.Telemetry[0])
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}

	var parsed Payload
	if err := json.Unmarshal(f.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Pod.Strides != 1 {
		t.Errorf("strides: got %d, want 1", parsed.Pod.Strides)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(sampleTelemetry()); err == nil {
		t.Error("expected error")
	}
	if len(f.Telemetry) != 0 {
		t.Errorf("failed publish should not be recorded, got %d", len(f.Telemetry))
	}

	f.PublishSystemError = errors.New("system error")
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected system error")
	}
	if len(f.SystemEvents) != 0 {
		t.Errorf("failed system publish should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(sampleTelemetry())
	f.PublishSystem(SystemEvent{Event: "STARTUP", Timestamp: time.Now()})
	f.Close()
	f.Connected = true
	f.PublishError = errors.New("x")

	f.Reset()

	if f.Telemetry != nil || f.Payloads != nil || f.SystemEvents != nil || f.SystemPayloads != nil {
		t.Error("Reset should clear recorded messages")
	}
	if f.Closed || f.Connected || f.PublishError != nil {
		t.Error("Reset should clear flags and errors")
	}

	if err := f.Publish(sampleTelemetry()); err != nil {
		t.Errorf("publish after reset: %v", err)
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true, Timestamp: time.Now()})
	f.PublishSystem(SystemEvent{Event: "HEARTBEAT", Timestamp: time.Now()})

	if !f.SystemEvents[0].Retained {
		t.Error("STARTUP should be retained")
	}
	if f.SystemEvents[1].Retained {
		t.Error("HEARTBEAT should not be retained")
	}
}
