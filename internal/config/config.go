// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/treadmill-pod/internal/gpio"
	"github.com/sweeney/treadmill-pod/internal/mqtt"
	"github.com/sweeney/treadmill-pod/internal/pace"
	"github.com/sweeney/treadmill-pod/internal/serialsink"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/treadmill-pod.yaml"

// Config represents the daemon configuration.
type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	Pace    PaceConfig    `yaml:"pace"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Serial  SerialConfig  `yaml:"serial"`
	History HistoryConfig `yaml:"history"`
}

// SensorConfig locates the optical sensor line and describes the counter
// edge timestamps are expressed in.
type SensorConfig struct {
	Chip        string `yaml:"chip"`
	Pin         int    `yaml:"pin"`
	CounterBits uint   `yaml:"counter_bits"`
	CounterHz   uint32 `yaml:"counter_hz"`
}

// PaceConfig holds the estimator constants.
type PaceConfig struct {
	BeltLengthMM    uint32 `yaml:"belt_length_mm"`
	RolloverModulus uint32 `yaml:"rollover_modulus"`
	DebounceMs      uint32 `yaml:"debounce_ms"`
	SpeedUnit       uint32 `yaml:"speed_unit"`    // per m/s
	DistanceUnit    uint32 `yaml:"distance_unit"` // per m
}

// MQTTConfig configures the telemetry publisher.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"` // 0 disables
	OutboxSize  int           `yaml:"outbox_size"`
	WSBroker    string        `yaml:"ws_broker"` // "=broker", "off" or a ws:// URL
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// SerialConfig configures the serial telemetry mirror.
type SerialConfig struct {
	Port string `yaml:"port"` // empty disables
	Baud int    `yaml:"baud"`
}

// HistoryConfig configures the run log.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	pc := pace.DefaultConfig()
	return &Config{
		Sensor: SensorConfig{
			Chip:        gpio.DefaultChip,
			Pin:         gpio.DefaultPin,
			CounterBits: pc.Counter.Bits,
			CounterHz:   pc.Counter.Hz,
		},
		Pace: PaceConfig{
			BeltLengthMM:    pc.BeltLengthMM,
			RolloverModulus: pc.RolloverModulus,
			DebounceMs:      pc.DebounceMs,
			SpeedUnit:       pc.SpeedUnit,
			DistanceUnit:    pc.DistanceUnit,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "treadmill-pod",
			TopicPrefix: mqtt.DefaultTopicPrefix,
			Heartbeat:   15 * time.Minute,
			OutboxSize:  mqtt.DefaultOutboxSize,
			WSBroker:    "=broker",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Serial: SerialConfig{
			Baud: serialsink.DefaultBaudRate,
		},
		History: HistoryConfig{
			Path: "/var/lib/treadmill-pod/runs.db",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; fields absent from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ensureDefaults restores defaults for fields explicitly zeroed in the file
// where zero is never meaningful. Belt length and debounce are left alone so
// Validate can reject an explicit 0.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sensor.Chip == "" {
		c.Sensor.Chip = def.Sensor.Chip
	}
	if c.Sensor.CounterBits == 0 {
		c.Sensor.CounterBits = def.Sensor.CounterBits
	}
	if c.Sensor.CounterHz == 0 {
		c.Sensor.CounterHz = def.Sensor.CounterHz
	}

	if c.Pace.RolloverModulus == 0 {
		c.Pace.RolloverModulus = def.Pace.RolloverModulus
	}
	if c.Pace.SpeedUnit == 0 {
		c.Pace.SpeedUnit = def.Pace.SpeedUnit
	}
	if c.Pace.DistanceUnit == 0 {
		c.Pace.DistanceUnit = def.Pace.DistanceUnit
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.OutboxSize == 0 {
		c.MQTT.OutboxSize = def.MQTT.OutboxSize
	}

	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
}

// PaceConfig converts the pace and sensor sections into the estimator's
// constants.
func (c *Config) PaceConfig() pace.Config {
	return pace.Config{
		BeltLengthMM:    c.Pace.BeltLengthMM,
		RolloverModulus: c.Pace.RolloverModulus,
		DebounceMs:      c.Pace.DebounceMs,
		SpeedUnit:       c.Pace.SpeedUnit,
		DistanceUnit:    c.Pace.DistanceUnit,
		Counter:         pace.Counter{Bits: c.Sensor.CounterBits, Hz: c.Sensor.CounterHz},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.PaceConfig().Validate(); err != nil {
		return fmt.Errorf("pace: %w", err)
	}
	if c.Sensor.Pin < 0 {
		return fmt.Errorf("sensor: pin %d is negative", c.Sensor.Pin)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt: heartbeat %v is negative", c.MQTT.Heartbeat)
	}
	if c.MQTT.OutboxSize < 0 {
		return fmt.Errorf("mqtt: outbox size %d is negative", c.MQTT.OutboxSize)
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial: baud %d is negative", c.Serial.Baud)
	}
	return nil
}
