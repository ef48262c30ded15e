// Package serialsink mirrors telemetry to a serial-attached display or radio
// bridge as one text line per record.
package serialsink

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// DefaultBaudRate is used when Open is given zero.
const DefaultBaudRate = 115200

// Sink writes telemetry lines to a port.
type Sink struct {
	mu     sync.Mutex
	port   io.WriteCloser
	writes int
}

// New wraps an already open port. Tests pass an in-memory writer.
func New(port io.WriteCloser) *Sink {
	return &Sink{port: port}
}

// Open opens the named serial port 8N1 and returns a Sink on it.
func Open(name string, baud int) (*Sink, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return New(port), nil
}

// FormatLine renders a record as `SDM <event> spd=<n> dist=<n> str=<n>\r\n`.
func FormatLine(tel pace.Telemetry) string {
	return fmt.Sprintf("SDM %s spd=%d dist=%d str=%d\r\n", tel.Event, tel.Speed, tel.Distance, tel.StrideCount)
}

// Publish writes one record.
func (s *Sink) Publish(tel pace.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.port.Write([]byte(FormatLine(tel))); err != nil {
		return fmt.Errorf("write serial: %w", err)
	}
	s.writes++
	return nil
}

// Writes returns the number of records written.
func (s *Sink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Close closes the port.
func (s *Sink) Close() error {
	return s.port.Close()
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
