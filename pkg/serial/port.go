package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	bugst "go.bug.st/serial"
)

// Port is the byte transport under a Driver. A Read that returns (0, nil)
// is a read timeout, not end of stream.
type Port interface {
	io.ReadWriteCloser
}

// Physical line defaults.
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 500 * time.Millisecond
	DefaultWidth       = 80
)

// Config describes the serial line and the operator terminal attached to it.
type Config struct {
	// Port is the device name, e.g. /dev/ttyS0 or COM1.
	Port string
	// BaudRate defaults to 9600.
	BaudRate int
	// ReadTimeout bounds each read so Close is noticed promptly.
	ReadTimeout time.Duration
	// Width is the column width of the operator terminal used for redraw
	// arithmetic.
	Width int
	// HistorySize is the number of lines kept for recall.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	return c
}

// OpenPort opens the device as 8 data bits, no parity, one stop bit with no
// hardware handshake.
func OpenPort(cfg Config) (Port, error) {
	cfg = cfg.withDefaults()
	if cfg.Port == "" {
		return nil, errors.New("serial port name is required")
	}

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}
	return p, nil
}

// ListPorts returns the serial devices present on the host.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
