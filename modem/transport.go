// Package modem locates cellular modems on the host and opens their
// serial control and data channels.
package modem

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to a
// modem channel.
//
// A Transport is assumed to be already connected and configured. Reads
// must honor SetReadTimeout by returning (0, nil) when the timeout
// expires without data, the contract of go.bug.st/serial ports.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
}

// Dialer opens a Transport to a modem channel.
//
// Dialer abstracts how the connection is created (serial port, the
// inherited stdio pair of a pppd connect script, or a test double) and
// is only needed until a Transport is obtained.
type Dialer interface {
	Dial() (Transport, error)
}

// SerialDialer opens a modem TTY over a raw serial line: 8 data bits,
// no parity, one stop bit, no echo or canonical processing, reads
// returning after a single byte. Timeouts are enforced per read by the
// caller.
type SerialDialer struct {
	PortName string
	BaudRate int
}

func (d SerialDialer) Dial() (Transport, error) {
	baud := d.BaudRate
	if baud == 0 {
		baud = 115200
	}
	port, err := serial.Open(d.PortName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.PortName, err)
	}
	return port, nil
}

// StdioTransport adapts the stdin/stdout pair a link daemon hands its
// connect script: reads come from In, writes go to Out. Both sides of
// the pair are the same data TTY.
type StdioTransport struct {
	In  *os.File
	Out *os.File
}

func (t *StdioTransport) Read(p []byte) (int, error)  { return t.In.Read(p) }
func (t *StdioTransport) Write(p []byte) (int, error) { return t.Out.Write(p) }

func (t *StdioTransport) SetReadTimeout(d time.Duration) error {
	return t.In.SetReadDeadline(time.Now().Add(d))
}

func (t *StdioTransport) Close() error {
	err := t.In.Close()
	if cerr := t.Out.Close(); err == nil {
		err = cerr
	}
	return err
}
