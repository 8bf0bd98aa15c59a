// Package transport wires an hdlc/dlc.Controller to a physical link: a
// serial port for the wire itself, and a restartable one-shot timer for the
// Controller's timeout ticks.
package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tarm/serial"
)

// Config describes the serial port a Link should open.
type Config struct {
	// Device is the port path, e.g. "/dev/ttyUSB0" or "COM3".
	Device string
	// Baud is the line rate. Default 115200.
	Baud int
	// ReadTimeout bounds how long a single Read blocks waiting for at
	// least one byte. Default 100ms.
	ReadTimeout time.Duration
}

func (c *Config) check() *Config {
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	return c
}

// OpenSerial opens cfg.Device and returns a ready-to-Serve Link.
func OpenSerial(cfg Config, logger *log.Logger) (*Link, error) {
	cfg.check()
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Device, err)
	}
	return NewLink(port, logger), nil
}

// NewLink wraps an already-open duplex stream (a serial port, but any
// io.ReadWriteCloser works, which is also what makes the type easy to
// exercise in tests without a real port).
func NewLink(rwc io.ReadWriteCloser, logger *log.Logger) *Link {
	if logger == nil {
		logger = log.Default()
	}
	return &Link{rwc: rwc, log: logger}
}

// Link implements dlc.Transport by writing frames straight to the
// underlying stream, and drives a Controller's receive path by reading from
// it in a loop. Write and Serve may run concurrently; the stream itself
// must tolerate that (true of both os files and net.Conn).
type Link struct {
	rwc io.ReadWriteCloser
	log *log.Logger
}

// Write implements dlc.Transport.
func (l *Link) Write(p []byte) (int, error) {
	n, err := l.rwc.Write(p)
	if err != nil {
		l.log.Error("serial write failed", "err", err)
	}
	return n, err
}

// Close closes the underlying stream, unblocking a concurrent Serve.
func (l *Link) Close() error {
	return l.rwc.Close()
}

// receiver is the subset of dlc.Controller that Serve needs, so tests can
// supply a stand-in without constructing a full Controller.
type receiver interface {
	OnRx(buf []byte)
}

// Serve reads from the stream until it errors or returns io.EOF, feeding
// every chunk read to ctrl.OnRx. It returns the error that ended the loop,
// or nil if the stream was closed cleanly. Serve is meant to run in its own
// goroutine for the lifetime of the link.
func (l *Link) Serve(ctrl receiver) error {
	buf := make([]byte, 4096)
	for {
		n, err := l.rwc.Read(buf)
		if n > 0 {
			ctrl.OnRx(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
