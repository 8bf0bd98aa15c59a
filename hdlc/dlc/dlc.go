// Package dlc implements the sliding-window data link control layer on top
// of the byte-stuffed frame codec in hdlc/codec: connection establishment,
// acknowledged data transfer with retransmission, out-of-order detection
// with negative acknowledgement, and idle keep-alives.
package dlc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mydefence/mdif/hdlc/codec"
)

// ErrNotConnected is returned by Send and SendUnacknowledged while the link
// has not yet completed its reset handshake.
var ErrNotConnected = errors.New("dlc: not connected")

// ErrFrameTooLong is returned by Send and SendUnacknowledged when the
// supplied frame exceeds Config.MaxFrameLen.
var ErrFrameTooLong = errors.New("dlc: frame too long")

// state orders the stages of the reset handshake so they can be compared
// with "<", exactly like the C state machine's enum.
type state int

const (
	stateRstRequired state = iota
	stateRstCompleteWait
	stateRstComplete
	stateActive
)

// ResetCause explains why a link reset occurred.
type ResetCause int

const (
	CauseApplicationFree ResetCause = iota
	CauseLinkLost
	CauseTimeoutKeepAlive
	CauseTimeoutRetransmit
	CausePeerInitiated
)

func (c ResetCause) String() string {
	switch c {
	case CauseApplicationFree:
		return "application free"
	case CauseLinkLost:
		return "link lost"
	case CauseTimeoutKeepAlive:
		return "keep-alive timeout"
	case CauseTimeoutRetransmit:
		return "retrans timeout"
	case CausePeerInitiated:
		return "peer initiated"
	default:
		return "unknown"
	}
}

// Transport delivers encoded frames to the far end. Write is called with
// the Controller's internal mutex held, so it must not block or call back
// into the Controller; a real implementation queues onto a non-blocking
// sink (a serial port's write buffer, a socket's send queue).
type Transport interface {
	Write(p []byte) (int, error)
}

// Timer arms and disarms the periodic callback into Controller.OnTimeout.
// Start rearms the timer from now regardless of whether it was already
// running.
type Timer interface {
	Start()
	Stop()
}

// Callbacks are invoked by a Controller, always with its internal mutex
// released. Any of them may be left nil.
type Callbacks struct {
	// OnRecv delivers the payload of a received DATA or UI frame, in
	// order (UI frames may overtake queued DATA frames).
	OnRecv func(payload []byte)
	// OnFrameSent fires once per frame passed to Send, after it has
	// either been acknowledged or dropped by a reset. It is never called
	// for internally generated keep-alive frames.
	OnFrameSent func(frame []byte)
	// OnReset fires when the link resets, before any queued frames are
	// reported via OnFrameSent.
	OnReset func(cause ResetCause)
	// OnConnected fires once the reset handshake completes, either
	// because our SABM was acknowledged or a peer SABM was accepted.
	OnConnected func()
}

// Config tunes a Controller. The default is applied for each unspecified
// value.
type Config struct {
	// Window is the maximum number of unacknowledged data frames
	// outstanding at once. Must be in [1, 7]; default 2.
	Window int
	// MaxFrameLen bounds the payload size of a single frame. Default
	// codec.DefaultMaxFrameLen.
	MaxFrameLen int
	// QueueCapacity bounds how many frames Send may have queued (sent or
	// merely waiting for a window slot) before it reports the queue
	// full. Default 32.
	QueueCapacity int
	// RetransmitCount is the number of consecutive timer ticks with frames
	// outstanding after which the link is reset: the first
	// RetransmitCount-1 ticks each resend the oldest outstanding frame,
	// and the last resets instead. Default 20.
	RetransmitCount int
	// KeepAliveCount is the number of idle timer ticks before a
	// zero-length keep-alive DATA frame is sent. Default 30.
	KeepAliveCount int
	// Logger receives per-frame tracing at Debug and lifecycle events
	// (reset, connect) at Warn/Info. Defaults to a logger that discards
	// everything, so embedding applications pay nothing unless they opt
	// in by supplying their own.
	Logger *log.Logger
}

// validate applies defaults and rejects out-of-range values. Unlike the
// panic-on-bad-literal convention this is adapted from, it returns an error:
// a Config here is typically built from a parsed CLI flag or YAML file,
// where bad input must be reported to the caller rather than crash the
// program.
func (c *Config) validate() error {
	switch {
	case c.Window == 0:
		c.Window = 2
	case c.Window < 1 || c.Window > 7:
		return fmt.Errorf("dlc: Window %d not in [1, 7]", c.Window)
	}
	if c.MaxFrameLen == 0 {
		c.MaxFrameLen = codec.DefaultMaxFrameLen
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 32
	}
	if c.RetransmitCount == 0 {
		c.RetransmitCount = 20
	}
	if c.KeepAliveCount == 0 {
		c.KeepAliveCount = 30
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
	return nil
}

// Controller is one end of an HDLC data link. A zero Controller is not
// usable; construct one with New. A Controller is safe for concurrent use.
type Controller struct {
	cfg       Config
	transport Transport
	timer     Timer
	cb        Callbacks
	log       *log.Logger

	mu      sync.Mutex
	decoder *codec.Decoder
	queue   *txQueue
	stats   Stats

	state             state
	closed            bool // set by Close; once true, every entry point is a no-op
	txSeqNo           uint8
	expectedRxSeqNo   uint8
	ackPending        bool
	retransmitAttempt int
	retransmitOnAck   bool
	keepAliveCounter  int
	outstandingCount  int // frames at the front of queue already transmitted

	scratch []byte // reusable frame encoding buffer, used only while mu is held
}

// New returns a Controller that immediately begins the reset handshake by
// sending a SABM frame.
func New(cfg Config, transport Transport, timer Timer, cb Callbacks) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:       cfg,
		transport: transport,
		timer:     timer,
		cb:        cb,
		log:       cfg.Logger,
		scratch:   make([]byte, codec.MaxEncodedLen(cfg.MaxFrameLen)),
	}

	c.mu.Lock()
	c.resetLocked()
	c.sendSABMLocked()
	c.mu.Unlock()
	return c, nil
}

// Close tears the link down, reporting every queued frame via
// Callbacks.OnFrameSent, and stops the timer. The Controller must not be
// used afterwards. Close is idempotent and safe to call concurrently with
// any in-flight OnRx/OnTimeout call: once closed is set, every entry point
// observes it and does nothing, so a timer tick racing Close can never
// resurrect the link by re-arming the timer or sending a SABM.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.log.Warn("link closed", "dropped", c.queue.Len())
	dropped := c.drainQueueLocked()
	c.state = stateRstRequired
	c.stats.Reset++
	// Stop, not resetLocked's Start: the link is not coming back, so the
	// timer must never fire again, racing tick or not.
	c.timer.Stop()

	cb := c.cb
	c.mu.Unlock()

	if cb.OnReset != nil {
		cb.OnReset(CauseApplicationFree)
	}
	fireFrameSent(cb, dropped)
}

// Stats returns a snapshot of the link's running counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Controller) resetLocked() {
	c.decoder = codec.NewDecoder(c.cfg.MaxFrameLen)
	c.queue = newTxQueue(c.cfg.QueueCapacity)
	c.state = stateRstRequired
	c.txSeqNo = 0
	c.expectedRxSeqNo = 0
	c.ackPending = false
	c.retransmitAttempt = 0
	c.retransmitOnAck = false
	c.keepAliveCounter = 0
	c.timer.Start()
}

// ---- frame transmission ----

func (c *Controller) sendCtrlFrameLocked(kind codec.Kind) {
	n, err := codec.Encode(c.scratch, codec.Control{Kind: kind, RecvSeqNo: c.expectedRxSeqNo}, nil)
	if err != nil {
		panic(err) // only ErrUnsupportedKind/ErrInvalidInput, both programmer errors
	}
	if _, err := c.transport.Write(c.scratch[:n]); err != nil {
		c.stats.TxErr++
	}
}

func (c *Controller) sendAckLocked() {
	c.stats.TxAck++
	c.sendCtrlFrameLocked(codec.KindAck)
	c.ackPending = false
}

func (c *Controller) sendNackLocked() {
	c.stats.TxNack++
	c.sendCtrlFrameLocked(codec.KindNack)
	c.ackPending = false
}

func (c *Controller) sendSABMLocked() {
	c.log.Debug("tx sabm")
	c.sendCtrlFrameLocked(codec.KindSABM)
	c.timer.Start()
}

func (c *Controller) sendUALocked() {
	c.log.Debug("tx ua")
	c.sendCtrlFrameLocked(codec.KindUA)
}

// txDataFrameLocked transmits e, assigning it a sequence number the first
// time it is sent.
func (c *Controller) txDataFrameLocked(e *txEntry) {
	ctrl := codec.Control{Kind: codec.KindData, RecvSeqNo: c.expectedRxSeqNo}
	if e.seqNo == -1 {
		c.stats.Tx++
		e.seqNo = int(c.txSeqNo)
		ctrl.SendSeqNo = c.txSeqNo
		c.txSeqNo = (c.txSeqNo + 1) & 7
		c.retransmitAttempt = 0
		c.log.Debug("tx data frame", "seq", ctrl.SendSeqNo, "len", len(e.frame))
	} else {
		c.stats.TxRetrans++
		ctrl.SendSeqNo = uint8(e.seqNo)
		c.log.Debug("retransmit data frame", "seq", ctrl.SendSeqNo, "attempt", c.retransmitAttempt)
	}

	n, err := codec.Encode(c.scratch, ctrl, e.frame)
	if err != nil {
		panic(err)
	}
	c.ackPending = false
	if _, err := c.transport.Write(c.scratch[:n]); err != nil {
		c.stats.TxErr++
	}
}

// insertFrameLocked appends e to the queue and, if the send window allows
// it, transmits it immediately. The first c.outstandingCount entries of the
// queue, in FIFO order, are always exactly the ones already transmitted.
func (c *Controller) insertFrameLocked(e txEntry) bool {
	if !c.queue.Push(e) {
		return false
	}
	if !c.retransmitOnAck && c.outstandingCount < c.cfg.Window {
		idx := c.outstandingCount
		c.outstandingCount++
		c.txDataFrameLocked(c.queue.At(idx))
		if c.outstandingCount == 1 {
			c.timer.Start()
		}
	}
	return true
}

// ---- public send API ----

// Send queues frame for reliable, in-order delivery. It returns once the
// frame is queued, not once it is delivered; completion is reported via
// Callbacks.OnFrameSent. The byte slice must not be modified until then.
func (c *Controller) Send(frame []byte) error {
	if len(frame) > c.cfg.MaxFrameLen {
		return ErrFrameTooLong
	}

	c.mu.Lock()
	if c.closed || c.state < stateRstComplete {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.state = stateActive
	if !c.insertFrameLocked(txEntry{frame: frame, seqNo: -1}) {
		c.mu.Unlock()
		return errQueueFull
	}
	c.mu.Unlock()
	return nil
}

// SendUnacknowledged transmits frame immediately as a UI frame with no
// retransmission or delivery confirmation; it may be reordered relative to
// frames queued with Send.
func (c *Controller) SendUnacknowledged(frame []byte) error {
	if len(frame) > c.cfg.MaxFrameLen {
		return ErrFrameTooLong
	}

	c.mu.Lock()
	if c.closed || c.state < stateRstComplete {
		c.mu.Unlock()
		return ErrNotConnected
	}
	// Encoded and written with the mutex held, like every other
	// transmission: Transport.Write is documented as only ever being
	// called under lock, so two frames can never interleave their bytes
	// on the wire.
	n, err := codec.Encode(c.scratch, codec.Control{Kind: codec.KindUI}, frame)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.stats.UITx++
	c.log.Debug("tx ui frame", "len", len(frame))
	_, err = c.transport.Write(c.scratch[:n])
	c.mu.Unlock()
	return err
}

var errQueueFull = errors.New("dlc: send queue full")
