package codec

// DefaultMaxFrameLen is the payload capacity assumed when no explicit limit
// is configured, matching the ceiling the wire format was designed against.
const DefaultMaxFrameLen = 2000

// Status reports what a call to Decoder.Feed accomplished.
type Status int

const (
	// StatusIncomplete means src ran out before a frame closed; Feed has
	// absorbed every byte into internal state and consumed is always 0.
	StatusIncomplete Status = iota
	// StatusChecksum means a frame closed but was too short or its FCS
	// did not validate, or its payload overflowed the decoder's buffer
	// before it closed; its bytes must be discarded by the caller.
	StatusChecksum
	// StatusOK means a complete, valid frame was decoded.
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusIncomplete:
		return "incomplete"
	case StatusChecksum:
		return "checksum"
	case StatusOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Decoder incrementally reassembles byte-stuffed HDLC frames from a
// possibly fragmented byte stream. A Decoder is not safe for concurrent use,
// but otherwise keeps no resources and needs no explicit close.
type Decoder struct {
	dest []byte // scratch buffer, reused across frames

	fcs           uint16
	startIndex    int
	endIndex      int
	srcIndex      int
	destIndex     int
	controlEscape bool
	control       Control
}

// NewDecoder returns a Decoder that rejects frames whose payload would
// exceed maxFrameLen. A maxFrameLen of 0 selects DefaultMaxFrameLen.
func NewDecoder(maxFrameLen int) *Decoder {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameLen
	}
	d := &Decoder{dest: make([]byte, maxFrameLen+2)}
	d.clear()
	return d
}

func (d *Decoder) clear() {
	d.fcs = fcsInit
	d.startIndex = -1
	d.endIndex = -1
	d.srcIndex = 0
	d.destIndex = 0
	d.controlEscape = false
}

// Reset discards any partially received frame. Callers use this after a
// link reset so that bytes from before and after the reset are never
// spliced into the same frame.
func (d *Decoder) Reset() {
	d.clear()
}

// Feed processes a chunk of received bytes, returning as soon as either one
// frame closes (successfully or not) or src is exhausted mid-frame.
//
// consumed is the number of leading bytes of src that the caller should
// drop before its next Feed call; the closing flag of a frame is never
// counted, since it doubles as the opening flag of whatever follows. On
// StatusIncomplete, consumed is always 0: every byte was absorbed into
// Decoder state and nothing remains to replay.
//
// payload and ctrl are only meaningful when status is StatusOK.
func (d *Decoder) Feed(src []byte) (consumed int, status Status, payload []byte, ctrl Control) {
	i := 0
	for ; i < len(src); i++ {
		if d.startIndex < 0 {
			if src[i] == Flag {
				if i < len(src)-1 && src[i+1] == Flag {
					// Silently discard a doubled flag sequence.
					continue
				}
				d.startIndex = d.srcIndex
			}
		} else if src[i] == Flag {
			if (i < len(src)-1 && src[i+1] == Flag) || d.startIndex+1 == d.srcIndex {
				continue
			}
			d.endIndex = d.srcIndex
			break
		} else if src[i] == Esc {
			d.controlEscape = true
			continue
		} else {
			value := src[i]
			if d.controlEscape {
				d.controlEscape = false
				value ^= 0x20
			}
			d.fcs = fcs16(d.fcs, value)

			switch {
			case d.srcIndex == d.startIndex+2:
				d.control = parseControl(value)
			case d.srcIndex > d.startIndex+2:
				if d.destIndex >= len(d.dest) {
					d.clear()
					return i + 1, StatusChecksum, nil, Control{}
				}
				d.dest[d.destIndex] = value
				d.destIndex++
			}
		}
		d.srcIndex++
	}

	if d.startIndex < 0 || d.endIndex < 0 {
		return 0, StatusIncomplete, nil, Control{}
	}

	if d.endIndex < d.startIndex+4 || d.fcs != fcsGood {
		consumed, status = i, StatusChecksum
		d.clear()
		return consumed, status, nil, Control{}
	}

	n := d.destIndex - 2 // strip the trailing FCS bytes
	if n < 0 {
		n = 0
	}
	payload = append([]byte(nil), d.dest[:n]...)
	ctrl = d.control
	consumed, status = i, StatusOK
	d.clear()
	return consumed, status, payload, ctrl
}
