package codec

import "errors"

// ErrInvalidInput is returned by Encode when the arguments cannot form a
// well-defined frame: a nil destination, or one shorter than
// MaxEncodedLen(len(payload)).
var ErrInvalidInput = errors.New("codec: invalid input")

// ErrUnsupportedKind is returned by Encode when asked to frame a Kind that
// has no wire representation, i.e. KindUnsupported.
var ErrUnsupportedKind = errors.New("codec: unsupported frame kind")

// Flag delimits frames on the wire. Esc escapes Flag and itself when they
// occur inside the address, control or payload fields.
const (
	Flag byte = 0x7e
	Esc  byte = 0x7d
)

// AllStationAddr is the broadcast HDLC address used for every frame; the
// link layer built on this codec has no notion of station addressing.
const AllStationAddr byte = 0xff

// Kind identifies the role of a frame, decoded from its control byte.
type Kind uint8

const (
	KindUnsupported Kind = iota
	KindData
	KindUI
	KindSABM
	KindUA
	KindAck
	KindNack
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindUI:
		return "UI"
	case KindSABM:
		return "SABM"
	case KindUA:
		return "UA"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	default:
		return "UNSUPPORTED"
	}
}

// Control field bit positions, mirroring the HDLC control octet layout.
const (
	bitSOrUFrame  = 0
	bitSendSeqNo  = 1
	bitSFrameType = 2
	bitPoll       = 4
	bitRecvSeqNo  = 5
)

// sFrameTypeReject is the supervisory-frame type code for REJ (our NACK).
const sFrameTypeReject = 2

const (
	sFrameMask = 0x0f
	sFrameRR   = 0x11 // receive-ready, i.e. ACK
	sFrameREJ  = 0x19 // reject, i.e. NACK

	uFrameMask = 0xef // ignore the poll/final bit
	uFrameUI   = 0x13
	uFrameSABM = 0x3f
	uFrameUA   = 0x73
)

// Control describes the parsed contents of a frame's control field.
type Control struct {
	Kind Kind
	// SendSeqNo is N(S), meaningful only for Kind == KindData.
	SendSeqNo uint8
	// RecvSeqNo is N(R), meaningful for KindData, KindAck and KindNack.
	RecvSeqNo uint8
}

// parseControl decodes a received control octet into a Control value,
// following the bit layout used by yahdlc_get_control_type.
func parseControl(b byte) Control {
	if b&(1<<bitSOrUFrame) != 0 {
		switch {
		case b&sFrameMask == sFrameRR&sFrameMask:
			return Control{Kind: KindAck, RecvSeqNo: (b >> bitRecvSeqNo) & 7}
		case b&sFrameMask == sFrameREJ&sFrameMask:
			return Control{Kind: KindNack, RecvSeqNo: (b >> bitRecvSeqNo) & 7}
		case b&uFrameMask == uFrameUI&uFrameMask:
			return Control{Kind: KindUI}
		case b&uFrameMask == uFrameSABM&uFrameMask:
			return Control{Kind: KindSABM}
		case b&uFrameMask == uFrameUA&uFrameMask:
			return Control{Kind: KindUA}
		default:
			return Control{Kind: KindUnsupported}
		}
	}
	return Control{
		Kind:      KindData,
		RecvSeqNo: (b >> bitRecvSeqNo) & 7,
		SendSeqNo: (b >> bitSendSeqNo) & 7,
	}
}

// controlByte re-assembles the control octet to transmit for ctrl.
func controlByte(ctrl Control) (byte, error) {
	var value byte
	switch ctrl.Kind {
	case KindData:
		value |= ctrl.SendSeqNo & 7 << bitSendSeqNo
		value |= ctrl.RecvSeqNo & 7 << bitRecvSeqNo
		value |= 1 << bitPoll
	case KindUI:
		value = uFrameUI
	case KindSABM:
		value = uFrameSABM
	case KindUA:
		value = uFrameUA
	case KindAck:
		value |= ctrl.RecvSeqNo & 7 << bitRecvSeqNo
		value |= 1 << bitSOrUFrame
	case KindNack:
		value |= ctrl.RecvSeqNo & 7 << bitRecvSeqNo
		value |= sFrameTypeReject << bitSFrameType
		value |= 1 << bitSOrUFrame
	default:
		return 0, ErrUnsupportedKind
	}
	return value, nil
}

// MaxEncodedLen bounds the number of bytes Encode may write for a payload of
// the given length: opening and closing flag, address and control each
// escaped in the worst case, the payload fully escaped, and the two
// (escaped) FCS bytes.
func MaxEncodedLen(payloadLen int) int {
	return 6 + 2*payloadLen + 2*2
}

func appendEscaped(dst []byte, n int, b byte) int {
	if b == Flag || b == Esc {
		dst[n] = Esc
		n++
		b ^= 0x20
	}
	dst[n] = b
	return n + 1
}

// Encode writes the framed representation of ctrl and payload into dst,
// returning the number of bytes written. Only KindData and KindUI frames
// carry payload; it is ignored for every other kind. Encode fails with
// ErrInvalidInput when dst is nil or too small, and with ErrUnsupportedKind
// when ctrl names a kind with no wire representation.
func Encode(dst []byte, ctrl Control, payload []byte) (int, error) {
	if dst == nil {
		return 0, ErrInvalidInput
	}
	cb, err := controlByte(ctrl)
	if err != nil {
		return 0, err
	}
	if need := MaxEncodedLen(len(payload)); len(dst) < need {
		return 0, ErrInvalidInput
	}

	n := 0
	fcs := uint16(fcsInit)

	dst[n] = Flag
	n++

	fcs = fcs16(fcs, AllStationAddr)
	n = appendEscaped(dst, n, AllStationAddr)

	fcs = fcs16(fcs, cb)
	n = appendEscaped(dst, n, cb)

	if ctrl.Kind == KindData || ctrl.Kind == KindUI {
		for _, b := range payload {
			fcs = fcs16(fcs, b)
			n = appendEscaped(dst, n, b)
		}
	}

	fcs ^= fcsInvert
	n = appendEscaped(dst, n, byte(fcs))
	n = appendEscaped(dst, n, byte(fcs>>8))

	dst[n] = Flag
	n++

	return n, nil
}
