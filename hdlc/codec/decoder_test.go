package codec

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// feedAll drives a Decoder byte-at-a-time, the way a serial transport would
// deliver data, and returns the first completed (or rejected) frame.
func feedAll(t *testing.T, d *Decoder, frame []byte) (Status, []byte, Control) {
	t.Helper()
	for len(frame) > 0 {
		consumed, status, payload, ctrl := d.Feed(frame[:1])
		if status != StatusIncomplete {
			return status, payload, ctrl
		}
		if consumed != 0 {
			t.Fatalf("incomplete status must consume 0 bytes, got %d", consumed)
		}
		frame = frame[1:]
	}
	return StatusIncomplete, nil, Control{}
}

// TestRoundTrip checks every frame kind survives Encode followed by Decode,
// both fed whole and fed one byte at a time.
func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		ctrl    Control
		payload []byte
	}{
		{"sabm", Control{Kind: KindSABM}, nil},
		{"ua", Control{Kind: KindUA}, nil},
		{"ack", Control{Kind: KindAck, RecvSeqNo: 5}, nil},
		{"nack", Control{Kind: KindNack, RecvSeqNo: 2}, nil},
		{"ui", Control{Kind: KindUI}, []byte("hello")},
		{"data", Control{Kind: KindData, SendSeqNo: 3, RecvSeqNo: 1}, []byte{0x7e, 0x7d, 1, 2, 3}},
		{"keep-alive", Control{Kind: KindData, SendSeqNo: 6, RecvSeqNo: 0}, nil},
	}

	for _, c := range cases {
		dst := make([]byte, MaxEncodedLen(len(c.payload)))
		n, err := Encode(dst, c.ctrl, c.payload)
		if err != nil {
			t.Fatalf("%s: encode: %s", c.name, err)
		}
		frame := dst[:n]

		for _, wholeFeed := range []bool{true, false} {
			d := NewDecoder(0)
			var status Status
			var payload []byte
			var ctrl Control
			if wholeFeed {
				_, status, payload, ctrl = d.Feed(frame)
			} else {
				status, payload, ctrl = feedAll(t, d, frame)
			}

			if status != StatusOK {
				t.Fatalf("%s (whole=%v): got status %s", c.name, wholeFeed, status)
			}
			if ctrl.Kind != c.ctrl.Kind {
				t.Errorf("%s (whole=%v): got kind %s, want %s", c.name, wholeFeed, ctrl.Kind, c.ctrl.Kind)
			}
			if c.ctrl.Kind == KindData {
				if ctrl.SendSeqNo != c.ctrl.SendSeqNo || ctrl.RecvSeqNo != c.ctrl.RecvSeqNo {
					t.Errorf("%s: got seq (%d,%d), want (%d,%d)", c.name, ctrl.SendSeqNo, ctrl.RecvSeqNo, c.ctrl.SendSeqNo, c.ctrl.RecvSeqNo)
				}
			}
			if !bytes.Equal(payload, c.payload) {
				t.Errorf("%s (whole=%v): got payload %x, want %x", c.name, wholeFeed, payload, c.payload)
			}
		}
	}
}

// TestBitErrorDiscrimination checks that flipping one bit in any byte between
// the opening and closing flag is always rejected, never silently accepted.
func TestBitErrorDiscrimination(t *testing.T) {
	payload := []byte("the quick brown fox")
	dst := make([]byte, MaxEncodedLen(len(payload)))
	n, err := Encode(dst, Control{Kind: KindUI}, payload)
	if err != nil {
		t.Fatal(err)
	}
	frame := dst[:n]

	for i := 1; i < len(frame)-1; i++ {
		corrupt := append([]byte(nil), frame...)
		corrupt[i] ^= 0x01

		d := NewDecoder(0)
		_, status, _, _ := d.Feed(corrupt)
		if status == StatusOK {
			t.Errorf("bit flip at byte %d went undetected", i)
		}
	}
}

// TestMultiFrameInOneBuffer checks that three frames encoded back to back
// (so a doubled flag separates each pair) all decode, in order, from one
// buffer.
func TestMultiFrameInOneBuffer(t *testing.T) {
	var buf []byte
	want := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range want {
		dst := make([]byte, MaxEncodedLen(len(p)))
		n, err := Encode(dst, Control{Kind: KindUI}, p)
		if err != nil {
			t.Fatal(err)
		}
		buf = append(buf, dst[:n]...)
	}

	d := NewDecoder(0)
	var got [][]byte
	for len(buf) > 0 {
		consumed, status, payload, _ := d.Feed(buf)
		switch status {
		case StatusOK:
			got = append(got, payload)
		case StatusIncomplete:
			buf = nil
			continue
		}
		buf = buf[consumed:]
	}

	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("frame %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// TestDestinationOverflow checks that a payload longer than the configured
// maximum is rejected rather than overrunning the scratch buffer, and that
// the decoder recovers cleanly for the next frame.
func TestDestinationOverflow(t *testing.T) {
	d := NewDecoder(4)
	payload := []byte("this payload is far longer than four bytes")
	dst := make([]byte, MaxEncodedLen(len(payload)))
	n, err := Encode(dst, Control{Kind: KindUI}, payload)
	if err != nil {
		t.Fatal(err)
	}

	consumed, status, _, _ := d.Feed(dst[:n])
	if status != StatusChecksum {
		t.Fatalf("got status %s, want %s", status, StatusChecksum)
	}
	if consumed == 0 {
		t.Fatal("overflow must report a non-zero discard count")
	}

	// The decoder must still be usable afterwards.
	good := []byte("tiny")
	dst2 := make([]byte, MaxEncodedLen(len(good)))
	n2, err := Encode(dst2, Control{Kind: KindUI}, good)
	if err != nil {
		t.Fatal(err)
	}
	_, status2, payload2, _ := d.Feed(dst2[:n2])
	if status2 != StatusOK || !bytes.Equal(payload2, good) {
		t.Fatalf("decoder did not recover: status=%s payload=%q", status2, payload2)
	}
}

// TestRoundTripProperty is a rapid property test: for any UI payload, the
// byte stream produced by Encode always decodes back to the same payload,
// regardless of how the stream is chopped into Feed calls.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(rt, "payload")
		chunk := rapid.IntRange(1, 8).Draw(rt, "chunk")

		dst := make([]byte, MaxEncodedLen(len(payload)))
		n, err := Encode(dst, Control{Kind: KindUI}, payload)
		if err != nil {
			rt.Fatal(err)
		}
		frame := dst[:n]

		d := NewDecoder(0)
		var gotPayload []byte
		var gotOK bool
		for len(frame) > 0 {
			end := chunk
			if end > len(frame) {
				end = len(frame)
			}
			consumed, status, p, _ := d.Feed(frame[:end])
			switch status {
			case StatusOK:
				gotPayload, gotOK = p, true
			case StatusIncomplete:
				frame = frame[end:]
				continue
			}
			frame = frame[consumed:]
		}

		if !gotOK {
			rt.Fatal("frame never completed")
		}
		if !bytes.Equal(gotPayload, payload) {
			rt.Fatalf("got payload %x, want %x", gotPayload, payload)
		}
	})
}
