package codec

import "testing"

// TestFcs16Good checks the well known property of CRC-16/CCITT: folding the
// (inverted) checksum of a message back into itself always settles on the
// same residue, regardless of message content.
func TestFcs16Good(t *testing.T) {
	var golden = [][]byte{
		{0x00},
		{0xff, 0xff},
		{0x03, 0xcf, 0x02},
		{AllStationAddr, uFrameSABM},
	}

	for _, msg := range golden {
		fcs := uint16(fcsInit)
		for _, b := range msg {
			fcs = fcs16(fcs, b)
		}
		fcs ^= fcsInvert

		check := uint16(fcsInit)
		for _, b := range msg {
			check = fcs16(check, b)
		}
		check = fcs16(check, byte(fcs))
		check = fcs16(check, byte(fcs>>8))

		if check != fcsGood {
			t.Errorf("message %#v: residue %#04x, want %#04x", msg, check, fcsGood)
		}
	}
}
