package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	chunks chan []byte
}

func (f *fakeReceiver) OnRx(buf []byte) {
	cp := append([]byte(nil), buf...)
	f.chunks <- cp
}

func TestLinkServeFeedsReceiver(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	link := NewLink(a, nil)
	recv := &fakeReceiver{chunks: make(chan []byte, 4)}
	done := make(chan error, 1)
	go func() { done <- link.Serve(recv) }()

	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-recv.chunks:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Serve to deliver a chunk")
	}

	b.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the peer closed")
	}
}

func TestLinkWrite(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	link := NewLink(a, nil)
	go link.Write([]byte("frame"))

	buf := make([]byte, 5)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(buf[:n]))
}
