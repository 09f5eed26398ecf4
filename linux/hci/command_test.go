package hci

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currantlabs/bredr/wire"
)

func TestCommandRoundTrip(t *testing.T) {
	h := newHarness(t)

	var status wire.Block
	done := h.spawn(func() error {
		b, err := NewCommand(h.a, 0x03, 0x0003).Run()
		status = b
		return err
	})
	assert.Equal(t, []byte{0x01, 0x03, 0x0C, 0x00}, h.expectTx())
	h.pending(done)

	h.feed(cmdComplete(0x0C03, 0x00))
	require.NoError(t, h.wait(done))
	assert.Equal(t, wire.Block{0x00}, status)

	var outstanding int
	h.do(func() { outstanding = len(h.a.commands) })
	assert.Zero(t, outstanding)
}

func TestCommandStatusFailure(t *testing.T) {
	h := newHarness(t)

	done := h.spawn(h.a.Reset)
	h.expectTx()
	h.feed(cmdComplete(0x0C03, 0x0C))

	err := h.wait(done)
	var ce *CommandError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, uint16(0x0C03), ce.Opcode)
	assert.Equal(t, uint8(0x0C), ce.Status)
	assert.Contains(t, ce.Error(), "command disallowed")
}

func TestCommandStatusEvent(t *testing.T) {
	h := newHarness(t)

	done := h.spawn(func() error { return h.a.StartInquiry(GIAC, 0x08, 0x00) })
	assert.Equal(t, []byte{0x01, 0x01, 0x04, 0x05, 0x33, 0x8B, 0x9E, 0x08, 0x00}, h.expectTx())
	h.feed(cmdStatus(0x0401, 0x00))
	require.NoError(t, h.wait(done))

	done = h.spawn(h.a.StopInquiry)
	h.expectTx()
	h.feed(cmdStatus(0x0402, 0x01))
	var ce *CommandError
	require.True(t, errors.As(h.wait(done), &ce))
	assert.Equal(t, uint8(0x01), ce.Status)
}

func TestCommandParameters(t *testing.T) {
	h := newHarness(t)

	done := h.spawn(func() error { return h.a.SetLocalName("gamepad") })
	p := h.expectTx()
	require.Len(t, p, 4+248)
	assert.Equal(t, []byte{0x01, 0x13, 0x0C, 0xF8}, p[:4])
	assert.Equal(t, []byte("gamepad\x00"), p[4:12])
	h.feed(cmdComplete(0x0C13, 0x00))
	require.NoError(t, h.wait(done))

	done = h.spawn(func() error { return h.a.SetDeviceClass(0x02, 0x0508) })
	assert.Equal(t, []byte{0x01, 0x24, 0x0C, 0x03, 0x08, 0x08, 0x05}, h.expectTx())
	h.feed(cmdComplete(0x0C24, 0x00))
	require.NoError(t, h.wait(done))

	done = h.spawn(func() error { return h.a.SetPageScanTiming(0x0800, 0x0012) })
	assert.Equal(t, []byte{0x01, 0x1C, 0x0C, 0x04, 0x00, 0x08, 0x12, 0x00}, h.expectTx())
	h.feed(cmdComplete(0x0C1C, 0x00))
	require.NoError(t, h.wait(done))
}

func TestReadLocalAddress(t *testing.T) {
	h := newHarness(t)

	var addr Addr
	done := h.spawn(func() error {
		var err error
		addr, err = h.a.ReadLocalAddress()
		return err
	})
	assert.Equal(t, []byte{0x01, 0x09, 0x10, 0x00}, h.expectTx())
	h.feed(cmdComplete(0x1009, append([]byte{0x00}, testAddr[:]...)...))
	require.NoError(t, h.wait(done))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", addr.String())
}

func TestReadBufferSize(t *testing.T) {
	h := newHarness(t)

	var bs BufferSize
	done := h.spawn(func() error {
		var err error
		bs, err = h.a.ReadBufferSize()
		return err
	})
	h.expectTx()
	h.feed(cmdComplete(0x1005, 0x00, 0xFD, 0x03, 0x40, 0x08, 0x00, 0x01, 0x00))
	require.NoError(t, h.wait(done))
	assert.Equal(t, BufferSize{ACLLen: 0x03FD, SCOLen: 0x40, ACLPackets: 8, SCOPackets: 1}, bs)
}

func TestCommandSingleFlight(t *testing.T) {
	h := newHarness(t)

	first := h.spawn(h.a.Reset)
	assert.Equal(t, []byte{0x01, 0x03, 0x0C, 0x00}, h.expectTx())

	second := h.spawn(h.a.Reset)
	h.expectNoTx()

	h.feed(cmdComplete(0x0C03, 0x00))
	require.NoError(t, h.wait(first))
	assert.Equal(t, []byte{0x01, 0x03, 0x0C, 0x00}, h.expectTx())
	h.pending(second)

	h.feed(cmdComplete(0x0C03, 0x00))
	require.NoError(t, h.wait(second))
}

func TestUnmatchedCompletionIsDropped(t *testing.T) {
	h := newHarness(t)

	h.feed(cmdComplete(0x0C03, 0x00))
	h.feed(cmdComplete(0x0000))
	h.settle()

	done := h.spawn(h.a.Reset)
	h.expectTx()
	h.pending(done)
	h.feed(cmdComplete(0x0C03, 0x00))
	require.NoError(t, h.wait(done))
}

func TestVendorIsSendOnly(t *testing.T) {
	h := newHarness(t)

	done := h.spawn(func() error { return h.a.Vendor(0x0006, []byte{0x01, 0x02}) })
	assert.Equal(t, []byte{0x01, 0x06, 0xFC, 0x02, 0x01, 0x02}, h.expectTx())
	require.NoError(t, h.wait(done))
}

func TestCloseFailsOutstandingCommands(t *testing.T) {
	h := newHarness(t)

	done := h.spawn(h.a.Reset)
	h.expectTx()
	require.NoError(t, h.a.Close())

	err := h.wait(done)
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
	<-h.a.Done()
	assert.Error(t, h.a.Err())

	done = h.spawn(h.a.Reset)
	assert.Equal(t, ErrClosed, h.wait(done))
}
