package hci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withAddr(prefix []byte, addr Addr, suffix ...byte) []byte {
	p := append(append([]byte(nil), prefix...), addr[:]...)
	return append(p, suffix...)
}

func TestDeviceConnect(t *testing.T) {
	h := newHarness(t)

	var d *Device
	h.do(func() { d = h.a.Device(testAddr) })
	done := h.spawn(func() error {
		if err := d.Connect(0xCC18, 0x01, 0x0000, RoleSlave); err != nil {
			return err
		}
		return d.WaitConnected()
	})
	assert.Equal(t,
		withAddr([]byte{0x01, 0x05, 0x04, 0x0D}, testAddr, 0x18, 0xCC, 0x01, 0x00, 0x00, 0x00, 0x01),
		h.expectTx())
	h.feed(cmdStatus(0x0405, 0x00))
	h.pending(done)

	h.feed(connComplete(testAddr, 0x000B, 0x00))
	require.NoError(t, h.wait(done))

	var handle uint16
	var mapped bool
	h.do(func() {
		handle = d.Handle()
		mapped = h.a.conns[0x000B] == d
	})
	assert.Equal(t, uint16(0x000B), handle)
	assert.True(t, mapped)
}

func TestDeviceConnectFailure(t *testing.T) {
	h := newHarness(t)

	var d *Device
	h.do(func() { d = h.a.Device(testAddr) })
	done := h.spawn(d.WaitConnected)
	h.pending(done)
	h.feed(connComplete(testAddr, 0x0000, 0x04))

	var ce *CommandError
	require.True(t, errors.As(h.wait(done), &ce))
	assert.Equal(t, uint8(0x04), ce.Status)
}

func TestDisconnectDropsHandleMapping(t *testing.T) {
	h := newHarness(t)
	other := Addr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	a := h.connect(testAddr, 0x000B, 0)
	h.feed(event(0x05, 0x00, 0x0B, 0x00, 0x13))
	h.eventually(func() bool {
		_, ok := h.a.conns[0x000B]
		return a.Handle() == 0 && !ok
	})

	b := h.connect(other, 0x000B, 0)
	h.feed(event(0x1B, 0x0B, 0x00, 0x05))
	h.eventually(func() bool { return b.totalSlots == 5 })

	var stale bool
	h.do(func() { stale = h.a.conns[0x000B] != b || a.totalSlots == 5 })
	assert.False(t, stale)
}

func TestFlowControl(t *testing.T) {
	h := newHarness(t)
	d := h.connect(testAddr, 0x000B, 0)

	var order []int
	h.do(func() {
		d.totalSlots = 1
		d.fullSlots = 0
	})
	first := h.spawn(func() error {
		err := d.acquireSlot()
		order = append(order, 1)
		return err
	})
	second := h.spawn(func() error {
		err := d.acquireSlot()
		order = append(order, 2)
		return err
	})
	require.NoError(t, h.wait(first))
	h.pending(second)

	h.feed(event(0x13, 0x01, 0x0B, 0x00, 0x01, 0x00))
	require.NoError(t, h.wait(second))

	var full int
	var got []int
	h.do(func() {
		full = d.fullSlots
		got = append(got, order...)
	})
	assert.Equal(t, 1, full)
	assert.Equal(t, []int{1, 2}, got)
}

func TestCompletedPacketsClampAtZero(t *testing.T) {
	h := newHarness(t)
	d := h.connect(testAddr, 0x000B, 0)
	h.do(func() { d.fullSlots = 2 })

	h.feed(event(0x13, 0x02, 0x0B, 0x00, 0x05, 0x00, 0x0C, 0x00, 0x01, 0x00))
	h.eventually(func() bool { return d.fullSlots == 0 })
}

func TestIncomingConnectionRequest(t *testing.T) {
	h := newHarness(t)
	other := Addr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	h.do(func() {
		h.a.Device(testAddr).Accept(RoleSlave)
		h.a.Device(other)
	})

	h.feed(event(0x04, withAddr(nil, testAddr, 0x08, 0x05, 0x00, 0x01)...))
	assert.Equal(t, withAddr([]byte{0x01, 0x09, 0x04, 0x07}, testAddr, RoleSlave), h.expectTx())
	h.feed(cmdStatus(0x0409, 0x00))

	h.feed(event(0x04, withAddr(nil, other, 0x08, 0x05, 0x00, 0x01)...))
	assert.Equal(t, withAddr([]byte{0x01, 0x0A, 0x04, 0x07}, other, 0x13), h.expectTx())
	h.feed(cmdStatus(0x040A, 0x00))

	h.feed(event(0x04, withAddr(nil, Addr{9, 9, 9, 9, 9, 9}, 0x08, 0x05, 0x00, 0x01)...))
	h.expectNoTx()
}

func TestPairingAutoAccept(t *testing.T) {
	h := newHarness(t)
	h.do(func() { h.a.Device(testAddr) })

	h.feed(event(0x31, testAddr[:]...))
	assert.Equal(t, withAddr([]byte{0x01, 0x2B, 0x04, 0x09}, testAddr, 0x03, 0x00, 0x00), h.expectTx())
	h.feed(cmdComplete(0x042B, withAddr([]byte{0x00}, testAddr)...))

	h.feed(event(0x33, withAddr(nil, testAddr, 0x40, 0xE2, 0x01, 0x00)...))
	assert.Equal(t, withAddr([]byte{0x01, 0x2C, 0x04, 0x06}, testAddr), h.expectTx())
	h.feed(cmdComplete(0x042C, withAddr([]byte{0x00}, testAddr)...))
}

func TestPairingDenied(t *testing.T) {
	h := newHarness(t, OptAutoAccept(false))
	h.do(func() { h.a.Device(testAddr) })

	h.feed(event(0x31, testAddr[:]...))
	assert.Equal(t, withAddr([]byte{0x01, 0x34, 0x04, 0x07}, testAddr, 0x18), h.expectTx())
	h.feed(cmdComplete(0x0434, withAddr([]byte{0x00}, testAddr)...))

	h.feed(event(0x33, withAddr(nil, testAddr, 0x40, 0xE2, 0x01, 0x00)...))
	assert.Equal(t, withAddr([]byte{0x01, 0x2D, 0x04, 0x06}, testAddr), h.expectTx())
}

func TestLinkKeys(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, OptLinkKeyDir(dir))
	other := Addr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	h.do(func() {
		h.a.Device(testAddr)
		h.a.Device(other)
	})

	key := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	h.feed(event(0x18, append(withAddr(nil, testAddr), append(key, 0x04)...)...))

	path := filepath.Join(dir, "AA:BB:CC:DD:EE:FF")
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(path)
		return err == nil && len(b) == LinkKeySize
	}, timeout, tick)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, key, b)

	h.feed(event(0x17, testAddr[:]...))
	assert.Equal(t, append(withAddr([]byte{0x01, 0x0B, 0x04, 0x16}, testAddr), key...), h.expectTx())

	h.feed(event(0x17, other[:]...))
	assert.Equal(t, withAddr([]byte{0x01, 0x0C, 0x04, 0x06}, other), h.expectTx())
}

func TestAuthenticateAndEncrypt(t *testing.T) {
	h := newHarness(t)
	d := h.connect(testAddr, 0x000B, 0)

	done := h.spawn(d.Authenticate)
	assert.Equal(t, []byte{0x01, 0x11, 0x04, 0x02, 0x0B, 0x00}, h.expectTx())
	h.feed(cmdStatus(0x0411, 0x00))
	h.pending(done)
	h.feed(event(0x06, 0x00, 0x0B, 0x00))
	require.NoError(t, h.wait(done))

	done = h.spawn(func() error { return d.Encrypt(0x01) })
	assert.Equal(t, []byte{0x01, 0x13, 0x04, 0x03, 0x0B, 0x00, 0x01}, h.expectTx())
	h.feed(cmdStatus(0x0413, 0x00))
	h.feed(event(0x08, 0x05, 0x0B, 0x00, 0x00))
	var ce *CommandError
	require.True(t, errors.As(h.wait(done), &ce))
	assert.Equal(t, uint8(0x05), ce.Status)
}

func TestLinkCommandsNeedConnection(t *testing.T) {
	h := newHarness(t)
	var d *Device
	h.do(func() { d = h.a.Device(testAddr) })

	assert.Equal(t, ErrNotConnected, h.wait(h.spawn(d.Authenticate)))
	assert.Equal(t, ErrNotConnected, h.wait(h.spawn(func() error { return d.Disconnect(0x13) })))
	h.expectNoTx()
}
