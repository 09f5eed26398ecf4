package hci

import (
	"os"

	"github.com/currantlabs/bredr/fiber"
	"github.com/currantlabs/bredr/linux/hci/evt"
	"github.com/currantlabs/bredr/wire"
)

// Device is a remote BR/EDR device: its ACL link, flow control credits and
// L2CAP signaling state.
type Device struct {
	a    *Adapter
	addr Addr

	handle     uint16
	connStatus uint8
	accepting  int

	authSeq    int
	authStatus uint8
	encSeq     int
	encStatus  uint8

	totalSlots   int
	fullSlots    int
	slotsChanged *fiber.Condition

	nextCID   uint16
	nextIdent uint8
	channels  map[uint16]*Channel
	pending   map[uint8]*sigWaiter
	acceptors map[uint16]*acceptor
	replies   [][]byte
	replying  bool
	frag      []byte

	// Connected is signaled by every connection complete event.
	Connected *fiber.Condition
	// Authenticated is signaled by every authentication complete event.
	Authenticated *fiber.Condition
	// Encrypted is signaled by every encryption change event.
	Encrypted *fiber.Condition
	// Disconnected is signaled when the ACL link goes down.
	Disconnected *fiber.Condition
}

func newDevice(a *Adapter, addr Addr) *Device {
	return &Device{
		a:    a,
		addr: addr,

		accepting: -1,

		slotsChanged: fiber.NewCondition(a.s),

		nextCID:   cidDynamicStart,
		nextIdent: 1,
		channels:  make(map[uint16]*Channel),
		pending:   make(map[uint8]*sigWaiter),
		acceptors: make(map[uint16]*acceptor),

		Connected:     fiber.NewCondition(a.s),
		Authenticated: fiber.NewCondition(a.s),
		Encrypted:     fiber.NewCondition(a.s),
		Disconnected:  fiber.NewCondition(a.s),
	}
}

// Addr returns the remote address.
func (d *Device) Addr() Addr { return d.addr }

// Handle returns the connection handle, or 0 without an ACL link.
func (d *Device) Handle() uint16 { return d.handle }

// Close stops tracking the device. Events for its address are dropped
// afterwards.
func (d *Device) Close() {
	d.a.detach(d)
	if d.a.devices[d.addr] == d {
		delete(d.a.devices, d.addr)
	}
}

// Connect creates an ACL link [Vol 2, Part E, 7.1.5]. It returns once the
// controller has accepted the command; use WaitConnected for the link.
func (d *Device) Connect(packetType uint16, pageScanRepMode uint8, clockOffset uint16, role uint8) error {
	d.connStatus = 0
	return d.a.run(ogfLinkCtl, 0x0005, func(c *Command) {
		c.Write(d.addr[:])
		c.WriteU16(packetType)
		c.WriteU8(pageScanRepMode)
		c.WriteU8(0x00)
		c.WriteU16(clockOffset)
		c.WriteU8(role)
	})
}

// WaitConnected parks until the ACL link is up. A failed connection complete
// event is returned as a CommandError.
func (d *Device) WaitConnected() error {
	for d.handle == 0 {
		if d.connStatus != 0 {
			s := d.connStatus
			d.connStatus = 0
			return &CommandError{Opcode: Opcode(ogfLinkCtl, 0x0005), Status: s}
		}
		if d.a.err != nil {
			return ErrClosed
		}
		d.Connected.Wait()
	}
	return nil
}

// Accept makes the device accept the next incoming connection request in
// the given role. Without it, requests are rejected.
func (d *Device) Accept(role uint8) {
	d.accepting = int(role)
}

// Authenticate requests authentication of the link and parks until it
// completes.
func (d *Device) Authenticate() error {
	if d.handle == 0 {
		return ErrNotConnected
	}
	seq := d.authSeq
	err := d.a.run(ogfLinkCtl, 0x0011, func(c *Command) { c.WriteU16(d.handle) })
	if err != nil {
		return err
	}
	for d.authSeq == seq && d.handle != 0 {
		d.Authenticated.Wait()
	}
	if d.authSeq == seq {
		return ErrNotConnected
	}
	if d.authStatus != 0 {
		return &CommandError{Opcode: Opcode(ogfLinkCtl, 0x0011), Status: d.authStatus}
	}
	return nil
}

// Encrypt turns link encryption on or off and parks until the change is
// reported.
func (d *Device) Encrypt(mode uint8) error {
	if d.handle == 0 {
		return ErrNotConnected
	}
	seq := d.encSeq
	err := d.a.run(ogfLinkCtl, 0x0013, func(c *Command) {
		c.WriteU16(d.handle)
		c.WriteU8(mode)
	})
	if err != nil {
		return err
	}
	for d.encSeq == seq && d.handle != 0 {
		d.Encrypted.Wait()
	}
	if d.encSeq == seq {
		return ErrNotConnected
	}
	if d.encStatus != 0 {
		return &CommandError{Opcode: Opcode(ogfLinkCtl, 0x0013), Status: d.encStatus}
	}
	return nil
}

// Disconnect terminates the ACL link.
func (d *Device) Disconnect(reason uint8) error {
	if d.handle == 0 {
		return ErrNotConnected
	}
	return d.a.run(ogfLinkCtl, 0x0006, func(c *Command) {
		c.WriteU16(d.handle)
		c.WriteU8(reason)
	})
}

// QoSSetup sets the quality of service of the link [Vol 2, Part E, 7.2.6].
func (d *Device) QoSSetup(flags, serviceType uint8, tokenRate, peakBandwidth, latency, delayVariation uint32) error {
	if d.handle == 0 {
		return ErrNotConnected
	}
	return d.a.run(ogfLinkPolicy, 0x0007, func(c *Command) {
		c.WriteU16(d.handle)
		c.WriteU8(flags)
		c.WriteU8(serviceType)
		c.WriteU32(tokenRate)
		c.WriteU32(peakBandwidth)
		c.WriteU32(latency)
		c.WriteU32(delayVariation)
	})
}

// acquireSlot parks until the controller has room for one more ACL packet
// and takes it.
func (d *Device) acquireSlot() error {
	for d.fullSlots >= d.totalSlots && d.handle != 0 {
		d.slotsChanged.Wait()
	}
	if d.handle == 0 {
		return ErrNotConnected
	}
	d.fullSlots++
	d.slotsChanged.Notify()
	return nil
}

func (d *Device) completed(n int) {
	d.fullSlots -= n
	if d.fullSlots < 0 {
		d.fullSlots = 0
	}
	d.slotsChanged.Notify()
}

// linkDown drops every piece of state bound to the ACL link.
func (d *Device) linkDown(err error) {
	d.a.detach(d)
	d.handle = 0
	d.fullSlots = 0
	d.frag = nil
	d.replies = nil
	for cid, ch := range d.channels {
		if ch.status == WaitConnect {
			continue
		}
		delete(d.channels, cid)
		ch.closed()
	}
	for _, w := range d.pending {
		w.push(sigResponse{err: err})
	}
	d.slotsChanged.Notify()
	d.Authenticated.Notify()
	d.Encrypted.Notify()
	d.Connected.Notify()
	d.Disconnected.Notify()
}

func (d *Device) handleEvent(code evt.Code, b wire.Block) {
	switch code {
	case evt.ConnectionCompleteCode:
		e := evt.ConnectionComplete(b)
		if e.Status() != 0 {
			logger.Info("connection failed", "addr", d.addr, "status", e.Status())
			d.connStatus = e.Status()
			d.Connected.Notify()
			return
		}
		if d.handle != 0 {
			d.a.detach(d)
		}
		d.handle = e.ConnectionHandle()
		d.connStatus = 0
		d.fullSlots = 0
		if d.totalSlots == 0 {
			d.totalSlots = 1
		}
		d.a.attach(d)
		logger.Info("connected", "addr", d.addr, "handle", d.handle)
		d.Connected.Notify()

	case evt.ConnectionRequestCode:
		d.a.s.Create("connection-request", func() {
			if err := d.answerConnectionRequest(); err != nil {
				logger.Error("can't answer connection request", "addr", d.addr, "err", err)
			}
		})

	case evt.DisconnectionCompleteCode:
		e := evt.DisconnectionComplete(b)
		if e.Status() != 0 {
			return
		}
		logger.Info("disconnected", "addr", d.addr, "handle", d.handle, "reason", e.Reason())
		d.linkDown(ErrNotConnected)

	case evt.AuthenticationCompleteCode:
		d.authStatus = evt.AuthenticationComplete(b).Status()
		d.authSeq++
		d.Authenticated.Notify()

	case evt.EncryptionChangeCode:
		d.encStatus = evt.EncryptionChange(b).Status()
		d.encSeq++
		d.Encrypted.Notify()

	case evt.MaxSlotsChangeCode:
		d.totalSlots = int(evt.MaxSlotsChange(b).LMPMaxSlots())
		d.slotsChanged.Notify()

	case evt.LinkKeyRequestCode:
		d.a.s.Create("link-key-request", func() {
			if err := d.answerLinkKeyRequest(); err != nil {
				logger.Error("can't answer link key request", "addr", d.addr, "err", err)
			}
		})

	case evt.LinkKeyNotificationCode:
		e := evt.LinkKeyNotification(b)
		if err := d.a.keys.Put(d.addr, e.LinkKey()); err != nil {
			logger.Error("can't store link key", "addr", d.addr, "err", err)
		}

	case evt.IOCapabilityRequestCode:
		d.a.s.Create("io-capability-request", func() {
			if err := d.answerIOCapabilityRequest(); err != nil {
				logger.Error("can't answer io capability request", "addr", d.addr, "err", err)
			}
		})

	case evt.UserConfirmationRequestCode:
		d.a.s.Create("user-confirm-request", func() {
			if err := d.answerUserConfirmationRequest(); err != nil {
				logger.Error("can't answer user confirmation request", "addr", d.addr, "err", err)
			}
		})

	default:
		logger.Debug("event ignored", "addr", d.addr, "code", code)
	}
}

func (d *Device) answerConnectionRequest() error {
	if d.accepting < 0 {
		return d.a.run(ogfLinkCtl, 0x000A, func(c *Command) {
			c.Write(d.addr[:])
			c.WriteU8(0x13)
		})
	}
	return d.a.run(ogfLinkCtl, 0x0009, func(c *Command) {
		c.Write(d.addr[:])
		c.WriteU8(uint8(d.accepting))
	})
}

func (d *Device) answerLinkKeyRequest() error {
	key, err := d.a.keys.Get(d.addr)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("can't load link key", "addr", d.addr, "err", err)
		}
		c := NewCommand(d.a, ogfLinkCtl, 0x000C)
		c.Write(d.addr[:])
		return c.Send()
	}
	c := NewCommand(d.a, ogfLinkCtl, 0x000B)
	c.Write(d.addr[:])
	c.Write(key)
	return c.Send()
}

func (d *Device) answerIOCapabilityRequest() error {
	if !d.a.autoAccept {
		return d.a.run(ogfLinkCtl, 0x0034, func(c *Command) {
			c.Write(d.addr[:])
			c.WriteU8(0x18)
		})
	}
	return d.a.run(ogfLinkCtl, 0x002B, func(c *Command) {
		c.Write(d.addr[:])
		c.WriteU8(0x03) // NoInputNoOutput
		c.WriteU8(0x00)
		c.WriteU8(0x00)
	})
}

func (d *Device) answerUserConfirmationRequest() error {
	ocf := uint16(0x002C)
	if !d.a.autoAccept {
		ocf = 0x002D
	}
	return d.a.run(ogfLinkCtl, ocf, func(c *Command) { c.Write(d.addr[:]) })
}
