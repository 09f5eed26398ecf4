package hci

import (
	"github.com/pkg/errors"

	"github.com/currantlabs/bredr/fiber"
	"github.com/currantlabs/bredr/wire"
)

// Status is the state of an L2CAP channel [Vol 3, Part A, 6.1.1].
type Status uint8

// Channel states. Only the CLOSED, WAIT_CONNECT(_RSP), CONFIG, OPEN and
// WAIT_DISCONNECT states are ever entered; the rest name AMP states.
const (
	Closed Status = iota
	WaitConnect
	WaitConnectRsp
	Config
	Open
	WaitDisconnect
	WaitCreate
	WaitCreateRsp
	WaitMove
	WaitMoveRsp
	WaitMoveConfirm
	WaitConfirmRsp
)

var statusText = [...]string{
	"CLOSED", "WAIT_CONNECT", "WAIT_CONNECT_RSP", "CONFIG", "OPEN", "WAIT_DISCONNECT",
	"WAIT_CREATE", "WAIT_CREATE_RSP", "WAIT_MOVE", "WAIT_MOVE_RSP", "WAIT_MOVE_CONFIRM", "WAIT_CONFIRM_RSP",
}

func (s Status) String() string {
	if int(s) < len(statusText) {
		return statusText[s]
	}
	return "UNKNOWN"
}

// Option values of our configuration request: MTU of 0x05C8.
var configOptions = []byte{0x01, 0x02, 0xC8, 0x05}

// Channel is an L2CAP connection-oriented channel to a Device.
type Channel struct {
	d         *Device
	localCID  uint16
	remoteCID uint16
	status    Status

	data      *fiber.Emitter[wire.Block]
	handshake *fiber.Task
}

// NewChannel returns a closed channel on d.
func NewChannel(d *Device) *Channel {
	return &Channel{
		d:         d,
		data:      fiber.NewEmitter[wire.Block](d.a.s),
		handshake: fiber.NewTask(d.a.s),
	}
}

// Data emits every payload received on the channel. An empty Block marks
// the channel as closed.
func (c *Channel) Data() *fiber.Emitter[wire.Block] { return c.data }

// Status returns the channel state.
func (c *Channel) Status() Status { return c.status }

// LocalCID returns our channel identifier.
func (c *Channel) LocalCID() uint16 { return c.localCID }

// RemoteCID returns the peer's channel identifier.
func (c *Channel) RemoteCID() uint16 { return c.remoteCID }

func (c *Channel) bind(s Status) {
	c.localCID = c.d.allocCID()
	c.remoteCID = 0
	c.status = s
	c.handshake = fiber.NewTask(c.d.a.s)
	c.d.channels[c.localCID] = c
}

func (c *Channel) unbind() {
	if c.d.channels[c.localCID] == c {
		delete(c.d.channels, c.localCID)
	}
	c.status = Closed
}

func (c *Channel) closed() {
	c.status = Closed
	c.handshake.Resolve()
	c.data.Emit(nil)
}

// Connect opens the channel to psm on the peer. It parks while the peer
// answers pending and returns once the channel is in CONFIG.
func (c *Channel) Connect(psm uint16) error {
	if c.status != Closed {
		return ErrBadState
	}
	d := c.d
	if d.handle == 0 {
		return ErrNotConnected
	}
	c.bind(WaitConnectRsp)

	ident, w, err := d.request(sigConnectReq, u16s(psm, c.localCID))
	if err != nil {
		c.unbind()
		return err
	}
	defer d.release(ident, w)

	for {
		r := w.next()
		if r.err != nil {
			c.unbind()
			return r.err
		}
		if r.code == sigCommandReject {
			c.unbind()
			return ErrCommandRejected
		}
		if r.code != sigConnectRsp {
			continue
		}
		b := r.data
		dcid, _, result, status := b.ReadU16(), b.ReadU16(), b.ReadU16(), b.ReadU16()
		if result == connPending {
			continue
		}
		if result != connSuccess {
			c.unbind()
			return &ConnectError{Result: result, Status: status}
		}
		c.remoteCID = dcid
		c.status = Config
		return nil
	}
}

// Accept waits for the peer to open a channel to psm. It may be called
// before the ACL link exists.
func (c *Channel) Accept(psm uint16) error {
	if c.status != Closed {
		return ErrBadState
	}
	d := c.d
	if d.a.err != nil {
		return ErrClosed
	}
	if _, busy := d.acceptors[psm]; busy {
		return ErrPSMInUse
	}
	c.bind(WaitConnect)
	acc := &acceptor{ch: c, done: fiber.NewPromise[uint16](d.a.s)}
	d.acceptors[psm] = acc
	acc.done.Wait()
	if c.status != Config {
		if d.a.err != nil {
			return ErrClosed
		}
		return ErrBadState
	}
	return nil
}

// Configure sends our configuration request and parks until the peer has
// both answered it and had its own request accepted.
func (c *Channel) Configure() error {
	if c.status != Config && c.status != Open {
		return ErrBadState
	}
	d := c.d

	p := make([]byte, 4+len(configOptions))
	wire.PutU16(p, c.remoteCID)
	copy(p[4:], configOptions)

	ident, w, err := d.request(sigConfigReq, p)
	if err != nil {
		return err
	}
	r := w.next()
	d.release(ident, w)
	if r.err != nil {
		return r.err
	}
	if r.code == sigCommandReject {
		return ErrCommandRejected
	}
	b := r.data
	b.Skip(4)
	if result := b.ReadU16(); result != 0x0000 {
		return errors.Errorf("l2cap: configuration refused, result 0x%04X", result)
	}

	c.handshake.Wait()
	if c.status == Closed {
		return ErrNotConnected
	}
	c.status = Open
	return nil
}

// Send transmits one payload on the channel.
func (c *Channel) Send(p []byte) error {
	if c.status != Open && c.status != Config {
		return ErrBadState
	}
	d := c.d
	if err := d.acquireSlot(); err != nil {
		return err
	}
	if c.status == Closed {
		return ErrBadState
	}
	f := wire.NewFrame(make([]byte, 1+4+4+len(p)))
	f.WriteU8(pktTypeACLData)
	f.WriteU16(d.handle | pbFirstFlushable<<12)
	f.WriteU16(uint16(4 + len(p)))
	f.WriteU16(uint16(len(p)))
	f.WriteU16(c.remoteCID)
	f.Write(p)
	return d.a.write(f.Bytes())
}

// Close disconnects the channel and parks until the peer confirms.
func (c *Channel) Close() error {
	if c.status == Closed {
		return nil
	}
	d := c.d
	if c.status == WaitConnect {
		for psm, acc := range d.acceptors {
			if acc.ch == c {
				delete(d.acceptors, psm)
				acc.done.Resolve(0)
			}
		}
		c.unbind()
		return nil
	}
	if d.handle == 0 {
		c.unbind()
		return nil
	}

	c.status = WaitDisconnect
	ident, w, err := d.request(sigDisconnectReq, u16s(c.remoteCID, c.localCID))
	if err != nil {
		c.unbind()
		return err
	}
	r := w.next()
	d.release(ident, w)
	if c.d.channels[c.localCID] == c {
		delete(d.channels, c.localCID)
		c.closed()
	}
	if r.err != nil {
		return r.err
	}
	if r.code == sigCommandReject {
		return ErrCommandRejected
	}
	return nil
}
