package hci

import (
	"io"
	"sync"

	"github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"

	"github.com/currantlabs/bredr/fiber"
	"github.com/currantlabs/bredr/linux/hci/evt"
	"github.com/currantlabs/bredr/linux/hci/skt"
	"github.com/currantlabs/bredr/wire"
)

var logger = log.New("hci")

// SetLogLevel sets the level of the hci and socket loggers.
func SetLogLevel(level int) {
	logger.SetLevel(level)
	skt.SetLogLevel(level)
}

// InquiryResult is one device found by an inquiry.
type InquiryResult struct {
	Addr            Addr
	PageScanRepMode uint8
	ClassOfDevice   uint32
	ClockOffset     uint16
	RSSI            int8
	EIR             []byte
}

// Adapter is a local controller. It owns the HCI socket, a reader goroutine
// that feeds received packets into the scheduler, and the event fiber that
// dispatches them to commands and devices.
//
// Apart from Close, Done and Err, methods must be called from the adapter's
// scheduler domain.
type Adapter struct {
	s   *fiber.Scheduler
	skt io.ReadWriteCloser
	id  int

	keys       LinkKeyStore
	autoAccept bool

	commands map[uint16]*Command
	released *fiber.Condition

	devices map[Addr]*Device
	conns   map[uint16]*Device

	rxq [][]byte
	rx  *fiber.Condition

	inquiry *fiber.Emitter[[]InquiryResult]

	err       error
	done      chan struct{}
	closeOnce sync.Once
}

// NewAdapter opens the controller and starts the event fiber on s.
func NewAdapter(s *fiber.Scheduler, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		s:  s,
		id: 0,

		keys:       LinkKeyStore{Dir: DefaultLinkKeyDir},
		autoAccept: true,

		commands: make(map[uint16]*Command),
		released: fiber.NewCondition(s),
		devices:  make(map[Addr]*Device),
		conns:    make(map[uint16]*Device),
		rx:       fiber.NewCondition(s),
		inquiry:  fiber.NewEmitter[[]InquiryResult](s),

		done: make(chan struct{}),
	}
	if err := a.Option(opts...); err != nil {
		return nil, err
	}
	if a.skt == nil {
		sk, err := skt.NewSocket(a.id)
		if err != nil {
			return nil, errors.Wrap(err, "can't open hci socket")
		}
		a.skt = sk
	}

	go a.sktLoop()
	s.Create("adapter", a.loop)
	return a, nil
}

// Option sets the options specified.
func (a *Adapter) Option(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return err
		}
	}
	return nil
}

// Scheduler returns the scheduler the adapter runs on.
func (a *Adapter) Scheduler() *fiber.Scheduler { return a.s }

// Inquiry emits the responses of every inquiry result event.
func (a *Adapter) Inquiry() *fiber.Emitter[[]InquiryResult] { return a.inquiry }

// LinkKeys returns the link key store.
func (a *Adapter) LinkKeys() LinkKeyStore { return a.keys }

// Close closes the socket. The reader goroutine then fails, which ends the
// event fiber.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() { err = a.skt.Close() })
	return err
}

// Done is closed when the reader goroutine has stopped.
func (a *Adapter) Done() <-chan struct{} { return a.done }

// Err returns the error that stopped the adapter. It may be read from any
// goroutine once Done is closed.
func (a *Adapter) Err() error { return a.err }

// Device returns the device tracked for addr, creating it if needed.
func (a *Adapter) Device(addr Addr) *Device {
	if d, ok := a.devices[addr]; ok {
		return d
	}
	d := newDevice(a, addr)
	a.devices[addr] = d
	return d
}

func (a *Adapter) attach(d *Device) {
	if d.handle != 0 {
		a.conns[d.handle] = d
	}
}

func (a *Adapter) detach(d *Device) {
	if d.handle != 0 && a.conns[d.handle] == d {
		delete(a.conns, d.handle)
	}
}

func (a *Adapter) write(b []byte) error {
	if a.err != nil {
		return ErrClosed
	}
	if logger.IsTrace() {
		logger.Trace("tx", "pkt", b)
	}
	if _, err := a.skt.Write(b); err != nil {
		logger.Error("write failed", "err", err)
		return errors.Wrap(err, "can't write to hci socket")
	}
	return nil
}

func (a *Adapter) sktLoop() {
	defer close(a.done)
	b := make([]byte, maxFrameSize)
	for {
		n, err := a.skt.Read(b)
		if err == nil && n == 0 {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			a.s.Input(func() {
				a.err = errors.Wrap(err, "can't read hci socket")
				a.rx.Notify()
			})
			return
		}
		p := make([]byte, n)
		copy(p, b)
		if !a.s.Input(func() {
			a.rxq = append(a.rxq, p)
			a.rx.Notify()
		}) {
			return
		}
	}
}

func (a *Adapter) loop() {
	for {
		for len(a.rxq) == 0 && a.err == nil {
			a.rx.Wait()
		}
		if len(a.rxq) == 0 {
			a.fail()
			return
		}
		p := a.rxq[0]
		a.rxq[0] = nil
		a.rxq = a.rxq[1:]
		a.handlePkt(wire.Block(p))

		// Let fibers woken by this packet (Next consumers above all) park
		// again before the next one is emitted.
		if len(a.rxq) > 0 {
			a.s.Yield()
		}
	}
}

// fail wakes everything parked on the adapter once the transport is gone.
func (a *Adapter) fail() {
	logger.Warn("adapter stopped", "err", a.err)
	for _, c := range a.commands {
		c.result.Emit(nil)
	}
	a.released.Notify()
	for _, d := range a.devices {
		d.linkDown(ErrClosed)
		d.cancelAccepts()
	}
}

func (a *Adapter) handlePkt(b wire.Block) {
	if logger.IsTrace() {
		logger.Trace("rx", "pkt", []byte(b))
	}
	switch t := b.ReadU8(); t {
	case pktTypeACLData:
		a.handleACL(b)
	case pktTypeEvent:
		a.handleEvt(b)
	default:
		logger.Debug("packet dropped", "type", t)
	}
}

func (a *Adapter) handleACL(b wire.Block) {
	if b.Len() < 4 {
		return
	}
	hdr, dlen := b.ReadU16(), int(b.ReadU16())
	if b.Len() < dlen {
		logger.Debug("acl dropped", "reason", "short packet", "dlen", dlen, "len", b.Len())
		return
	}
	h := hdr & 0x0FFF
	d, ok := a.conns[h]
	if !ok {
		logger.Debug("acl dropped", "reason", "unknown handle", "handle", h)
		return
	}
	d.acldata(uint8(hdr>>12)&0x3, b.Take(dlen))
}

func (a *Adapter) handleEvt(b wire.Block) {
	if b.Len() < 2 {
		return
	}
	code, plen := evt.Code(b.ReadU8()), int(b.ReadU8())
	if b.Len() < plen {
		logger.Debug("event dropped", "code", code, "reason", "short packet")
		return
	}
	b = b.Take(plen)

	switch code {
	case evt.CommandCompleteCode:
		if b.Len() < 3 {
			return
		}
		e := evt.CommandComplete(b)
		a.resolve(e.CommandOpcode(), wire.Block(e.ReturnParameters()))

	case evt.CommandStatusCode:
		if b.Len() < 4 {
			return
		}
		e := evt.CommandStatus(b)
		a.resolve(e.CommandOpcode(), wire.Block{e.Status()})

	case evt.InquiryResultCode, evt.InquiryResultWithRSSICode, evt.ExtendedInquiryResultCode:
		var rs []InquiryResult
		for _, q := range evt.Inquiries(code, b) {
			rs = append(rs, InquiryResult{
				Addr:            Addr(q.BDADDR),
				PageScanRepMode: q.PageScanRepMode,
				ClassOfDevice:   q.ClassOfDevice,
				ClockOffset:     q.ClockOffset,
				RSSI:            q.RSSI,
				EIR:             q.EIR,
			})
		}
		a.inquiry.Emit(rs)

	case evt.NumberOfCompletedPacketsCode:
		e := evt.NumberOfCompletedPackets(b)
		if !e.Valid() {
			return
		}
		for i := 0; i < int(e.NumberOfHandles()); i++ {
			d, ok := a.conns[e.ConnectionHandle(i)]
			if !ok {
				logger.Debug("completed packets for unknown connection", "handle", e.ConnectionHandle(i))
				continue
			}
			d.completed(int(e.HCNumOfCompletedPackets(i)))
		}

	case evt.HardwareErrorCode:
		logger.Warn("hardware error", "code", []byte(b))

	case evt.VendorCode:

	default:
		r, ok := evt.Lookup(code)
		if !ok {
			logger.Debug("event dropped", "code", code, "reason", "unhandled")
			return
		}
		addr, h, ok := r.Key(b)
		if !ok {
			logger.Debug("event dropped", "code", code, "reason", "short event")
			return
		}
		var d *Device
		if r.Target == evt.ByHandle {
			d = a.conns[h]
		} else {
			d = a.devices[Addr(addr)]
		}
		if d == nil {
			logger.Debug("event dropped", "code", code, "reason", "unknown device")
			return
		}
		d.handleEvent(code, b)
	}
}

func (a *Adapter) resolve(opcode uint16, b wire.Block) {
	c, ok := a.commands[opcode]
	if !ok {
		if opcode != 0x0000 {
			logger.Debug("completion dropped", "opcode", opcode)
		}
		return
	}
	c.result.Emit(b)
}
