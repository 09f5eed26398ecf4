package hci

import (
	"github.com/currantlabs/bredr/fiber"
	"github.com/currantlabs/bredr/wire"
)

// Fixed channel identifiers [Vol 3, Part A, 2.1].
const (
	cidSignaling    = 0x0001
	cidDynamicStart = 0x0040
)

// Signaling command codes [Vol 3, Part A, 4]. Odd codes are responses.
const (
	sigCommandReject  = 0x01
	sigConnectReq     = 0x02
	sigConnectRsp     = 0x03
	sigConfigReq      = 0x04
	sigConfigRsp      = 0x05
	sigDisconnectReq  = 0x06
	sigDisconnectRsp  = 0x07
	sigEchoReq        = 0x08
	sigEchoRsp        = 0x09
	sigInfoReq        = 0x0A
	sigInfoRsp        = 0x0B
	sigCreateReq      = 0x0C
	sigCreateRsp      = 0x0D
	sigMoveReq        = 0x0E
	sigMoveRsp        = 0x0F
	sigMoveConfirm    = 0x10
	sigMoveConfirmRsp = 0x11
)

// Connect response results.
const (
	connSuccess    = 0x0000
	connPending    = 0x0001
	connRefusedPSM = 0x0002
)

// Command reject reason: invalid CID in request.
const rejectInvalidCID = 0x0002

type sigResponse struct {
	code uint8
	data wire.Block
	err  error
}

// sigWaiter collects responses to one outstanding ident. A connect request
// may be answered several times (pending, then final).
type sigWaiter struct {
	q  []sigResponse
	cv *fiber.Condition
}

func (w *sigWaiter) push(r sigResponse) {
	w.q = append(w.q, r)
	w.cv.Notify()
}

func (w *sigWaiter) next() sigResponse {
	for len(w.q) == 0 {
		w.cv.Wait()
	}
	r := w.q[0]
	w.q = w.q[1:]
	return r
}

type acceptor struct {
	ch   *Channel
	done *fiber.Promise[uint16]
}

// cancelAccepts releases every channel still waiting in Accept.
func (d *Device) cancelAccepts() {
	for psm, acc := range d.acceptors {
		delete(d.acceptors, psm)
		acc.ch.unbind()
		acc.done.Resolve(0)
	}
}

func (d *Device) allocIdent() uint8 {
	id := d.nextIdent
	d.nextIdent++
	if d.nextIdent == 0 {
		d.nextIdent = 1
	}
	return id
}

func (d *Device) allocCID() uint16 {
	for {
		cid := d.nextCID
		d.nextCID++
		if d.nextCID < cidDynamicStart {
			d.nextCID = cidDynamicStart
		}
		if _, used := d.channels[cid]; !used {
			return cid
		}
	}
}

func (d *Device) signalPacket(ident, code uint8, payload []byte) []byte {
	f := wire.NewFrame(make([]byte, 1+4+4+4+len(payload)))
	f.WriteU8(pktTypeACLData)
	f.WriteU16(d.handle)
	dlen := f.Advance(2)
	start := f.Len()
	f.WriteU16(uint16(4 + len(payload)))
	f.WriteU16(cidSignaling)
	f.WriteU8(code)
	f.WriteU8(ident)
	f.WriteU16(uint16(len(payload)))
	f.Write(payload)
	wire.PutU16(dlen, uint16(f.Len()-start))
	return f.Bytes()
}

// signal sends a signaling command, parking for a flow control slot.
func (d *Device) signal(ident, code uint8, payload []byte) error {
	if err := d.acquireSlot(); err != nil {
		return err
	}
	return d.a.write(d.signalPacket(ident, code, payload))
}

// request sends a signaling request and returns the waiter for its
// responses. The caller releases the ident with d.release.
func (d *Device) request(code uint8, payload []byte) (uint8, *sigWaiter, error) {
	if d.handle == 0 {
		return 0, nil, ErrNotConnected
	}
	ident := d.allocIdent()
	w := &sigWaiter{cv: fiber.NewCondition(d.a.s)}
	d.pending[ident] = w
	if err := d.signal(ident, code, payload); err != nil {
		delete(d.pending, ident)
		return 0, nil, err
	}
	return ident, w, nil
}

func (d *Device) release(ident uint8, w *sigWaiter) {
	if d.pending[ident] == w {
		delete(d.pending, ident)
	}
}

// reply answers a peer request from the event fiber. It never parks: when no
// slot is free the reply is queued and a writer fiber drains the queue in
// order.
func (d *Device) reply(ident, code uint8, payload []byte) {
	if d.handle == 0 {
		return
	}
	if !d.replying && d.fullSlots < d.totalSlots {
		d.fullSlots++
		if err := d.a.write(d.signalPacket(ident, code, payload)); err != nil {
			logger.Error("can't send signaling reply", "addr", d.addr, "code", code, "err", err)
		}
		return
	}
	d.replies = append(d.replies, d.signalPacket(ident, code, payload))
	if d.replying {
		return
	}
	d.replying = true
	d.a.s.Create("l2cap-reply", func() {
		defer func() { d.replying = false }()
		for len(d.replies) > 0 {
			if err := d.acquireSlot(); err != nil {
				return
			}
			p := d.replies[0]
			d.replies = d.replies[1:]
			if err := d.a.write(p); err != nil {
				logger.Error("can't send signaling reply", "addr", d.addr, "err", err)
			}
		}
	})
}

func u16s(v ...uint16) []byte {
	f := wire.NewFrame(make([]byte, 2*len(v)))
	for _, x := range v {
		f.WriteU16(x)
	}
	return f.Bytes()
}

// acldata handles one ACL packet for this link.
func (d *Device) acldata(pb uint8, b wire.Block) {
	if pb == pbContinuing {
		if d.frag == nil {
			logger.Debug("acl dropped", "reason", "orphan continuation", "addr", d.addr)
			return
		}
		d.frag = append(d.frag, b...)
		b = wire.Block(d.frag)
	} else {
		d.frag = nil
	}

	if b.Len() < 4 {
		return
	}
	hdr := b
	n, cid := int(hdr.ReadU16()), hdr.ReadU16()
	if hdr.Len() < n {
		if d.frag == nil {
			d.frag = append([]byte(nil), b...)
		}
		return
	}
	d.frag = nil
	payload := hdr.Take(n)

	if cid == cidSignaling {
		d.handleSignaling(payload)
		return
	}
	ch, ok := d.channels[cid]
	if !ok {
		logger.Debug("l2cap dropped", "reason", "unknown cid", "cid", cid)
		return
	}
	ch.data.Emit(payload)
}

// handleSignaling processes every command of a C-frame.
func (d *Device) handleSignaling(b wire.Block) {
	for b.Len() >= 4 {
		code, ident, n := b.ReadU8(), b.ReadU8(), int(b.ReadU16())
		if b.Len() < n {
			logger.Debug("signal dropped", "reason", "short command", "code", code)
			return
		}
		d.handleSignal(code, ident, b.Take(n))
	}
}

func (d *Device) handleSignal(code, ident uint8, b wire.Block) {
	if code&0x01 != 0 {
		if code == sigConnectRsp {
			d.connectResponse(b)
		}
		w, ok := d.pending[ident]
		if !ok {
			logger.Debug("signal dropped", "reason", "unknown ident", "code", code, "ident", ident)
			return
		}
		w.push(sigResponse{code: code, data: b})
		return
	}

	switch code {
	case sigConnectReq:
		d.connectRequest(ident, b)
	case sigConfigReq:
		d.configRequest(ident, b)
	case sigDisconnectReq:
		d.disconnectRequest(ident, b)
	case sigEchoReq:
		d.reply(ident, sigEchoRsp, b)
	case sigInfoReq:
		d.reply(ident, sigInfoRsp, u16s(b.ReadU16(), 0x0001))
	case sigCreateReq, sigMoveReq, sigMoveConfirm:
		logger.Debug("signal ignored", "code", code, "ident", ident)
	default:
		logger.Debug("signal dropped", "reason", "unknown code", "code", code)
	}
}

// connectResponse moves the channel forward as soon as the response is
// seen, so a configuration request right behind it finds the channel in
// CONFIG.
func (d *Device) connectResponse(b wire.Block) {
	dcid, scid, result := b.ReadU16(), b.ReadU16(), b.ReadU16()
	ch, ok := d.channels[scid]
	if !ok || ch.status != WaitConnectRsp || result != connSuccess {
		return
	}
	ch.remoteCID = dcid
	ch.status = Config
}

func (d *Device) connectRequest(ident uint8, b wire.Block) {
	psm, scid := b.ReadU16(), b.ReadU16()
	acc, ok := d.acceptors[psm]
	if !ok {
		d.reply(ident, sigConnectRsp, u16s(0x0000, scid, connRefusedPSM, 0x0000))
		return
	}
	delete(d.acceptors, psm)

	ch := acc.ch
	ch.remoteCID = scid
	ch.status = Config
	d.reply(ident, sigConnectRsp, u16s(ch.localCID, scid, connSuccess, 0x0000))
	acc.done.Resolve(scid)
}

func (d *Device) configRequest(ident uint8, b wire.Block) {
	dcid := b.ReadU16()
	ch, ok := d.channels[dcid]
	if !ok || (ch.status != Config && ch.status != Open) {
		d.reply(ident, sigCommandReject, u16s(rejectInvalidCID, 0x0000, dcid))
		return
	}
	d.reply(ident, sigConfigRsp, u16s(ch.remoteCID, 0x0000, 0x0000))
	ch.handshake.Resolve()
}

func (d *Device) disconnectRequest(ident uint8, b wire.Block) {
	dcid, scid := b.ReadU16(), b.ReadU16()
	ch, ok := d.channels[dcid]
	if !ok {
		d.reply(ident, sigCommandReject, u16s(rejectInvalidCID, scid, dcid))
		return
	}
	d.reply(ident, sigDisconnectRsp, u16s(dcid, scid))
	delete(d.channels, dcid)
	ch.closed()
}
