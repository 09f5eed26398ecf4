package hci

import (
	"github.com/pkg/errors"
)

// LocalVersion is the reply of Read Local Version Information [Vol 2, Part E, 7.4.1].
type LocalVersion struct {
	HCIVersion    uint8
	HCIRevision   uint16
	LMPVersion    uint8
	Manufacturer  uint16
	LMPSubversion uint16
}

// BufferSize is the reply of Read Buffer Size [Vol 2, Part E, 7.4.5].
type BufferSize struct {
	ACLLen     uint16
	SCOLen     uint8
	ACLPackets uint16
	SCOPackets uint16
}

func (a *Adapter) run(ogf, ocf uint16, params func(c *Command)) error {
	c := NewCommand(a, ogf, ocf)
	if params != nil {
		params(c)
	}
	_, err := c.RunStatus()
	return err
}

// StartInquiry starts an inquiry. Results are emitted on Inquiry.
func (a *Adapter) StartInquiry(lap uint32, length, numRsp uint8) error {
	return a.run(ogfLinkCtl, 0x0001, func(c *Command) {
		c.WriteU8(uint8(lap))
		c.WriteU8(uint8(lap >> 8))
		c.WriteU8(uint8(lap >> 16))
		c.WriteU8(length)
		c.WriteU8(numRsp)
	})
}

// StopInquiry cancels a running inquiry.
func (a *Adapter) StopInquiry() error {
	return a.run(ogfLinkCtl, 0x0002, nil)
}

// SetDefaultLinkPolicy ...
func (a *Adapter) SetDefaultLinkPolicy(policy uint16) error {
	return a.run(ogfLinkPolicy, 0x000F, func(c *Command) { c.WriteU16(policy) })
}

// SetEventMask ...
func (a *Adapter) SetEventMask(mask [8]byte) error {
	return a.run(ogfHostCtl, 0x0001, func(c *Command) { c.Write(mask[:]) })
}

// Reset resets the controller.
func (a *Adapter) Reset() error {
	return a.run(ogfHostCtl, 0x0003, nil)
}

// ClearEventFilter ...
func (a *Adapter) ClearEventFilter() error {
	return a.run(ogfHostCtl, 0x0005, func(c *Command) { c.WriteU8(0x00) })
}

// SetPinType ...
func (a *Adapter) SetPinType(pinType uint8) error {
	return a.run(ogfHostCtl, 0x000A, func(c *Command) { c.WriteU8(pinType) })
}

// SetLocalName sets the user friendly name. Names longer than 248 bytes are
// truncated.
func (a *Adapter) SetLocalName(name string) error {
	return a.run(ogfHostCtl, 0x0013, func(c *Command) {
		b := c.Advance(248)
		copy(b, name)
	})
}

// SetScanMode enables inquiry and page scan, see ScanDisabled and friends.
func (a *Adapter) SetScanMode(mode uint8) error {
	return a.run(ogfHostCtl, 0x001A, func(c *Command) { c.WriteU8(mode) })
}

// SetPageScanTiming ...
func (a *Adapter) SetPageScanTiming(interval, window uint16) error {
	return a.run(ogfHostCtl, 0x001C, func(c *Command) {
		c.WriteU16(interval)
		c.WriteU16(window)
	})
}

// SetInquiryScanTiming ...
func (a *Adapter) SetInquiryScanTiming(interval, window uint16) error {
	return a.run(ogfHostCtl, 0x001E, func(c *Command) {
		c.WriteU16(interval)
		c.WriteU16(window)
	})
}

// SetAuthMode ...
func (a *Adapter) SetAuthMode(mode uint8) error {
	return a.run(ogfHostCtl, 0x0020, func(c *Command) { c.WriteU8(mode) })
}

// SetDeviceClass sets the class of device from its minor and major parts.
func (a *Adapter) SetDeviceClass(minor uint8, major uint16) error {
	return a.run(ogfHostCtl, 0x0024, func(c *Command) {
		c.WriteU8(minor << 2)
		c.WriteU8(uint8(major))
		c.WriteU8(uint8(major >> 8))
	})
}

// SetInquiryMode ...
func (a *Adapter) SetInquiryMode(mode uint8) error {
	return a.run(ogfHostCtl, 0x0045, func(c *Command) { c.WriteU8(mode) })
}

// SetExtendedInquiryResponse ...
func (a *Adapter) SetExtendedInquiryResponse(fecRequired uint8, data [240]byte) error {
	return a.run(ogfHostCtl, 0x0052, func(c *Command) {
		c.WriteU8(fecRequired)
		c.Write(data[:])
	})
}

// SetSimplePairingMode ...
func (a *Adapter) SetSimplePairingMode(mode uint8) error {
	return a.run(ogfHostCtl, 0x0056, func(c *Command) { c.WriteU8(mode) })
}

// ReadLocalVersion ...
func (a *Adapter) ReadLocalVersion() (LocalVersion, error) {
	b, err := NewCommand(a, ogfInfoParam, 0x0001).RunStatus()
	if err != nil {
		return LocalVersion{}, err
	}
	if b.Len() < 8 {
		return LocalVersion{}, errors.New("hci: short local version reply")
	}
	return LocalVersion{
		HCIVersion:    b.ReadU8(),
		HCIRevision:   b.ReadU16(),
		LMPVersion:    b.ReadU8(),
		Manufacturer:  b.ReadU16(),
		LMPSubversion: b.ReadU16(),
	}, nil
}

// ReadBufferSize ...
func (a *Adapter) ReadBufferSize() (BufferSize, error) {
	b, err := NewCommand(a, ogfInfoParam, 0x0005).RunStatus()
	if err != nil {
		return BufferSize{}, err
	}
	if b.Len() < 7 {
		return BufferSize{}, errors.New("hci: short buffer size reply")
	}
	return BufferSize{
		ACLLen:     b.ReadU16(),
		SCOLen:     b.ReadU8(),
		ACLPackets: b.ReadU16(),
		SCOPackets: b.ReadU16(),
	}, nil
}

// ReadLocalAddress returns the controller's BD_ADDR.
func (a *Adapter) ReadLocalAddress() (Addr, error) {
	var addr Addr
	b, err := NewCommand(a, ogfInfoParam, 0x0009).RunStatus()
	if err != nil {
		return addr, err
	}
	p := b.Advance(6)
	if p == nil {
		return addr, errors.New("hci: short address reply")
	}
	copy(addr[:], p)
	return addr, nil
}

// Vendor sends a vendor specific command without waiting for its completion.
func (a *Adapter) Vendor(ocf uint16, params []byte) error {
	c := NewCommand(a, ogfVendor, ocf)
	c.Write(params)
	return c.Send()
}
