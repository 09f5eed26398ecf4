// Package evt defines HCI event codes and zero-copy views over event
// parameters. Views index into the receive buffer directly; callers check
// the payload against the routing table's minimum size before using them.
package evt

import "encoding/binary"

// Code is an HCI event code.
type Code uint8

// Event codes [Vol 2, Part E, 7.7].
const (
	InquiryCompleteCode                         Code = 0x01
	InquiryResultCode                           Code = 0x02
	ConnectionCompleteCode                      Code = 0x03
	ConnectionRequestCode                       Code = 0x04
	DisconnectionCompleteCode                   Code = 0x05
	AuthenticationCompleteCode                  Code = 0x06
	RemoteNameRequestCompleteCode               Code = 0x07
	EncryptionChangeCode                        Code = 0x08
	ChangeLinkKeyCompleteCode                   Code = 0x09
	MasterLinkKeyCompleteCode                   Code = 0x0A
	ReadRemoteFeaturesCompleteCode              Code = 0x0B
	ReadRemoteVersionCompleteCode               Code = 0x0C
	QoSSetupCompleteCode                        Code = 0x0D
	CommandCompleteCode                         Code = 0x0E
	CommandStatusCode                           Code = 0x0F
	HardwareErrorCode                           Code = 0x10
	FlushOccurredCode                           Code = 0x11
	RoleChangeCode                              Code = 0x12
	NumberOfCompletedPacketsCode                Code = 0x13
	ModeChangeCode                              Code = 0x14
	ReturnLinkKeysCode                          Code = 0x15
	PINCodeRequestCode                          Code = 0x16
	LinkKeyRequestCode                          Code = 0x17
	LinkKeyNotificationCode                     Code = 0x18
	LoopbackCommandCode                         Code = 0x19
	DataBufferOverflowCode                      Code = 0x1A
	MaxSlotsChangeCode                          Code = 0x1B
	ReadClockOffsetCompleteCode                 Code = 0x1C
	ConnectionPacketTypeChangedCode             Code = 0x1D
	QoSViolationCode                            Code = 0x1E
	PageScanRepetitionModeChangeCode            Code = 0x20
	FlowSpecificationCompleteCode               Code = 0x21
	InquiryResultWithRSSICode                   Code = 0x22
	ReadRemoteExtendedFeaturesCompleteCode      Code = 0x23
	SynchronousConnectionCompleteCode           Code = 0x2C
	SynchronousConnectionChangedCode            Code = 0x2D
	SniffSubratingCode                          Code = 0x2E
	ExtendedInquiryResultCode                   Code = 0x2F
	EncryptionKeyRefreshCompleteCode            Code = 0x30
	IOCapabilityRequestCode                     Code = 0x31
	IOCapabilityResponseCode                    Code = 0x32
	UserConfirmationRequestCode                 Code = 0x33
	UserPasskeyRequestCode                      Code = 0x34
	RemoteOOBDataRequestCode                    Code = 0x35
	SimplePairingCompleteCode                   Code = 0x36
	LinkSupervisionTimeoutChangedCode           Code = 0x38
	EnhancedFlushCompleteCode                   Code = 0x39
	UserPasskeyNotificationCode                 Code = 0x3B
	KeypressNotificationCode                    Code = 0x3C
	RemoteHostSupportedFeaturesNotificationCode Code = 0x3D
	LEMetaCode                                  Code = 0x3E
	FlowSpecificationModifyCompleteCode         Code = 0x47
	VendorCode                                  Code = 0xFF
)

// Target tells which key of an event locates the remote device.
type Target int

const (
	// ByAddr events carry the remote BD_ADDR.
	ByAddr Target = iota
	// ByHandle events carry a connection handle.
	ByHandle
)

// Route locates the device an event belongs to.
type Route struct {
	Target Target
	Offset int // of the address or handle within the parameters
	Size   int // minimum parameter length
}

// Key extracts the raw address or the 12-bit handle from b. It reports false
// if b is shorter than the route's minimum size.
func (r Route) Key(b []byte) (addr [6]byte, handle uint16, ok bool) {
	if len(b) < r.Size {
		return addr, 0, false
	}
	if r.Target == ByHandle {
		return addr, binary.LittleEndian.Uint16(b[r.Offset:]) & 0x0FFF, true
	}
	copy(addr[:], b[r.Offset:])
	return addr, 0, true
}

var routes = map[Code]Route{
	ConnectionCompleteCode:                      {ByAddr, 3, 11},
	ConnectionRequestCode:                       {ByAddr, 0, 10},
	DisconnectionCompleteCode:                   {ByHandle, 1, 4},
	AuthenticationCompleteCode:                  {ByHandle, 1, 3},
	RemoteNameRequestCompleteCode:               {ByAddr, 1, 255},
	EncryptionChangeCode:                        {ByHandle, 1, 4},
	ChangeLinkKeyCompleteCode:                   {ByHandle, 1, 3},
	MasterLinkKeyCompleteCode:                   {ByHandle, 1, 4},
	ReadRemoteFeaturesCompleteCode:              {ByHandle, 1, 11},
	ReadRemoteVersionCompleteCode:               {ByHandle, 1, 8},
	QoSSetupCompleteCode:                        {ByHandle, 1, 21},
	FlushOccurredCode:                           {ByHandle, 0, 2},
	RoleChangeCode:                              {ByAddr, 1, 8},
	ModeChangeCode:                              {ByHandle, 1, 6},
	PINCodeRequestCode:                          {ByAddr, 0, 6},
	LinkKeyRequestCode:                          {ByAddr, 0, 6},
	LinkKeyNotificationCode:                     {ByAddr, 0, 23},
	MaxSlotsChangeCode:                          {ByHandle, 0, 3},
	ReadClockOffsetCompleteCode:                 {ByHandle, 1, 5},
	ConnectionPacketTypeChangedCode:             {ByHandle, 1, 5},
	QoSViolationCode:                            {ByHandle, 0, 2},
	PageScanRepetitionModeChangeCode:            {ByAddr, 0, 7},
	FlowSpecificationCompleteCode:               {ByHandle, 1, 22},
	ReadRemoteExtendedFeaturesCompleteCode:      {ByHandle, 1, 13},
	SynchronousConnectionCompleteCode:           {ByAddr, 3, 17},
	SynchronousConnectionChangedCode:            {ByHandle, 1, 9},
	SniffSubratingCode:                          {ByHandle, 1, 11},
	EncryptionKeyRefreshCompleteCode:            {ByHandle, 1, 3},
	IOCapabilityRequestCode:                     {ByAddr, 0, 6},
	IOCapabilityResponseCode:                    {ByAddr, 0, 9},
	UserConfirmationRequestCode:                 {ByAddr, 0, 10},
	UserPasskeyRequestCode:                      {ByAddr, 0, 6},
	RemoteOOBDataRequestCode:                    {ByAddr, 0, 6},
	SimplePairingCompleteCode:                   {ByAddr, 1, 7},
	LinkSupervisionTimeoutChangedCode:           {ByHandle, 0, 4},
	EnhancedFlushCompleteCode:                   {ByHandle, 0, 2},
	UserPasskeyNotificationCode:                 {ByAddr, 0, 10},
	KeypressNotificationCode:                    {ByAddr, 0, 7},
	RemoteHostSupportedFeaturesNotificationCode: {ByAddr, 0, 14},
	FlowSpecificationModifyCompleteCode:         {ByHandle, 1, 3},
}

// Lookup returns the route of a device or connection event.
func Lookup(c Code) (Route, bool) {
	r, ok := routes[c]
	return r, ok
}

func addr(b []byte) [6]byte {
	var a [6]byte
	copy(a[:], b)
	return a
}

// CommandComplete [Vol 2, Part E, 7.7.14].
type CommandComplete []byte

func (e CommandComplete) NumHCICommandPackets() uint8 { return e[0] }
func (e CommandComplete) CommandOpcode() uint16       { return binary.LittleEndian.Uint16(e[1:]) }
func (e CommandComplete) ReturnParameters() []byte    { return e[3:] }

// CommandStatus [Vol 2, Part E, 7.7.15].
type CommandStatus []byte

func (e CommandStatus) Status() uint8               { return e[0] }
func (e CommandStatus) NumHCICommandPackets() uint8 { return e[1] }
func (e CommandStatus) CommandOpcode() uint16       { return binary.LittleEndian.Uint16(e[2:]) }

// NumberOfCompletedPackets [Vol 2, Part E, 7.7.19]. Handle and count pairs
// are interleaved.
type NumberOfCompletedPackets []byte

func (e NumberOfCompletedPackets) NumberOfHandles() uint8 { return e[0] }
func (e NumberOfCompletedPackets) ConnectionHandle(i int) uint16 {
	return binary.LittleEndian.Uint16(e[1+i*4:]) & 0x0FFF
}
func (e NumberOfCompletedPackets) HCNumOfCompletedPackets(i int) uint16 {
	return binary.LittleEndian.Uint16(e[3+i*4:])
}

// Valid reports whether every advertised pair is present.
func (e NumberOfCompletedPackets) Valid() bool {
	return len(e) >= 1 && len(e) >= 1+int(e.NumberOfHandles())*4
}

// ConnectionComplete [Vol 2, Part E, 7.7.3].
type ConnectionComplete []byte

func (e ConnectionComplete) Status() uint8            { return e[0] }
func (e ConnectionComplete) ConnectionHandle() uint16 { return binary.LittleEndian.Uint16(e[1:]) & 0x0FFF }
func (e ConnectionComplete) BDADDR() [6]byte          { return addr(e[3:]) }
func (e ConnectionComplete) LinkType() uint8          { return e[9] }
func (e ConnectionComplete) EncryptionEnabled() uint8 { return e[10] }

// ConnectionRequest [Vol 2, Part E, 7.7.4].
type ConnectionRequest []byte

func (e ConnectionRequest) BDADDR() [6]byte { return addr(e) }
func (e ConnectionRequest) ClassOfDevice() uint32 {
	return uint32(e[6]) | uint32(e[7])<<8 | uint32(e[8])<<16
}
func (e ConnectionRequest) LinkType() uint8 { return e[9] }

// DisconnectionComplete [Vol 2, Part E, 7.7.5].
type DisconnectionComplete []byte

func (e DisconnectionComplete) Status() uint8 { return e[0] }
func (e DisconnectionComplete) ConnectionHandle() uint16 {
	return binary.LittleEndian.Uint16(e[1:]) & 0x0FFF
}
func (e DisconnectionComplete) Reason() uint8 { return e[3] }

// AuthenticationComplete [Vol 2, Part E, 7.7.6].
type AuthenticationComplete []byte

func (e AuthenticationComplete) Status() uint8 { return e[0] }

// EncryptionChange [Vol 2, Part E, 7.7.8].
type EncryptionChange []byte

func (e EncryptionChange) Status() uint8            { return e[0] }
func (e EncryptionChange) EncryptionEnabled() uint8 { return e[3] }

// LinkKeyNotification [Vol 2, Part E, 7.7.24].
type LinkKeyNotification []byte

func (e LinkKeyNotification) BDADDR() [6]byte { return addr(e) }
func (e LinkKeyNotification) LinkKey() []byte { return e[6:22] }
func (e LinkKeyNotification) KeyType() uint8  { return e[22] }

// MaxSlotsChange [Vol 2, Part E, 7.7.27].
type MaxSlotsChange []byte

func (e MaxSlotsChange) LMPMaxSlots() uint8 { return e[2] }

// UserConfirmationRequest [Vol 2, Part E, 7.7.42].
type UserConfirmationRequest []byte

func (e UserConfirmationRequest) NumericValue() uint32 { return binary.LittleEndian.Uint32(e[6:]) }

// Inquiry is one response of an inquiry result event.
type Inquiry struct {
	BDADDR          [6]byte
	PageScanRepMode uint8
	ClassOfDevice   uint32
	ClockOffset     uint16
	RSSI            int8
	EIR             []byte
}

// Inquiries decodes plain, with-RSSI and extended inquiry result events.
// Truncated responses are dropped.
func Inquiries(c Code, b []byte) []Inquiry {
	if len(b) < 1 {
		return nil
	}
	n, b := int(b[0]), b[1:]
	var stride int
	switch c {
	case InquiryResultCode, InquiryResultWithRSSICode:
		stride = 14
	case ExtendedInquiryResultCode:
		stride = 254
	default:
		return nil
	}

	var out []Inquiry
	for i := 0; i < n && len(b) >= stride; i++ {
		r := b[:stride]
		b = b[stride:]
		q := Inquiry{BDADDR: addr(r), PageScanRepMode: r[6]}
		switch c {
		case InquiryResultCode:
			q.ClassOfDevice = uint32(r[9]) | uint32(r[10])<<8 | uint32(r[11])<<16
			q.ClockOffset = binary.LittleEndian.Uint16(r[12:])
		default:
			q.ClassOfDevice = uint32(r[8]) | uint32(r[9])<<8 | uint32(r[10])<<16
			q.ClockOffset = binary.LittleEndian.Uint16(r[11:])
			q.RSSI = int8(r[13])
			if c == ExtendedInquiryResultCode {
				q.EIR = r[14:]
			}
		}
		out = append(out, q)
	}
	return out
}
