package hci

// HCI packet indicators [Vol 4, Part A, 2].
const (
	pktTypeCommand uint8 = 0x01
	pktTypeACLData uint8 = 0x02
	pktTypeSCOData uint8 = 0x03
	pktTypeEvent   uint8 = 0x04
	pktTypeVendor  uint8 = 0xFF
)

// maxFrameSize bounds a single HCI packet, indicator included.
const maxFrameSize = 1028

// Opcode group fields.
const (
	ogfLinkCtl    = 0x01
	ogfLinkPolicy = 0x02
	ogfHostCtl    = 0x03
	ogfInfoParam  = 0x04
	ogfVendor     = 0x3F
)

// Opcode packs an OGF/OCF pair.
func Opcode(ogf, ocf uint16) uint16 { return ocf | ogf<<10 }

// ACL packet boundary flags, bits 12-13 of the handle field.
const (
	pbFirstNonFlushable = 0x0
	pbContinuing        = 0x1
	pbFirstFlushable    = 0x2
)

// Scan modes for SetScanMode.
const (
	ScanDisabled    = 0x00
	ScanInquiry     = 0x01
	ScanPage        = 0x02
	ScanInquiryPage = 0x03
)

// GIAC is the general inquiry access code.
const GIAC = 0x9E8B33

// Roles for Device.Connect and Device.Accept.
const (
	RoleMaster = 0x00
	RoleSlave  = 0x01
)
