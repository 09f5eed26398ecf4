package hci

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned once the adapter's transport has failed or been closed.
	ErrClosed = errors.New("hci: adapter closed")

	// ErrNotConnected is returned for link operations on a device without an ACL link.
	ErrNotConnected = errors.New("hci: device not connected")

	// ErrCommandRejected is returned when the peer answers a signaling request
	// with a command reject.
	ErrCommandRejected = errors.New("l2cap: command rejected")

	// ErrBadState is returned when a channel operation is not valid in its
	// current state.
	ErrBadState = errors.New("l2cap: channel in wrong state")

	// ErrPSMInUse is returned when a PSM already has a pending acceptor.
	ErrPSMInUse = errors.New("l2cap: psm already accepting")
)

// CommandError reports a non-zero HCI status [Vol 2, Part D, 1.3].
type CommandError struct {
	Opcode uint16
	Status uint8
}

func (e *CommandError) Error() string {
	name, ok := statusNames[e.Status]
	if !ok {
		name = "unknown status"
	}
	return fmt.Sprintf("hci: command 0x%04X failed: %s (0x%02X)", e.Opcode, name, e.Status)
}

var statusNames = map[uint8]string{
	0x01: "unknown hci command",
	0x02: "unknown connection identifier",
	0x03: "hardware failure",
	0x04: "page timeout",
	0x05: "authentication failure",
	0x06: "pin or key missing",
	0x07: "memory capacity exceeded",
	0x08: "connection timeout",
	0x09: "connection limit exceeded",
	0x0A: "synchronous connection limit exceeded",
	0x0B: "connection already exists",
	0x0C: "command disallowed",
	0x0D: "connection rejected due to limited resources",
	0x0E: "connection rejected due to security reasons",
	0x0F: "connection rejected due to unacceptable bd_addr",
	0x10: "connection accept timeout exceeded",
	0x11: "unsupported feature or parameter value",
	0x12: "invalid hci command parameters",
	0x13: "remote user terminated connection",
	0x14: "remote device terminated connection due to low resources",
	0x15: "remote device terminated connection due to power off",
	0x16: "connection terminated by local host",
	0x17: "repeated attempts",
	0x18: "pairing not allowed",
	0x1A: "unsupported remote feature",
	0x1F: "unspecified error",
	0x22: "lmp response timeout",
	0x23: "lmp error transaction collision",
	0x24: "lmp pdu not allowed",
	0x25: "encryption mode not acceptable",
	0x26: "link key cannot be changed",
	0x28: "instant passed",
	0x29: "pairing with unit key not supported",
	0x2F: "insufficient security",
	0x3A: "controller busy",
}

// ConnectError reports a refused L2CAP connection [Vol 3, Part A, 4.3].
type ConnectError struct {
	Result uint16
	Status uint16
}

func (e *ConnectError) Error() string {
	var reason string
	switch e.Result {
	case 0x0002:
		reason = "psm not supported"
	case 0x0003:
		reason = "security block"
	case 0x0004:
		reason = "no resources available"
	case 0x0006:
		reason = "invalid source cid"
	case 0x0007:
		reason = "source cid already allocated"
	default:
		reason = "refused"
	}
	return fmt.Sprintf("l2cap: connection failed: %s (result 0x%04X, status 0x%04X)", reason, e.Result, e.Status)
}
