package hci

import (
	"github.com/pkg/errors"

	"github.com/currantlabs/bredr/fiber"
	"github.com/currantlabs/bredr/wire"
)

// Command is one HCI command invocation. Parameters are written through the
// embedded Frame after the 4-byte header; the length byte is patched on send.
//
// At most one command per opcode is outstanding on an adapter. A second one
// parks in Send until the first is closed.
type Command struct {
	*wire.Frame

	a      *Adapter
	opcode uint16
	plen   []byte

	registered bool
	result     *fiber.Emitter[wire.Block]
}

// NewCommand starts a command for the given OGF and OCF.
func NewCommand(a *Adapter, ogf, ocf uint16) *Command {
	c := &Command{
		Frame:  wire.NewFrame(make([]byte, maxFrameSize)),
		a:      a,
		opcode: Opcode(ogf, ocf),
		result: fiber.NewEmitter[wire.Block](a.s),
	}
	c.WriteU8(pktTypeCommand)
	c.WriteU16(c.opcode)
	c.plen = c.Advance(1)
	return c
}

// Opcode returns the packed opcode.
func (c *Command) Opcode() uint16 { return c.opcode }

// wait parks until no other command with the same opcode is outstanding.
func (c *Command) wait() error {
	for {
		if c.a.err != nil {
			return ErrClosed
		}
		if o, ok := c.a.commands[c.opcode]; !ok || o == c {
			return nil
		}
		c.a.released.Wait()
	}
}

func (c *Command) transmit() error {
	c.plen[0] = byte(c.Len() - 4)
	return c.a.write(c.Bytes())
}

// Send transmits the command without waiting for, or registering for, its
// completion.
func (c *Command) Send() error {
	if err := c.wait(); err != nil {
		return err
	}
	return c.transmit()
}

// Close deregisters the command. It is safe to call more than once.
func (c *Command) Close() {
	if !c.registered {
		return
	}
	c.registered = false
	delete(c.a.commands, c.opcode)
	c.a.released.Notify()
}

// Run transmits the command and parks until the matching command complete or
// command status event. The returned Block starts at the status byte; for a
// command status it is that byte alone.
func (c *Command) Run() (wire.Block, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	c.a.commands[c.opcode] = c
	c.registered = true
	defer c.Close()

	if err := c.transmit(); err != nil {
		return nil, err
	}
	b := c.result.Next()
	if b == nil {
		return nil, errors.Wrapf(ErrClosed, "command 0x%04X", c.opcode)
	}
	return b, nil
}

// RunStatus runs the command and validates its status byte.
func (c *Command) RunStatus() (wire.Block, error) {
	b, err := c.Run()
	if err != nil {
		return nil, err
	}
	if b.Len() == 0 {
		return nil, errors.Errorf("hci: empty response to command 0x%04X", c.opcode)
	}
	if s := b.ReadU8(); s != 0x00 {
		return nil, &CommandError{Opcode: c.opcode, Status: s}
	}
	return b, nil
}
