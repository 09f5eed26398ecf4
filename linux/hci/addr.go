package hci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Addr is a BD_ADDR in HCI byte order (least significant byte first).
type Addr [6]byte

// String returns the address in the conventional "AA:BB:CC:DD:EE:FF" form,
// most significant byte first.
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

// ParseAddr parses the form produced by String. Lower case is accepted.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return a, errors.Errorf("hci: invalid address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, errors.Errorf("hci: invalid address %q", s)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return a, errors.Wrapf(err, "hci: invalid address %q", s)
		}
		a[5-i] = byte(v)
	}
	return a, nil
}
