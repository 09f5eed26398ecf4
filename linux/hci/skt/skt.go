//go:build linux

// Package skt opens a raw HCI user-channel socket on a local controller.
package skt

import (
	"io"
	"sync"
	"syscall"
	"unsafe"

	"github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var logger = log.New("skt")

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level int) { logger.SetLevel(level) }

// ErrNoDevice is returned when no controller could be opened.
var ErrNoDevice = errors.New("skt: no supported devices available")

func ioR(t, nr, size uintptr) uintptr {
	return (2 << 30) | (t << 8) | nr | (size << 16)
}

func ioW(t, nr, size uintptr) uintptr {
	return (1 << 30) | (t << 8) | nr | (size << 16)
}

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return syscall.Errno(ep)
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'
)

var (
	hciUpDevice      = ioW(typHCI, 201, ioctlSize) // HCIDEVUP
	hciDownDevice    = ioW(typHCI, 202, ioctlSize) // HCIDEVDOWN
	hciResetDevice   = ioW(typHCI, 203, ioctlSize) // HCIDEVRESET
	hciGetDeviceList = ioR(typHCI, 210, ioctlSize) // HCIGETDEVLIST
	hciGetDeviceInfo = ioR(typHCI, 211, ioctlSize) // HCIGETDEVINFO
)

type devRequest struct {
	id  uint16
	opt uint32
}

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]devRequest
}

type hciDevInfo struct {
	id         uint16
	name       [8]byte
	bdaddr     [6]byte
	flags      uint32
	devType    uint8
	features   [8]uint8
	pktType    uint32
	linkPolicy uint32
	linkMode   uint32
	aclMtu     uint16
	aclPkts    uint16
	scoMtu     uint16
	scoPkts    uint16

	stats [10]uint32
}

// Socket is an HCI user channel bound to one controller. Reads return whole
// HCI packets, type byte included.
type Socket struct {
	fd   int
	dev  int
	name string
	rmu  sync.Mutex
	wmu  sync.Mutex
}

// NewSocket opens controller n, or the first usable controller when n is -1.
// The controller is cycled down so the kernel releases it to the user channel.
func NewSocket(n int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "can't create socket")
	}
	if n != -1 {
		s, err := open(fd, n)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		return s, nil
	}

	req := devListRequest{devNum: hciMaxDevices}
	if err := ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't list devices")
	}
	for i := 0; i < int(req.devNum); i++ {
		s, err := open(fd, int(req.devRequest[i].id))
		if err == nil {
			logger.Info("opened", "dev", s.name)
			return s, nil
		}
		logger.Debug("skipped", "id", req.devRequest[i].id, "err", err)
	}
	unix.Close(fd)
	return nil, ErrNoDevice
}

func open(fd, n int) (*Socket, error) {
	i := hciDevInfo{id: uint16(n)}
	if err := ioctl(uintptr(fd), hciGetDeviceInfo, uintptr(unsafe.Pointer(&i))); err != nil {
		return nil, errors.Wrapf(err, "can't get info of hci%d", n)
	}
	name := unix.ByteSliceToString(i.name[:])
	logger.Debug("up", "dev", name)
	if err := ioctl(uintptr(fd), hciUpDevice, uintptr(n)); err != nil {
		if err != unix.EALREADY {
			return nil, errors.Wrapf(err, "can't bring %s up", name)
		}
		logger.Debug("reset", "dev", name)
		if err := ioctl(uintptr(fd), hciResetDevice, uintptr(n)); err != nil {
			return nil, errors.Wrapf(err, "can't reset %s", name)
		}
	}
	logger.Debug("down", "dev", name)
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(n)); err != nil {
		return nil, errors.Wrapf(err, "can't bring %s down", name)
	}

	sa := unix.SockaddrHCI{Dev: uint16(n), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, &sa); err != nil {
		logger.Error("can't bind to hci user channel", "dev", name, "err", err)
		return nil, errors.Wrapf(err, "can't bind %s", name)
	}
	return &Socket{fd: fd, dev: n, name: name}, nil
}

// Name returns the kernel name of the controller, e.g. "hci0".
func (s *Socket) Name() string { return s.name }

func (s *Socket) Read(b []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for {
		n, err := unix.Read(s.fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write sends one whole packet. Transient EAGAIN and EINTR failures are
// retried; anything else is returned.
func (s *Socket) Write(b []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for {
		n, err := unix.Write(s.fd, b)
		if err == unix.EAGAIN || err == unix.EINTR {
			logger.Debug("write retry", "dev", s.name, "err", err)
			continue
		}
		return n, err
	}
}

func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
