package hci

import "io"

// An Option is a configuration function, which configures the adapter.
type Option func(*Adapter) error

// OptDeviceID sets HCI device ID. -1 selects the first usable controller.
func OptDeviceID(id int) Option {
	return func(a *Adapter) error {
		a.id = id
		return nil
	}
}

// OptSocket makes the adapter use rwc instead of opening an HCI socket.
// Every Read must return exactly one HCI packet.
func OptSocket(rwc io.ReadWriteCloser) Option {
	return func(a *Adapter) error {
		a.skt = rwc
		return nil
	}
}

// OptLinkKeyDir sets the directory link keys are stored in.
func OptLinkKeyDir(dir string) Option {
	return func(a *Adapter) error {
		a.keys = LinkKeyStore{Dir: dir}
		return nil
	}
}

// OptAutoAccept sets whether IO capability and user confirmation requests
// are answered positively.
func OptAutoAccept(accept bool) Option {
	return func(a *Adapter) error {
		a.autoAccept = accept
		return nil
	}
}
