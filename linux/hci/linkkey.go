package hci

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// LinkKeySize is the length of a BR/EDR link key.
const LinkKeySize = 16

// DefaultLinkKeyDir is where link keys are kept unless OptLinkKeyDir is given.
const DefaultLinkKeyDir = "link_key"

// LinkKeyStore keeps one raw 16-byte file per remote address, named after
// the address string.
type LinkKeyStore struct {
	Dir string
}

func (s LinkKeyStore) path(a Addr) string {
	return filepath.Join(s.Dir, a.String())
}

// Get returns the stored key for a. A missing key is reported with an error
// satisfying os.IsNotExist.
func (s LinkKeyStore) Get(a Addr) ([]byte, error) {
	b, err := os.ReadFile(s.path(a))
	if err != nil {
		return nil, err
	}
	if len(b) != LinkKeySize {
		return nil, errors.Errorf("link key for %s has %d bytes", a, len(b))
	}
	return b, nil
}

// Put stores key for a, replacing any previous key atomically.
func (s LinkKeyStore) Put(a Addr, key []byte) error {
	if len(key) != LinkKeySize {
		return errors.Errorf("link key for %s has %d bytes", a, len(key))
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return errors.Wrap(err, "can't create link key directory")
	}
	if err := renameio.WriteFile(s.path(a), key, 0o600); err != nil {
		return errors.Wrapf(err, "can't save link key for %s", a)
	}
	return nil
}
