package hci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrString(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", testAddr.String())
}

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, testAddr, a)

	for _, s := range []string{"", "AA:BB:CC:DD:EE", "AA:BB:CC:DD:EE:FG", "AAB:B:CC:DD:EE:FF"} {
		_, err := ParseAddr(s)
		assert.Error(t, err, s)
	}
}
