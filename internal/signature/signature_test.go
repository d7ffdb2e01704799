package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfAndString(t *testing.T) {
	sig := Of([]byte("hello product"))
	require.False(t, sig.IsZero())
	require.Len(t, sig.String(), 32)

	parsed, err := ParseHex(sig.String())
	require.NoError(t, err)
	require.Equal(t, sig, parsed)
}

func TestFromBytesWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestZeroIsZero(t *testing.T) {
	require.True(t, Zero.IsZero())
	require.True(t, Signature{}.IsZero())
}
