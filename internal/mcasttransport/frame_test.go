package mcasttransport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unidata/LDM-sub009/internal/prodindex"
)

func TestBOPRoundtrip(t *testing.T) {
	f := bopFrame{iProd: prodindex.ProdIndex(42), prodSize: 1024, metadata: []byte("0123456789abcdef")}
	got, err := decodeBOP(encodeBOP(f))
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestEOPRoundtrip(t *testing.T) {
	f := eopFrame{iProd: prodindex.ProdIndex(7), actualSize: 4, payload: []byte("data")}
	got, err := decodeEOP(encodeEOP(f))
	require.NoError(t, err)
	require.Equal(t, f.iProd, got.iProd)
	require.Equal(t, f.actualSize, got.actualSize)
	require.Equal(t, f.payload, got.payload)
}

func TestMissedRoundtrip(t *testing.T) {
	got, err := decodeMissed(encodeMissed(prodindex.ProdIndex(99)))
	require.NoError(t, err)
	require.Equal(t, prodindex.ProdIndex(99), got)
}

func TestDecodeBOPTooShort(t *testing.T) {
	_, err := decodeBOP([]byte{byte(frameBOP)})
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeBOPTruncatedMetadata(t *testing.T) {
	buf := encodeBOP(bopFrame{iProd: 1, prodSize: 2, metadata: []byte("abc")})
	_, err := decodeBOP(buf[:len(buf)-2])
	require.ErrorIs(t, err, ErrMalformedFrame)
}
