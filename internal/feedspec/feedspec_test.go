package feedspec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndParse(t *testing.T) {
	exp := Register("TEST_EXP")
	req(t, exp != None)

	parsed, err := Parse("TEST_EXP")
	require.NoError(t, err)
	require.Equal(t, exp, parsed)
}

func TestCompositeIntersects(t *testing.T) {
	a := Register("TEST_A")
	b := Register("TEST_B")
	c, err := RegisterComposite("TEST_AB", "TEST_A", "TEST_B")
	require.NoError(t, err)

	require.True(t, c.Intersects(a))
	require.True(t, c.Intersects(b))
	require.Equal(t, a, c.Intersection(a))
}

func TestUnknownFeed(t *testing.T) {
	_, err := Parse("TEST_NOPE_NOT_REGISTERED")
	require.Error(t, err)
}

func req(t *testing.T, cond bool) {
	t.Helper()
	require.True(t, cond)
}
