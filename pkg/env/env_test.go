package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	t.Setenv("BARTER_TEST_VALUE", "  web.3 ")
	require.Equal(t, "web.3", Get("BARTER_TEST_VALUE", "fallback"))

	t.Setenv("BARTER_TEST_VALUE", "   ")
	require.Equal(t, "fallback", Get("BARTER_TEST_VALUE", "fallback"))
}
