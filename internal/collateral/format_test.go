package collateral

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"1000000000000000000", "1.00"},
		{"10500000000000000000", "10.50"},
		{"21525000000000000000", "21.53"}, // half-up on the hundredth
		{"1234567000000000000000", "1,234.57"},
		{"1000000000000000000000000", "1,000,000.00"},
	}
	for _, tc := range cases {
		v, ok := new(big.Int).SetString(tc.in, 10)
		require.True(t, ok)
		assert.Equal(t, tc.want, FormatUSD(v), "input %s", tc.in)
	}
}

func TestFormatBTC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.000000"},
		{"1000000000000000000", "1.000000"},
		// 0.0004305 BTC floors to six decimals, never rounds up.
		{"430500000000000", "0.000430"},
		{"123456789000000000", "0.123456"},
		{"2500000000000000000", "2.500000"},
	}
	for _, tc := range cases {
		v, ok := new(big.Int).SetString(tc.in, 10)
		require.True(t, ok)
		assert.Equal(t, tc.want, FormatBTC(v), "input %s", tc.in)
	}
}

func TestParseUSD(t *testing.T) {
	ten, err := ParseUSD("10")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", ten.String())

	frac, err := ParseUSD("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", frac.String())

	mixed, err := ParseUSD("1234.5")
	require.NoError(t, err)
	assert.Equal(t, "1234500000000000000000", mixed.String())

	for _, bad := range []string{"", "-1", "+2", "abc", "1.0000000000000000001"} {
		_, err := ParseUSD(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	v, err := ParseUSD("1234.56")
	require.NoError(t, err)
	assert.Equal(t, "1,234.56", FormatUSD(v))
}
