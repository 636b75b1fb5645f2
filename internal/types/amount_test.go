package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestAddDecimal(t *testing.T) {
	sum, err := AddDecimal("0.01", "0.009")
	require.NoError(t, err)
	require.Equal(t, "0.019", sum)

	sum, err = AddDecimal("0", "0")
	require.NoError(t, err)
	require.Equal(t, "0", sum)

	_, err = AddDecimal("abc", "1")
	require.Error(t, err)
}

func TestMulDecimalAppliesRate(t *testing.T) {
	out, err := MulDecimal("0.01", "0.9")
	require.NoError(t, err)
	require.Equal(t, "0.009", out)
}

func TestDivDecimalRejectsZeroDivisor(t *testing.T) {
	_, err := DivDecimal("1", "0")
	require.Error(t, err)

	out, err := DivDecimal("0.009", "0.01")
	require.NoError(t, err)
	require.Equal(t, "0.9", out)
}

func TestIsPositiveDecimal(t *testing.T) {
	require.True(t, IsPositiveDecimal("0.0001"))
	require.False(t, IsPositiveDecimal("0"))
	require.False(t, IsPositiveDecimal("-1"))
	require.False(t, IsPositiveDecimal("not-a-number"))
}

func TestToWeiFromWeiRoundTrip(t *testing.T) {
	wei, err := ToWei("0.01")
	require.NoError(t, err)
	require.Equal(t, "10000000000000000", wei.String())
	require.Equal(t, "0.01", FromWei(wei))

	wei, err = ToWei("1")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", wei.String())
}

func TestToWeiTruncatesSubWeiPrecision(t *testing.T) {
	wei, err := ToWei("0.0000000000000000019")
	require.NoError(t, err)
	require.Equal(t, "1", wei.String())
}

func TestFromWeiTrimsTrailingZeros(t *testing.T) {
	require.Equal(t, "0.009", FromWei(big.NewInt(9000000000000000)))
	require.Equal(t, "0", FromWei(big.NewInt(0)))
}

func TestInvestmentDueAt(t *testing.T) {
	inv := Investment{IsActive: true, NextExecution: 1000}
	require.True(t, inv.DueAt(msTime(1000)))
	require.True(t, inv.DueAt(msTime(2000)))
	require.False(t, inv.DueAt(msTime(999)))

	inv.IsActive = false
	require.False(t, inv.DueAt(msTime(2000)))
}
