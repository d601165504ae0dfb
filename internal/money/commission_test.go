package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in       string
		expected Rate
	}{
		{"0.30", 3000},
		{"0.3", 3000},
		{".125", 1250},
		{"0", 0},
		{"1", 10000},
		{"0.0001", 1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseRate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r)
		})
	}

	t.Run("Rejects invalid", func(t *testing.T) {
		for _, s := range []string{"", "abc", "1.5", "-0.1", "0.00001"} {
			_, err := ParseRate(s)
			assert.ErrorIs(t, err, ErrInvalidRate, s)
		}
	})
}

func TestComputeSettlement(t *testing.T) {
	t.Run("Example booking", func(t *testing.T) {
		total := FromPesos(500*3 + 100)
		split, err := ComputeSettlement(total, MustParseRate("0.30"))
		require.NoError(t, err)
		assert.Equal(t, FromPesos(480), split.Commission)
		assert.Equal(t, FromPesos(1120), split.OwnerShare)
	})

	t.Run("Rounds half away from zero", func(t *testing.T) {
		// 0.05 * 10 centavos = 0.5 centavo
		split, err := ComputeSettlement(Amount(10), MustParseRate("0.05"))
		require.NoError(t, err)
		assert.Equal(t, Amount(1), split.Commission)
		assert.Equal(t, Amount(9), split.OwnerShare)

		// 0.3333 * 1 centavo rounds down
		split, err = ComputeSettlement(Amount(1), MustParseRate("0.3333"))
		require.NoError(t, err)
		assert.Equal(t, Amount(0), split.Commission)
		assert.Equal(t, Amount(1), split.OwnerShare)
	})

	t.Run("Conservation", func(t *testing.T) {
		rates := []string{"0", "0.0001", "0.125", "0.30", "0.3333", "0.5", "0.9999", "1"}
		totals := []Amount{0, 1, 3, 99, 101, 12345, 160000, 999999999, 1<<62 - 1}
		for _, rs := range rates {
			for _, total := range totals {
				split, err := ComputeSettlement(total, MustParseRate(rs))
				require.NoError(t, err)
				assert.Equal(t, total, split.Commission+split.OwnerShare)
				assert.False(t, split.Commission.IsNegative())
				assert.False(t, split.OwnerShare.IsNegative())
			}
		}
	})

	t.Run("Rejects negative total", func(t *testing.T) {
		_, err := ComputeSettlement(Amount(-1), 3000)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("Rejects out of range rate", func(t *testing.T) {
		_, err := ComputeSettlement(Amount(100), Rate(10001))
		assert.ErrorIs(t, err, ErrInvalidRate)
	})
}

func TestRateTable(t *testing.T) {
	table, err := NewRateTable("0.30", map[string]string{"Camera": "0.20"})
	require.NoError(t, err)

	assert.Equal(t, Rate(2000), table.For("camera"))
	assert.Equal(t, Rate(3000), table.For("tent"))

	_, err = NewRateTable("0.30", map[string]string{"drone": "2"})
	assert.ErrorIs(t, err, ErrInvalidRate)
}
