package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr error
	}{
		{"string", "25.50", "25.50", nil},
		{"string with spaces", " 7 ", "7.00", nil},
		{"int64", int64(100), "100.00", nil},
		{"int", 3, "3.00", nil},
		{"float", 12.25, "12.25", nil},
		{"negative", "-5", "-5.00", nil},
		{"too precise string", "0.001", "", ErrPrecision},
		{"too precise float", 0.125, "", ErrPrecision},
		{"nan", math.NaN(), "", ErrInvalid},
		{"inf", math.Inf(-1), "", ErrInvalid},
		{"nan string", "NaN", "", ErrInvalid},
		{"empty", "", "", ErrInvalid},
		{"word", "ten", "", ErrInvalid},
		{"bool", true, "", ErrInvalid},
		{"huge", "1000000000000.01", "", ErrRange},
		{"huge uint", uint64(math.MaxUint64), "", ErrRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestParsePositive(t *testing.T) {
	_, err := ParsePositive("0")
	require.ErrorIs(t, err, ErrNotPositive)

	_, err = ParsePositive(int64(-1))
	require.ErrorIs(t, err, ErrNotPositive)

	d, err := ParsePositive("0.01")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("0.01")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.00", Format(decimal.Zero))
	assert.Equal(t, "1234.50", Format(decimal.RequireFromString("1234.5")))
}
