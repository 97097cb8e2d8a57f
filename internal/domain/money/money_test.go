package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRate(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   Rate
		want   string
	}{
		{name: "21% of 25.50 rounds half up", amount: "25.50", rate: Percent(21), want: "5.36"},
		{name: "10% of 1200", amount: "1200.00", rate: Percent(10), want: "120.00"},
		{name: "exact half cent rounds up", amount: "0.05", rate: Percent(10), want: "0.01"},
		{name: "below half cent rounds down", amount: "0.04", rate: Percent(10), want: "0.00"},
		{name: "21% of 0.01", amount: "0.01", rate: Percent(21), want: "0.00"},
		{name: "zero rate", amount: "99.99", rate: 0, want: "0.00"},
		{name: "negative is symmetric", amount: "-25.50", rate: Percent(21), want: "-5.36"},
		{name: "basis point precision", amount: "100.00", rate: Rate(1250), want: "12.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.amount).ApplyRate(tt.rate)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFromDecimal(t *testing.T) {
	assert.Equal(t, FromCents(2550), FromDecimal(decimal.RequireFromString("25.5")))
	assert.Equal(t, FromCents(101), FromDecimal(decimal.RequireFromString("1.005")))
	assert.Equal(t, FromCents(100), FromDecimal(decimal.RequireFromString("1.004")))
	assert.Equal(t, FromUnits(1000), FromDecimal(decimal.NewFromInt(1000)))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("twelve")
	require.Error(t, err)
}

func TestArithmetic(t *testing.T) {
	price := MustParse("19.99")

	assert.Equal(t, "59.97", price.Mul(3).String())
	assert.Equal(t, "39.98", price.Add(price).String())
	assert.Equal(t, "0.00", price.Sub(price).String())
	assert.True(t, FromUnits(1001).GreaterThan(FromUnits(1000)))
	assert.True(t, decimal.RequireFromString("19.99").Equal(price.Decimal()))
}

func TestJSON(t *testing.T) {
	type payload struct {
		Total Money `json:"total"`
	}

	data, err := json.Marshal(payload{Total: MustParse("80.86")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 80.86}`, string(data))

	var fromNumber payload
	require.NoError(t, json.Unmarshal([]byte(`{"total": 12.3}`), &fromNumber))
	assert.Equal(t, FromCents(1230), fromNumber.Total)

	var fromString payload
	require.NoError(t, json.Unmarshal([]byte(`{"total": "7.05"}`), &fromString))
	assert.Equal(t, FromCents(705), fromString.Total)
}

func TestRate_String(t *testing.T) {
	assert.Equal(t, "21%", Percent(21).String())
	assert.Equal(t, "12.5%", Rate(1250).String())
	assert.True(t, decimal.RequireFromString("0.1").Equal(Percent(10).Decimal()))
}
