package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastquant/internal/model"
)

func TestRiskGate_PositionLimits(t *testing.T) {
	rg := NewRiskGate(RiskLimits{MaxPosition: 1})

	require.NoError(t, rg.Check(model.SideBuy, 0))
	require.NoError(t, rg.Check(model.SideBuy, 0.999))
	assert.ErrorIs(t, rg.Check(model.SideBuy, 1), ErrRiskLimit)

	require.NoError(t, rg.Check(model.SideSell, 1))
	require.NoError(t, rg.Check(model.SideSell, -0.5))
	assert.ErrorIs(t, rg.Check(model.SideSell, -1), ErrRiskLimit)
}

func TestRiskGate_DailyLoss(t *testing.T) {
	rg := NewRiskGate(RiskLimits{MaxPosition: 10, MaxDailyLoss: 50})

	rg.RecordPnL(decimal.NewFromInt(-30))
	require.NoError(t, rg.Check(model.SideBuy, 0))

	rg.RecordPnL(decimal.NewFromInt(-30))
	assert.ErrorIs(t, rg.Check(model.SideBuy, 0), ErrRiskLimit)

	rg.ResetDaily()
	require.NoError(t, rg.Check(model.SideBuy, 0))
}

func TestRiskGate_DailyLossAtLimit(t *testing.T) {
	rg := NewRiskGate(RiskLimits{MaxPosition: 10, MaxDailyLoss: 10})
	rg.RecordPnL(decimal.NewFromInt(-10))
	assert.ErrorIs(t, rg.Check(model.SideBuy, 0), ErrRiskLimit)
	assert.ErrorIs(t, rg.Check(model.SideSell, 0), ErrRiskLimit)
}

func TestRiskGate_DailyLossAllowsExits(t *testing.T) {
	rg := NewRiskGate(RiskLimits{MaxPosition: 10, MaxDailyLoss: 10})
	rg.RecordPnL(decimal.NewFromInt(-11))

	// Closing a long or covering a short still passes.
	require.NoError(t, rg.Check(model.SideSell, 0.5))
	require.NoError(t, rg.Check(model.SideBuy, -0.5))

	// Adding to either side does not.
	assert.ErrorIs(t, rg.Check(model.SideBuy, 0.5), ErrRiskLimit)
	assert.ErrorIs(t, rg.Check(model.SideSell, -0.5), ErrRiskLimit)
}

func TestRiskGate_Status(t *testing.T) {
	rg := NewRiskGate(DefaultRiskLimits())
	rg.RecordPnL(decimal.NewFromInt(100))
	rg.RecordPnL(decimal.NewFromInt(-40))

	st := rg.Status()
	assert.True(t, st.Equity.Equal(decimal.NewFromInt(60)))
	assert.True(t, st.Drawdown.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 1.0, st.Limits.MaxPosition)
}
