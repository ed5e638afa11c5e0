package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymbols(t *testing.T) {
	got, err := parseSymbols(" btcusdt:50000, ETHUSDT:3000.5 ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000.5}, got)

	for _, bad := range []string{"", "BTCUSDT", "BTCUSDT:abc", "BTCUSDT:-1"} {
		_, err := parseSymbols(bad)
		assert.Error(t, err, bad)
	}
}
