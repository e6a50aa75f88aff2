package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("pair-1-1")
	require.NoError(t, err)
	assert.NotEqual(t, "pair-1-1", hash)

	assert.True(t, VerifySecret(hash, "pair-1-1"))
	assert.False(t, VerifySecret(hash, "pair-1-2"))
	assert.False(t, VerifySecret("not-a-hash", "pair-1-1"))
}

func TestCalculateDistance(t *testing.T) {
	// Same point.
	assert.InDelta(t, 0.0, CalculateDistance(37.7749, -122.4194, 37.7749, -122.4194), 0.001)

	// San Francisco to Los Angeles is roughly 559 km.
	d := CalculateDistance(37.7749, -122.4194, 34.0522, -118.2437)
	assert.InDelta(t, 559.0, d, 5.0)
}
