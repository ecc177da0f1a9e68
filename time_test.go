package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	within, err := IsWithinThresholdPeriod(time.Now().Add(-time.Minute), "1h")
	require.NoError(t, err)
	assert.True(t, within)

	within, err = IsWithinThresholdPeriod(time.Now().Add(-2*time.Hour), "1h")
	require.NoError(t, err)
	assert.False(t, within)
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	outside, err := IsOutsideThresholdPeriod(time.Now().Add(-2*time.Hour), "1h")
	require.NoError(t, err)
	assert.True(t, outside)
}

func TestThresholdPeriodBadPattern(t *testing.T) {
	_, err := IsWithinThresholdPeriod(time.Now(), "not-a-duration")
	assert.Error(t, err)
}
