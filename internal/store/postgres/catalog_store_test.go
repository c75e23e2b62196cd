package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableTime(t *testing.T) {
	assert.Nil(t, nullableTime(time.Time{}))

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	got := nullableTime(ts)
	require.NotNil(t, got)
	assert.True(t, ts.Equal(*got))
}
