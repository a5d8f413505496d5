package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEloBaselineWhenNoPredictions(t *testing.T) {
	assert.Equal(t, int64(500), Elo(0, 0))
	assert.Equal(t, int64(500), Elo(1234, 0))
}

func TestEloTruncatesTowardZero(t *testing.T) {
	assert.Equal(t, int64(166), Elo(500, 3))
	assert.Equal(t, int64(-166), Elo(-500, 3))
}
