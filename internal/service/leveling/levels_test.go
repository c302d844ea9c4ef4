package leveling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor_Monotonic(t *testing.T) {
	prev := 0
	for xp := 0; xp <= 5000; xp += 5 {
		level := LevelFor(xp, 100)
		assert.GreaterOrEqual(t, level, prev, "levelFor must be non-decreasing (xp=%d)", xp)
		assert.GreaterOrEqual(t, level, 1, "level floor is 1 (xp=%d)", xp)
		prev = level
	}
}

func TestLevelFor_BoundaryInclusive(t *testing.T) {
	for _, level := range []int{1, 2, 5, 14, 15, 50} {
		threshold := ThresholdXP(level, 100)
		assert.Equal(t, level, LevelFor(threshold, 100), "xp == threshold(L) must yield L")
		if level > 1 {
			assert.Equal(t, level-1, LevelFor(threshold-1, 100), "xp just below threshold(L) must yield L-1")
		}
	}
}

func TestLevelFor_WorkedExample(t *testing.T) {
	// AWARD=15, threshold(L)=L*100: first message lands at level 1, one
	// hundred awards at 1500 XP land at level 15.
	assert.Equal(t, 1, LevelFor(15, 100))
	assert.Equal(t, 15, LevelFor(1500, 100))
	assert.Equal(t, 14, LevelFor(1485, 100))
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor(150, 100)
	assert.Equal(t, 50, p.Current)
	assert.Equal(t, 100, p.Needed)
	assert.Equal(t, 50, p.Percent)

	// Below the first threshold.
	p = ProgressFor(15, 100)
	assert.Equal(t, 15, p.Current)
	assert.Equal(t, 200, p.Needed)
	assert.Equal(t, 7, p.Percent)
}
