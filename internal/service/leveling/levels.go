package leveling

// ThresholdXP returns the experience required to hold a level under the
// linear formula threshold(L) = L * multiplier.
func ThresholdXP(level, multiplier int) int {
	return level * multiplier
}

// LevelFor computes the level held at a given experience total: the largest L
// with xp >= threshold(L), floored at 1. The boundary is inclusive, so
// xp == threshold(L) yields exactly L.
func LevelFor(xp, multiplier int) int {
	level := xp / multiplier
	if level < 1 {
		return 1
	}
	return level
}

// Progress describes how far a record is into its current level.
type Progress struct {
	Current int // XP gained past the current level's threshold
	Needed  int // XP between the current and next thresholds
	Percent int
}

// ProgressFor computes level progress for an experience total.
func ProgressFor(xp, multiplier int) Progress {
	level := LevelFor(xp, multiplier)
	base := ThresholdXP(level, multiplier)
	current := xp - base
	if current < 0 {
		// Below the first threshold everything counts toward level 1's ceiling.
		base = 0
		current = xp
	}
	needed := ThresholdXP(level+1, multiplier) - base
	percent := 0
	if needed > 0 {
		percent = current * 100 / needed
	}
	return Progress{Current: current, Needed: needed, Percent: percent}
}
