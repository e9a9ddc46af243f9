package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvanceSingleLevelUp(t *testing.T) {
	prog := Advance(950, 5, 1000, 80)
	require.Equal(t, int64(30), prog.XP)
	require.Equal(t, 6, prog.Level)
	require.Equal(t, int64(1300), prog.XPToNext)
}

func TestAdvanceCascadesThroughMultipleLevels(t *testing.T) {
	prog := Advance(0, 1, 100, 250)
	require.Equal(t, int64(20), prog.XP)
	require.Equal(t, 3, prog.Level)
	require.Equal(t, int64(169), prog.XPToNext)
}

func TestAdvanceBelowThreshold(t *testing.T) {
	prog := Advance(100, 2, 1300, 50)
	require.Equal(t, int64(150), prog.XP)
	require.Equal(t, 2, prog.Level)
	require.Equal(t, int64(1300), prog.XPToNext)
}

func TestAdvanceNormalizesZeroState(t *testing.T) {
	prog := Advance(0, 0, 0, 10)
	require.Equal(t, int64(10), prog.XP)
	require.Equal(t, 1, prog.Level)
	require.Equal(t, int64(InitialXPToNext), prog.XPToNext)
}
