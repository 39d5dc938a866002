package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		for wire, want := range map[string]JudgePriority{
			"high":    PriorityHigh,
			"default": PriorityDefault,
			"low":     PriorityLow,
		} {
			got, err := ParsePriority(wire)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, wire, got.String())
		}
	})

	t.Run("EmptyIsDefault", func(t *testing.T) {
		got, err := ParsePriority("")
		require.NoError(t, err)
		assert.Equal(t, PriorityDefault, got)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := ParsePriority("urgent")
		assert.Error(t, err)
	})

	t.Run("Ordering", func(t *testing.T) {
		assert.Less(t, int(PriorityHigh), int(PriorityDefault))
		assert.Less(t, int(PriorityDefault), int(PriorityLow))
	})
}

func TestVerdictEqualsFold(t *testing.T) {
	assert.True(t, Verdict("CORRECT").EqualsFold(VerdictCorrect))
	assert.True(t, VerdictWrongAnswer.EqualsFold(Verdict("Wrong-Answer")))
	assert.False(t, VerdictCorrect.EqualsFold(VerdictTimelimit))
}
