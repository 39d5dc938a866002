package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionsCovers(t *testing.T) {
	t.Run("NeedsOneHasNone", func(t *testing.T) {
		assert.False(t, Permissions{}.Covers(Permissions{Jury: true}))
	})

	t.Run("NeedsOneHasExtra", func(t *testing.T) {
		has := Permissions{Jury: true, Judgehost: true}
		assert.True(t, has.Covers(Permissions{Jury: true}))
	})

	t.Run("NeedsBothHasBoth", func(t *testing.T) {
		has := Permissions{Jury: true, Judgehost: true}
		assert.True(t, has.Covers(Permissions{Jury: true, Judgehost: true}))
	})

	t.Run("NeedsOneHasOther", func(t *testing.T) {
		has := Permissions{Judgehost: true}
		assert.False(t, has.Covers(Permissions{Jury: true}))
	})

	t.Run("NeedsNothing", func(t *testing.T) {
		assert.True(t, Permissions{}.Covers(Permissions{}))
	})
}
