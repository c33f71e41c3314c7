package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsAreOrderedAndUnique(t *testing.T) {
	all := All()
	assert.NotEmpty(t, all)

	seen := map[string]bool{}
	for i, m := range all {
		assert.Len(t, m.Version, 12, m.Name)
		assert.False(t, seen[m.Version], "duplicate version %s", m.Version)
		seen[m.Version] = true
		assert.NotNil(t, m.Up, m.Name)
		if i > 0 {
			assert.Less(t, all[i-1].Version, m.Version)
		}
	}
	assert.Equal(t, "create_rankings_table", all[0].Name)
}
