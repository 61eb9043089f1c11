package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

func TestDefault(t *testing.T) {
	cat := Default()
	require.NoError(t, cat.Validate())
	require.Equal(t, 1, cat.Len())

	step := cat.Steps()[0]
	assert.Equal(t, int64(1), step.Version)
	assert.Equal(t, "create_initial_tables", step.Description)
	assert.Equal(t, migration.Forward, step.Direction)
	require.Len(t, step.Statements, len(ApplicationTables))
	for i, table := range ApplicationTables {
		assert.True(t, strings.Contains(step.Statements[i], "CREATE TABLE IF NOT EXISTS "+table+" "),
			"statement %d should create %s", i, table)
	}
	assert.NotEmpty(t, step.Checksum)
}

func TestDefault_Stable(t *testing.T) {
	first := Default()
	second := Default()
	assert.Equal(t, first.Latest(), second.Latest())
	assert.Equal(t, first.Steps()[0].Checksum, second.Steps()[0].Checksum)
}
