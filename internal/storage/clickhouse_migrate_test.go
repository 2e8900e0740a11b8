package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `-- transfer mirror
CREATE TABLE IF NOT EXISTS a (
    x UInt64
) ENGINE = MergeTree ORDER BY x;

-- second
CREATE TABLE IF NOT EXISTS b (y String) ENGINE = Log;
SELECT 1`

	stmts := splitSQLStatements(content)

	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS a")
	assert.NotContains(t, stmts[0], "--")
	assert.NotContains(t, stmts[0], ";")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS b (y String) ENGINE = Log", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
