package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQuery_AllowsCleanPipelines(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateQuery("db", "QUERY FILTER /age gte 30 COUNT SUM /age", nil))
	assert.NoError(t, ValidateQuery("db", "QUERY GROUPBY /city", nil))
}

func TestValidateQuery_RejectsDatabaseReferences(t *testing.T) {
	t.Parallel()

	err := ValidateQuery("db", "QUERY SUM /age db:other", nil)
	require.Error(t, err)
	assert.Equal(t, "Invalid query: database references not allowed", err.Error())

	// Case-insensitive: the query is normalized before checking.
	err = ValidateQuery("db", "QUERY SUM /age DB:other", nil)
	require.Error(t, err)
}

func TestValidateQuery_RejectsSuspiciousCharacters(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"QUERY FILTER /name eq foo; DROP",
		"QUERY COUNT -- comment",
		"QUERY COUNT /* block */",
		"QUERY SUM /../secret",
	} {
		err := ValidateQuery("db", q, nil)
		require.Error(t, err, q)
		assert.Equal(t, "Invalid query: suspicious characters detected", err.Error())
	}
}
